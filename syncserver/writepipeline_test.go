package syncserver

import (
	"net"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/LordOfDragons/deremotelauncher-sub000/task"
	"github.com/LordOfDragons/deremotelauncher-sub000/transport"
)

// pipeClient returns a RemoteClient wired to one end of an in-memory pipe,
// with the other end available for a test to read frames off of.
func pipeClient(t *testing.T) (*RemoteClient, *transport.Conn) {
	t.Helper()
	a, b := net.Pipe()
	c := &RemoteClient{
		logger:              zap.NewNop(),
		conn:                transport.NewConn(a),
		maxInProgressFiles:  DefaultMaxInProgressFiles,
		maxInProgressBlocks: DefaultMaxInProgressBlocks,
	}
	c.syncTask = task.NewSyncClientTask()
	return c, transport.NewConn(b)
}

func TestSendNextWriteRequestsStartsPendingFileUpToCap(t *testing.T) {
	c, peer := pipeClient(t)
	defer peer.Close()

	wt := task.NewFileWriteTask("a.txt")
	wt.SetFileSize(4)
	wt.SetBlockSize(4)
	wt.SetBlockCount(1)
	c.syncTask.WriteFiles()["a.txt"] = wt

	done := make(chan struct{})
	go func() {
		c.sendNextWriteRequests(c.syncTask)
		close(done)
	}()

	body, err := peer.Receive()
	require.NoError(t, err)
	require.NotEmpty(t, body)
	<-done

	require.Equal(t, task.FileWritePreparing, wt.Status())
}

func TestSendNextWriteRequestsSkipsWhenNoFilesToWrite(t *testing.T) {
	c, peer := pipeClient(t)
	defer peer.Close()
	c.sendNextWriteRequests(c.syncTask) // no writeFiles: returns immediately, nothing sent
}

func TestTryAcquireReleaseFileSlotRespectsCap(t *testing.T) {
	c := &RemoteClient{maxInProgressFiles: 1}
	require.True(t, c.tryAcquireFileSlot())
	require.False(t, c.tryAcquireFileSlot())
	c.releaseFileSlot()
	require.True(t, c.tryAcquireFileSlot())
}

func TestTryAcquireReleaseBlockSlotRespectsCap(t *testing.T) {
	c := &RemoteClient{maxInProgressBlocks: 2}
	require.True(t, c.tryAcquireBlockSlot())
	require.True(t, c.tryAcquireBlockSlot())
	require.False(t, c.tryAcquireBlockSlot())
	c.releaseBlockSlot()
	require.True(t, c.tryAcquireBlockSlot())
}
