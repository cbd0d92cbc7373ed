package syncserver

import (
	"net"
	"os"
	"testing"

	"go.uber.org/zap"

	"github.com/LordOfDragons/deremotelauncher-sub000/task"
	"github.com/LordOfDragons/deremotelauncher-sub000/taskproc"
	"github.com/LordOfDragons/deremotelauncher-sub000/transport"
)

func writeFile(path string, content []byte) error {
	return os.WriteFile(path, content, 0o644)
}

// closedConn returns a connection whose pipe is already closed, so every
// Send on it fails with an error instead of blocking.
func closedConn() *transport.Conn {
	a, b := net.Pipe()
	a.Close()
	b.Close()
	return transport.NewConn(a)
}

func newTestClientWithFileIO(t *testing.T, baseDir string) *RemoteClient {
	t.Helper()
	c := &RemoteClient{
		logger:              zap.NewNop(),
		baseDir:             baseDir,
		conn:                closedConn(),
		fileIO:              taskproc.NewOSFileIO(baseDir),
		maxInProgressFiles:  DefaultMaxInProgressFiles,
		maxInProgressBlocks: DefaultMaxInProgressBlocks,
	}
	c.syncTask = task.NewSyncClientTask()
	return c
}
