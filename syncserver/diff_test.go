package syncserver

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/LordOfDragons/deremotelauncher-sub000/layout"
	"github.com/LordOfDragons/deremotelauncher-sub000/task"
)

func newTestClient(t *testing.T, baseDir string) *RemoteClient {
	t.Helper()
	c := &RemoteClient{
		logger:              zap.NewNop(),
		conn:                closedConn(),
		baseDir:             baseDir,
		maxInProgressFiles:  DefaultMaxInProgressFiles,
		maxInProgressBlocks: DefaultMaxInProgressBlocks,
	}
	c.syncTask = task.NewSyncClientTask()
	return c
}

func TestAddFileDeleteTasksOnlyRemovesClientOnlyPaths(t *testing.T) {
	c := newTestClient(t, t.TempDir())
	server := layout.NewFileLayout()
	server.Set(layout.File{Path: "a.txt", Size: 1, HashSet: true})
	client := layout.NewFileLayout()
	client.Set(layout.File{Path: "a.txt", Size: 1, HashSet: true})
	client.Set(layout.File{Path: "stale.txt", Size: 2, HashSet: true})

	st := c.syncTask
	st.Mutex.Lock()
	err := c.addFileDeleteTasks(st, server, client)
	st.Mutex.Unlock()

	require.Error(t, err) // conn is closed, send fails — but the task map is populated first
	require.Contains(t, st.DeleteFiles(), "stale.txt")
	require.NotContains(t, st.DeleteFiles(), "a.txt")
}

func TestAddFileWriteTasksSkipsIdenticalFiles(t *testing.T) {
	c := newTestClient(t, t.TempDir())
	hash := [32]byte{1, 2, 3}
	server := layout.NewFileLayout()
	server.Set(layout.File{Path: "same.txt", Size: 5, Hash: hash, HashSet: true})
	client := layout.NewFileLayout()
	client.Set(layout.File{Path: "same.txt", Size: 5, Hash: hash, HashSet: true})

	st := c.syncTask
	st.Mutex.Lock()
	err := c.addFileWriteTasks(st, server, client)
	st.Mutex.Unlock()

	require.NoError(t, err)
	require.Empty(t, st.WriteFiles())
}

func TestAddFileWriteTasksFullRewriteWhenClientMissing(t *testing.T) {
	c := newTestClient(t, t.TempDir())
	server := layout.NewFileLayout()
	server.Set(layout.File{Path: "new.txt", Size: 10, Hash: [32]byte{9}, HashSet: true})
	client := layout.NewFileLayout()

	st := c.syncTask
	st.Mutex.Lock()
	err := c.addFileWriteTasks(st, server, client)
	st.Mutex.Unlock()

	require.NoError(t, err)
	wt, ok := st.WriteFiles()["new.txt"]
	require.True(t, ok)
	require.True(t, wt.Truncate())
	require.Equal(t, uint64(10), wt.FileSize())
	require.Len(t, wt.Blocks(), 1)
}

func TestAddFileWriteTasksPartialRewriteOnlyDiffersBlocks(t *testing.T) {
	c := newTestClient(t, t.TempDir())
	blockSize := uint64(4)
	serverBlocks := []layout.Block{
		{Offset: 0, Size: 4, Hash: [32]byte{1}, HashSet: true},
		{Offset: 4, Size: 4, Hash: [32]byte{2}, HashSet: true},
		{Offset: 8, Size: 2, Hash: [32]byte{3}, HashSet: true},
	}
	clientBlocks := []layout.Block{
		{Offset: 0, Size: 4, Hash: [32]byte{1}, HashSet: true}, // matches
		{Offset: 4, Size: 4, Hash: [32]byte{99}, HashSet: true}, // differs
		{Offset: 8, Size: 2, Hash: [32]byte{3}, HashSet: true}, // matches
	}

	server := layout.NewFileLayout()
	server.Set(layout.File{Path: "big.bin", Size: 10, Hash: [32]byte{1}, HashSet: true, BlockSize: blockSize, Blocks: serverBlocks})
	client := layout.NewFileLayout()
	client.Set(layout.File{Path: "big.bin", Size: 10, Hash: [32]byte{2}, HashSet: true, BlockSize: blockSize, Blocks: clientBlocks})

	st := c.syncTask
	st.Mutex.Lock()
	err := c.addFileWriteTasks(st, server, client)
	st.Mutex.Unlock()

	require.NoError(t, err)
	wt, ok := st.WriteFiles()["big.bin"]
	require.True(t, ok)
	require.False(t, wt.Truncate())
	require.Len(t, wt.Blocks(), 1)
	require.Equal(t, 1, wt.Blocks()[0].Index)
}

func TestAddFileBlockHashTasksRebuildsClientBlocksFromServerShape(t *testing.T) {
	c := newTestClient(t, t.TempDir())
	serverBlocks := []layout.Block{
		{Offset: 0, Size: 4, Hash: [32]byte{1}, HashSet: true},
		{Offset: 4, Size: 4, Hash: [32]byte{2}, HashSet: true},
	}
	server := layout.NewFileLayout()
	server.Set(layout.File{Path: "f.bin", Size: 8, Hash: [32]byte{1}, HashSet: true, BlockSize: 4, Blocks: serverBlocks})
	client := layout.NewFileLayout()
	client.Set(layout.File{Path: "f.bin", Size: 8, Hash: [32]byte{2}, HashSet: true})

	st := c.syncTask
	st.Mutex.Lock()
	err := c.addFileBlockHashTasks(st, server, client)
	st.Mutex.Unlock()

	require.Error(t, err) // closed conn: sendRequestFileBlockHashes fails after state is rebuilt
	cf, ok := client.Get("f.bin")
	require.True(t, ok)
	require.Len(t, cf.Blocks, 2)
	require.False(t, cf.Blocks[0].HashSet)
	require.Equal(t, uint64(4), cf.Blocks[1].Offset)
}

func TestAddFileBlockHashTasksSkipsWhenHashesAlreadyMatch(t *testing.T) {
	c := newTestClient(t, t.TempDir())
	server := layout.NewFileLayout()
	server.Set(layout.File{Path: "same.bin", Size: 8, Hash: [32]byte{7}, HashSet: true})
	client := layout.NewFileLayout()
	client.Set(layout.File{Path: "same.bin", Size: 8, Hash: [32]byte{7}, HashSet: true})

	st := c.syncTask
	st.Mutex.Lock()
	err := c.addFileBlockHashTasks(st, server, client)
	st.Mutex.Unlock()

	require.NoError(t, err)
	require.Empty(t, st.BlockHashes())
}

func TestProcessReadFileBlockReadsExactRange(t *testing.T) {
	dir := t.TempDir()
	content := []byte("0123456789")
	require.NoError(t, writeFile(filepath.Join(dir, "data.bin"), content))

	c := newTestClientWithFileIO(t, dir)
	wt := task.NewFileWriteTask("data.bin")
	wt.SetBlockSize(4)
	b := task.NewFileWriteBlockTask(wt, 1, 4)
	b.SetStatus(task.FileWriteBlockReadingData)
	wt.SetBlocks([]*task.FileWriteBlockTask{b})
	c.syncTask.WriteFiles()["data.bin"] = wt

	c.processReadFileBlock(b)

	require.Equal(t, task.FileWriteBlockDataReady, b.Status())
	require.Equal(t, []byte("4567"), b.Data)
}

func TestProcessReadFileBlockIgnoresWrongStatus(t *testing.T) {
	c := newTestClientWithFileIO(t, t.TempDir())
	wt := task.NewFileWriteTask("x.bin")
	b := task.NewFileWriteBlockTask(wt, 0, 4)
	c.processReadFileBlock(b) // status is Pending, not ReadingData
	require.Equal(t, task.FileWriteBlockPending, b.Status())
}
