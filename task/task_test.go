package task

import (
	"testing"

	"github.com/LordOfDragons/deremotelauncher-sub000/layout"
	"github.com/stretchr/testify/require"
)

func TestFileLayoutTaskStatusAndLayout(t *testing.T) {
	lt := NewFileLayoutTask()
	require.Equal(t, FileLayoutPending, lt.Status())
	require.Equal(t, KindFileLayout, lt.Kind())

	l := layout.NewFileLayout()
	lt.SetLayout(l)
	lt.SetStatus(FileLayoutSuccess)

	require.Same(t, l, lt.Layout())
	require.Equal(t, FileLayoutSuccess, lt.Status())
}

func TestFileBlockHashesTask(t *testing.T) {
	bh := NewFileBlockHashesTask("a/b.bin", 1024)
	require.Equal(t, KindFileBlockHashes, bh.Kind())
	require.Equal(t, "a/b.bin", bh.Path)
	require.EqualValues(t, 1024, bh.BlockSize)
	require.Equal(t, FileBlockHashesPending, bh.Status())
}

func TestFileDeleteTask(t *testing.T) {
	d := NewFileDeleteTask("old.bin")
	require.Equal(t, KindFileDelete, d.Kind())
	d.SetStatus(FileDeleteSuccess)
	require.Equal(t, FileDeleteSuccess, d.Status())
}

func TestFileWriteTaskFieldsAndBlocks(t *testing.T) {
	w := NewFileWriteTask("data/foo.bin")
	w.SetFileSize(2048)
	w.SetBlockSize(1024)
	w.SetBlockCount(2)

	b0 := NewFileWriteBlockTask(w, 0, 1024)
	b1 := NewFileWriteBlockTask(w, 1, 1024)
	w.SetBlocks([]*FileWriteBlockTask{b0, b1})

	require.EqualValues(t, 2048, w.FileSize())
	require.EqualValues(t, 1024, w.BlockSize())
	require.Equal(t, 2, w.BlockCount())
	require.Len(t, w.Blocks(), 2)
	require.Same(t, w, b0.Parent)

	b0.SetStatus(FileWriteBlockDataReady)
	require.Equal(t, FileWriteBlockDataReady, b0.Status())
	require.Equal(t, FileWriteBlockPending, b1.Status())
}

func TestSyncClientTaskSubTaskMaps(t *testing.T) {
	s := NewSyncClientTask()
	require.Equal(t, SyncClientPending, s.Status())

	s.Mutex.Lock()
	s.WriteFiles()["a.bin"] = NewFileWriteTask("a.bin")
	s.DeleteFiles()["b.bin"] = NewFileDeleteTask("b.bin")
	s.BlockHashes()["c.bin"] = NewFileBlockHashesTask("c.bin", 1024)
	s.Mutex.Unlock()

	s.Mutex.Lock()
	require.Len(t, s.WriteFiles(), 1)
	require.Len(t, s.DeleteFiles(), 1)
	require.Len(t, s.BlockHashes(), 1)
	s.Mutex.Unlock()

	s.SetStatus(SyncClientProcessWriting)
	require.Equal(t, SyncClientProcessWriting, s.Status())
	require.Equal(t, "processWriting", s.Status().String())
}
