package layout

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFileLayoutSetGetRemove(t *testing.T) {
	l := NewFileLayout()
	require.Equal(t, 0, l.Len())

	l.Set(File{Path: "a/b.txt", Size: 3})
	f, ok := l.Get("a/b.txt")
	require.True(t, ok)
	require.EqualValues(t, 3, f.Size)
	require.Equal(t, 1, l.Len())

	l.Remove("a/b.txt")
	_, ok = l.Get("a/b.txt")
	require.False(t, ok)
}

func TestFileLayoutSnapshotSorted(t *testing.T) {
	l := NewFileLayout()
	l.Set(File{Path: "z.txt"})
	l.Set(File{Path: "a.txt"})
	l.Set(File{Path: "m.txt"})

	snap := l.Snapshot()
	require.Len(t, snap, 3)
	require.Equal(t, []string{"a.txt", "m.txt", "z.txt"}, []string{snap[0].Path, snap[1].Path, snap[2].Path})
}

func TestBlockCount(t *testing.T) {
	require.EqualValues(t, 1, BlockCount(0, 1024))
	require.EqualValues(t, 1, BlockCount(1024, 1024))
	require.EqualValues(t, 2, BlockCount(1025, 1024))
	require.EqualValues(t, 3, BlockCount(2048+1, 1024))
}

func TestFileCloneIsIndependent(t *testing.T) {
	orig := File{Path: "f", Blocks: []Block{{Offset: 0, Size: 4, HashSet: true}}}
	clone := orig.Clone()
	clone.Blocks[0].Clear()

	require.True(t, orig.Blocks[0].HashSet)
	require.False(t, clone.Blocks[0].HashSet)
}

func TestFileSameContent(t *testing.T) {
	a := File{Size: 10, Hash: [32]byte{1}, HashSet: true}
	b := File{Size: 10, Hash: [32]byte{1}, HashSet: true}
	c := File{Size: 10, Hash: [32]byte{2}, HashSet: true}

	require.True(t, a.SameContent(b))
	require.False(t, a.SameContent(c))
}

func TestFileDiffBlocks(t *testing.T) {
	a := File{Blocks: []Block{
		{Offset: 0, Size: 4, Hash: [32]byte{1}, HashSet: true},
		{Offset: 4, Size: 4, Hash: [32]byte{2}, HashSet: true},
	}}
	b := File{Blocks: []Block{
		{Offset: 0, Size: 4, Hash: [32]byte{1}, HashSet: true},
		{Offset: 4, Size: 4, Hash: [32]byte{9}, HashSet: true},
	}}

	require.Equal(t, []int{1}, a.DiffBlocks(b))
}
