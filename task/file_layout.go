package task

import (
	"sync"

	"github.com/LordOfDragons/deremotelauncher-sub000/layout"
)

// FileLayoutStatus is the progress of a directory scan.
type FileLayoutStatus int

const (
	FileLayoutPending FileLayoutStatus = iota
	FileLayoutProcessing
	FileLayoutSuccess
	FileLayoutFailure
)

// FileLayoutTask scans one side's base directory into a FileLayout.
type FileLayoutTask struct {
	statusBox[FileLayoutStatus]

	mu     sync.Mutex
	layout *layout.FileLayout
}

func NewFileLayoutTask() *FileLayoutTask {
	return &FileLayoutTask{}
}

func (*FileLayoutTask) Kind() Kind { return KindFileLayout }

func (t *FileLayoutTask) Layout() *layout.FileLayout {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.layout
}

func (t *FileLayoutTask) SetLayout(l *layout.FileLayout) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.layout = l
}
