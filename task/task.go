// Package task defines the units of work a TaskProcessor pool picks up:
// the synchronization run as a whole (SyncClientTask), and its sub-tasks
// (layout scans, block hashing, deletes, writes). Every task carries its
// own status and mutex, matching one task = one lockable unit of progress.
package task

import "sync"

// Kind identifies the concrete task type, mirroring derlBaseTask::Type.
type Kind int

const (
	KindSyncClient Kind = iota
	KindFileLayout
	KindFileBlockHashes
	KindFileDelete
	KindFileWrite
	KindFileWriteBlock
)

func (k Kind) String() string {
	switch k {
	case KindSyncClient:
		return "syncClient"
	case KindFileLayout:
		return "fileLayout"
	case KindFileBlockHashes:
		return "fileBlockHashes"
	case KindFileDelete:
		return "fileDelete"
	case KindFileWrite:
		return "fileWrite"
	case KindFileWriteBlock:
		return "fileWriteBlock"
	default:
		return "unknown"
	}
}

// statusBox is the common mutex-guarded status cell embedded by every task
// type below; it keeps each task's own lock discipline (status read/write
// under the task's mutex) without repeating the same two methods six times.
type statusBox[S comparable] struct {
	mu     sync.Mutex
	status S
}

func (b *statusBox[S]) Status() S {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.status
}

func (b *statusBox[S]) SetStatus(s S) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.status = s
}
