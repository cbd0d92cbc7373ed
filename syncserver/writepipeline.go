package syncserver

import (
	"sort"

	"github.com/pkg/errors"

	"github.com/LordOfDragons/deremotelauncher-sub000/task"
)

// sendNextWriteRequests drives the pipelined write exchange one step
// forward: for every write task still outstanding, it starts the task
// (subject to maxInProgressFiles) or advances its blocks (subject to
// maxInProgressBlocks), sending whatever wire requests that implies. It is
// re-invoked every time a response frees up a slot, not just once.
// Grounded on derlRemoteClientConnection::SendNextWriteRequests.
func (c *RemoteClient) sendNextWriteRequests(t *task.SyncClientTask) {
	t.Mutex.Lock()
	defer t.Mutex.Unlock()

	writeFiles := t.WriteFiles()
	if len(writeFiles) == 0 {
		return
	}

	paths := make([]string, 0, len(writeFiles))
	for path := range writeFiles {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	for _, path := range paths {
		wt := writeFiles[path]
		switch wt.Status() {
		case task.FileWritePending:
			if !c.tryAcquireFileSlot() {
				continue
			}
			wt.SetStatus(task.FileWritePreparing)
			if err := c.sendRequestWriteFile(path, wt); err != nil {
				wt.SetStatus(task.FileWriteFailure)
				c.releaseFileSlot()
				c.failSynchronizationLocked(errors.Wrapf(err, "request write %s", path).Error())
				return
			}

		case task.FileWriteProcessing:
			blocks := wt.Blocks()
			if len(blocks) == 0 {
				wt.SetStatus(task.FileWriteFinishing)
				if err := c.sendRequestFinishWriteFile(path, wt); err != nil {
					wt.SetStatus(task.FileWriteFailure)
					c.failSynchronizationLocked(errors.Wrapf(err, "request finish write %s", path).Error())
					return
				}
				continue
			}

			for _, b := range blocks {
				if b.Status() == task.FileWriteBlockPending {
					if !c.tryAcquireBlockSlot() {
						break
					}
					if b.Size > 0 {
						b.SetStatus(task.FileWriteBlockReadingData)
						c.addPendingBlock(b)
						continue
					}
					b.SetStatus(task.FileWriteBlockDataReady)
				}

				if b.Status() == task.FileWriteBlockDataReady {
					b.SetStatus(task.FileWriteBlockDataSent)
					if err := c.sendSendFileData(path, b); err != nil {
						b.SetStatus(task.FileWriteBlockFailure)
						c.failSynchronizationLocked(errors.Wrapf(err, "send file data %s#%d", path, b.Index).Error())
						return
					}
				}
			}
		}
	}
}

// failSynchronizationLocked is used by sendNextWriteRequests, which already
// holds t.Mutex; failSynchronization itself only touches the sync task's
// status and error, both guarded by its status box's lock rather than
// t.Mutex, so it is safe to call while t.Mutex is held, but is kept as
// a distinct name so the locking assumption at each call site is explicit.
func (c *RemoteClient) failSynchronizationLocked(message string) {
	c.failSynchronization(message)
}

func (c *RemoteClient) tryAcquireFileSlot() bool {
	c.countMu.Lock()
	defer c.countMu.Unlock()
	if c.countInProgressFiles >= c.maxInProgressFiles {
		return false
	}
	c.countInProgressFiles++
	return true
}

func (c *RemoteClient) releaseFileSlot() {
	c.countMu.Lock()
	defer c.countMu.Unlock()
	if c.countInProgressFiles > 0 {
		c.countInProgressFiles--
	}
}

func (c *RemoteClient) tryAcquireBlockSlot() bool {
	c.countMu.Lock()
	defer c.countMu.Unlock()
	if c.countInProgressBlocks >= c.maxInProgressBlocks {
		return false
	}
	c.countInProgressBlocks++
	return true
}

func (c *RemoteClient) releaseBlockSlot() {
	c.countMu.Lock()
	defer c.countMu.Unlock()
	if c.countInProgressBlocks > 0 {
		c.countInProgressBlocks--
	}
}

// processReadFileBlock reads one block's bytes from the server's own copy
// of the file and marks it ready to send, re-driving the write pipeline so
// the data actually goes out. Grounded on
// derlTaskProcessorRemoteClient::ProcessReadFileBlock.
func (c *RemoteClient) processReadFileBlock(b *task.FileWriteBlockTask) {
	if b.Status() != task.FileWriteBlockReadingData {
		return
	}

	wt := b.Parent
	offset := int64(wt.BlockSize()) * int64(b.Index)

	if err := c.fileIO.Open(wt.Path, false); err != nil {
		b.SetStatus(task.FileWriteBlockFailure)
		c.failSynchronization(errors.Wrapf(err, "open %s for read", wt.Path).Error())
		return
	}

	buf := make([]byte, b.Size)
	if b.Size > 0 {
		if _, err := c.fileIO.ReadAt(buf, offset); err != nil {
			b.SetStatus(task.FileWriteBlockFailure)
			c.failSynchronization(errors.Wrapf(err, "read %s block %d", wt.Path, b.Index).Error())
			return
		}
	}

	b.Data = buf
	b.SetStatus(task.FileWriteBlockDataReady)
	c.sendNextWriteRequests(c.syncTask)
}
