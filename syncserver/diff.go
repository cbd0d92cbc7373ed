package syncserver

import (
	"github.com/LordOfDragons/deremotelauncher-sub000/layout"
	"github.com/LordOfDragons/deremotelauncher-sub000/task"
	"github.com/pkg/errors"
)

// processPrepareHashing fetches both finished layouts and, under the sync
// task's lock, creates one FileBlockHashesTask per file that exists on both
// sides with the same size but a different whole-file hash — the case a
// single top-level hash can't disambiguate from a stale same-size file.
// Grounded on derlTaskProcessorRemoteClient::ProcessPrepareHashing.
func (c *RemoteClient) processPrepareHashing(t *task.SyncClientTask) {
	serverLayout := c.layoutServerTask.Layout()
	clientLayout := c.layoutClientTask.Layout()
	if serverLayout == nil || clientLayout == nil {
		c.failSynchronization("missing layout at start of hashing")
		return
	}

	t.Mutex.Lock()
	err := c.addFileBlockHashTasks(t, serverLayout, clientLayout)
	created := len(t.BlockHashes())
	t.Mutex.Unlock()

	if err != nil {
		c.failSynchronization(err.Error())
		return
	}

	if created == 0 {
		t.SetStatus(task.SyncClientPrepareTasksWriting)
		c.addPendingSync()
	} else {
		t.SetStatus(task.SyncClientProcessHashing)
	}
}

// processPrepareWriting builds the delete and write task sets once hashing
// (if any was needed) has finished, then either succeeds immediately (no
// work to do) or kicks off the pipelined write exchange.
// Grounded on derlTaskProcessorRemoteClient::ProcessPrepareWriting.
func (c *RemoteClient) processPrepareWriting(t *task.SyncClientTask) {
	serverLayout := c.layoutServerTask.Layout()
	clientLayout := c.layoutClientTask.Layout()

	t.Mutex.Lock()
	err := c.addFileDeleteTasks(t, serverLayout, clientLayout)
	if err == nil {
		err = c.addFileWriteTasks(t, serverLayout, clientLayout)
	}
	deleteCount := len(t.DeleteFiles())
	writeCount := len(t.WriteFiles())
	t.Mutex.Unlock()

	if err != nil {
		c.failSynchronization(err.Error())
		return
	}

	t.SetStatus(task.SyncClientProcessWriting)

	if deleteCount == 0 && writeCount == 0 {
		c.succeedSynchronization()
		return
	}
	c.sendNextWriteRequests(t)
}

// addFileDeleteTasks requests removal of every client path absent from the
// server layout. Must be called with t.Mutex held.
func (c *RemoteClient) addFileDeleteTasks(t *task.SyncClientTask, serverLayout, clientLayout *layout.FileLayout) error {
	for _, path := range clientLayout.Paths() {
		if _, ok := serverLayout.Get(path); ok {
			continue
		}
		dt := task.NewFileDeleteTask(path)
		t.DeleteFiles()[path] = dt
		dt.SetStatus(task.FileDeleteProcessing)
		if err := c.sendRequestDeleteFile(path); err != nil {
			dt.SetStatus(task.FileDeleteFailure)
			return errors.Wrapf(err, "request delete %s", path)
		}
	}
	return nil
}

// addFileBlockHashTasks finds every same-size, different-hash file present
// on both sides, rebuilds the client file's block list from the server's
// block boundaries (hash left unset), and requests the client rehash those
// blocks. Must be called with t.Mutex held.
func (c *RemoteClient) addFileBlockHashTasks(t *task.SyncClientTask, serverLayout, clientLayout *layout.FileLayout) error {
	for _, sf := range serverLayout.Snapshot() {
		cf, ok := clientLayout.Get(sf.Path)
		if !ok || cf.Size != sf.Size {
			continue
		}
		if cf.HashSet && sf.HashSet && cf.Hash == sf.Hash {
			continue
		}

		blockSize := sf.BlockSize
		if blockSize == 0 {
			blockSize = layout.DefaultBlockSize
		}
		count := layout.BlockCount(sf.Size, blockSize)
		newBlocks := make([]layout.Block, count)
		if sf.HasBlocks() {
			for i, b := range sf.Blocks {
				newBlocks[i] = layout.Block{Offset: b.Offset, Size: b.Size}
			}
		} else {
			newBlocks[0] = layout.Block{Offset: 0, Size: sf.Size}
		}
		cf.BlockSize = blockSize
		cf.Blocks = newBlocks
		clientLayout.Set(cf)

		ht := task.NewFileBlockHashesTask(sf.Path, blockSize)
		t.BlockHashes()[sf.Path] = ht
		ht.SetStatus(task.FileBlockHashesProcessing)
		if err := c.sendRequestFileBlockHashes(sf.Path, blockSize); err != nil {
			ht.SetStatus(task.FileBlockHashesFailure)
			return errors.Wrapf(err, "request block hashes %s", sf.Path)
		}
	}
	return nil
}

// addFileWriteTasks builds one FileWriteTask per server file that differs
// from the client's copy: a full rewrite when the client lacks the file or
// its block layout doesn't line up, a partial rewrite of only the differing
// blocks otherwise. Must be called with t.Mutex held.
func (c *RemoteClient) addFileWriteTasks(t *task.SyncClientTask, serverLayout, clientLayout *layout.FileLayout) error {
	for _, sf := range serverLayout.Snapshot() {
		cf, ok := clientLayout.Get(sf.Path)
		if ok && cf.SameContent(sf) {
			continue
		}

		blockSize := sf.BlockSize
		if blockSize == 0 {
			blockSize = layout.DefaultBlockSize
		}
		sameShape := ok && cf.BlockSize == sf.BlockSize && len(cf.Blocks) == len(sf.Blocks) && cf.HasBlocks() && sf.HasBlocks()

		if sameShape {
			c.addFileWriteTaskPartial(t, sf, cf, blockSize)
		} else {
			c.addFileWriteTaskFull(t, sf, blockSize)
		}
	}
	return nil
}

func blockSizeAt(f layout.File, index int, blockSize uint64) uint64 {
	if !f.HasBlocks() {
		return f.Size
	}
	return f.Blocks[index].Size
}

// addFileWriteTaskFull schedules every block of the server file for
// transfer and marks the task Truncate. The flag is not sent on the wire:
// the client sizes its copy from the request's fileSize alone.
func (c *RemoteClient) addFileWriteTaskFull(t *task.SyncClientTask, sf layout.File, blockSize uint64) {
	wt := task.NewFileWriteTask(sf.Path)
	wt.SetFileSize(sf.Size)
	wt.SetBlockSize(blockSize)
	count := layout.BlockCount(sf.Size, blockSize)
	wt.SetBlockCount(int(count))
	wt.SetTruncate(true)
	wt.SetHash(sf.Hash)

	blocks := make([]*task.FileWriteBlockTask, count)
	for i := uint32(0); i < count; i++ {
		blocks[i] = task.NewFileWriteBlockTask(wt, int(i), blockSizeAt(sf, int(i), blockSize))
	}
	wt.SetBlocks(blocks)

	t.WriteFiles()[sf.Path] = wt
}

// addFileWriteTaskPartial schedules only the blocks whose offset/size/hash
// differ from the client's copy (the two layouts already agree on block
// shape, so an index-aligned comparison is enough).
func (c *RemoteClient) addFileWriteTaskPartial(t *task.SyncClientTask, sf, cf layout.File, blockSize uint64) {
	wt := task.NewFileWriteTask(sf.Path)
	wt.SetFileSize(sf.Size)
	wt.SetBlockSize(blockSize)
	wt.SetBlockCount(len(sf.Blocks))
	wt.SetTruncate(false)
	wt.SetHash(sf.Hash)

	var blocks []*task.FileWriteBlockTask
	for _, i := range sf.DiffBlocks(cf) {
		blocks = append(blocks, task.NewFileWriteBlockTask(wt, i, sf.Blocks[i].Size))
	}
	wt.SetBlocks(blocks)

	t.WriteFiles()[sf.Path] = wt
}

// checkFinishedHashes transitions to prepareTasksWriting once every
// requested rehash has come back, and re-enqueues the sync task so a
// worker picks up ProcessPrepareWriting.
func (c *RemoteClient) checkFinishedHashes(t *task.SyncClientTask) {
	t.Mutex.Lock()
	done := len(t.BlockHashes()) == 0
	t.Mutex.Unlock()

	if done {
		t.SetStatus(task.SyncClientPrepareTasksWriting)
		c.addPendingSync()
	}
}

// checkFinishedWrite succeeds the run once every delete and write task has
// been accounted for.
func (c *RemoteClient) checkFinishedWrite(t *task.SyncClientTask) {
	t.Mutex.Lock()
	done := len(t.DeleteFiles()) == 0 && len(t.WriteFiles()) == 0
	t.Mutex.Unlock()

	if done {
		c.succeedSynchronization()
	}
}
