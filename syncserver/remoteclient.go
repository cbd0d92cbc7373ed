// Package syncserver implements the server half of a synchronization run:
// accepting connections, diffing a connected client's file layout against
// the server's own base directory, and driving the pipelined delete/rehash/
// write exchange to bring the client's copy in line. It is grounded on
// derlRemoteClientConnection.cpp and derlTaskProcessorRemoteClient.cpp.
package syncserver

import (
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/LordOfDragons/deremotelauncher-sub000/layout"
	"github.com/LordOfDragons/deremotelauncher-sub000/protocol"
	"github.com/LordOfDragons/deremotelauncher-sub000/task"
	"github.com/LordOfDragons/deremotelauncher-sub000/taskproc"
	"github.com/LordOfDragons/deremotelauncher-sub000/transport"
)

// DefaultMaxInProgressFiles and DefaultMaxInProgressBlocks are the literal
// caps derlRemoteClientConnection's constructor hard-codes.
const (
	DefaultMaxInProgressFiles  = 1
	DefaultMaxInProgressBlocks = 2
)

// RemoteClient owns one connected client's whole synchronization lifecycle:
// its connection, the two file layouts being diffed, the single in-flight
// SyncClientTask, and the worker pool draining its pending tasks.
type RemoteClient struct {
	ID   uuid.UUID
	Name string

	logger  *zap.Logger
	conn    *transport.Conn
	baseDir string
	fileIO  *taskproc.OSFileIO
	runState *transport.LinkedRunState

	maxInProgressFiles  int
	maxInProgressBlocks int

	countMu               sync.Mutex
	countInProgressFiles  int
	countInProgressBlocks int

	pendingMu     sync.Mutex
	pendingLayout []*task.FileLayoutTask
	pendingBlocks []*task.FileWriteBlockTask
	pendingSync   bool

	pool *taskproc.Pool

	layoutServerTask *task.FileLayoutTask
	layoutClientTask *task.FileLayoutTask
	syncTask         *task.SyncClientTask

	OnConnectionClosed func(*RemoteClient)
}

// NewRemoteClient wires a freshly accepted connection into a RemoteClient
// ready to have Start called on it.
func NewRemoteClient(conn *transport.Conn, name, baseDir string, logger *zap.Logger) *RemoteClient {
	c := &RemoteClient{
		ID:                  uuid.New(),
		Name:                name,
		logger:              logger.Named("remoteclient").With(zap.String("client", name)),
		conn:                conn,
		baseDir:             baseDir,
		fileIO:              taskproc.NewOSFileIO(baseDir),
		maxInProgressFiles:  DefaultMaxInProgressFiles,
		maxInProgressBlocks: DefaultMaxInProgressBlocks,
	}
	c.runState = transport.NewLinkedRunState(func(status protocol.RunStateStatus) {
		c.logger.Info("run state changed", zap.Stringer("status", status))
	})
	c.pool = taskproc.NewPool(2, c.runTask)
	return c
}

// Start launches the task processor pool and kicks off a synchronization
// run against the client's base directory.
func (c *RemoteClient) Start() {
	c.pool.Start()
	c.StartSynchronization()
}

// Stop halts the task processor pool and closes the connection.
func (c *RemoteClient) Stop() {
	c.pool.Stop()
	if err := c.conn.Close(); err != nil {
		c.logger.Warn("close connection", zap.Error(err))
	}
	if c.OnConnectionClosed != nil {
		c.OnConnectionClosed(c)
	}
}

// RunState returns the client's mirrored run-status value.
func (c *RemoteClient) RunState() *transport.LinkedRunState { return c.runState }

// StartSynchronization begins a new synchronization run: it resets the
// SyncClientTask, scans the server's own base directory locally (queued
// for a worker), and requests the client's layout over the wire.
func (c *RemoteClient) StartSynchronization() {
	c.syncTask = task.NewSyncClientTask()
	c.layoutServerTask = task.NewFileLayoutTask()
	c.layoutClientTask = task.NewFileLayoutTask()
	c.syncTask.SetLayoutServerTask(c.layoutServerTask)
	c.syncTask.SetLayoutClientTask(c.layoutClientTask)

	c.addPendingLayout(c.layoutServerTask)

	if err := c.sendRequestFileLayout(); err != nil {
		c.failSynchronization(err.Error())
	}
}

// --- pending queue: mirrors NextPendingTask's linear scan + predicate match ---

func (c *RemoteClient) addPendingLayout(t *task.FileLayoutTask) {
	c.pendingMu.Lock()
	c.pendingLayout = append(c.pendingLayout, t)
	c.pendingMu.Unlock()
	c.pool.Wake()
}

func (c *RemoteClient) addPendingBlock(b *task.FileWriteBlockTask) {
	c.pendingMu.Lock()
	c.pendingBlocks = append(c.pendingBlocks, b)
	c.pendingMu.Unlock()
	c.pool.Wake()
}

func (c *RemoteClient) addPendingSync() {
	c.pendingMu.Lock()
	c.pendingSync = true
	c.pendingMu.Unlock()
	c.pool.Wake()
}

// nextPendingTask picks the first task whose preconditions currently hold:
// layout scans and write blocks are always runnable once queued; the sync
// task itself only when it is waiting to start hashing or start writing.
func (c *RemoteClient) nextPendingTask() (any, bool) {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()

	if len(c.pendingLayout) > 0 {
		t := c.pendingLayout[0]
		c.pendingLayout = c.pendingLayout[1:]
		return t, true
	}
	if len(c.pendingBlocks) > 0 {
		b := c.pendingBlocks[0]
		c.pendingBlocks = c.pendingBlocks[1:]
		return b, true
	}
	if c.pendingSync {
		switch c.syncTask.Status() {
		case task.SyncClientPending, task.SyncClientPrepareTasksWriting:
			c.pendingSync = false
			return c.syncTask, true
		}
	}
	return nil, false
}

func (c *RemoteClient) runTask() bool {
	item, ok := c.nextPendingTask()
	if !ok {
		return false
	}
	switch t := item.(type) {
	case *task.FileLayoutTask:
		c.processFileLayoutServer(t)
	case *task.FileWriteBlockTask:
		c.processReadFileBlock(t)
	case *task.SyncClientTask:
		c.processSyncClientTask(t)
	}
	return true
}

func (c *RemoteClient) processFileLayoutServer(t *task.FileLayoutTask) {
	t.SetStatus(task.FileLayoutProcessing)
	l, err := layout.Scan(c.baseDir, layout.DefaultBlockSize)
	if err != nil {
		t.SetStatus(task.FileLayoutFailure)
		c.failSynchronization(err.Error())
		return
	}
	t.SetLayout(l)
	t.SetStatus(task.FileLayoutSuccess)
	c.maybeStartHashing()
}

// maybeStartHashing enqueues the sync task once both the server's own scan
// and the client's reported layout have finished, whichever completes last.
func (c *RemoteClient) maybeStartHashing() {
	if c.layoutServerTask.Status() == task.FileLayoutSuccess &&
		c.layoutClientTask.Status() == task.FileLayoutSuccess {
		c.addPendingSync()
	}
}

func (c *RemoteClient) processSyncClientTask(t *task.SyncClientTask) {
	switch t.Status() {
	case task.SyncClientPending:
		c.processPrepareHashing(t)
	case task.SyncClientPrepareTasksWriting:
		c.processPrepareWriting(t)
	}
}

func (c *RemoteClient) failSynchronization(message string) {
	c.logger.Error("synchronization failed", zap.String("reason", message))
	c.syncTask.SetErr(errors.New(message))
	c.syncTask.SetStatus(task.SyncClientFailure)
}

func (c *RemoteClient) succeedSynchronization() {
	c.logger.Info("synchronization succeeded")
	c.syncTask.SetStatus(task.SyncClientSuccess)
}
