// Package syncclient implements the client half of a synchronization run:
// answering a server's layout/hash/delete/write requests against a local
// base directory, and launching or stopping the synced game on request. It
// is grounded on derlLauncherClientConnection.cpp and
// derlTaskProcessorLauncherClient.cpp.
package syncclient

import (
	"sync"

	"go.uber.org/zap"

	"github.com/LordOfDragons/deremotelauncher-sub000/gamerunner"
	"github.com/LordOfDragons/deremotelauncher-sub000/layout"
	"github.com/LordOfDragons/deremotelauncher-sub000/protocol"
	"github.com/LordOfDragons/deremotelauncher-sub000/task"
	"github.com/LordOfDragons/deremotelauncher-sub000/taskproc"
	"github.com/LordOfDragons/deremotelauncher-sub000/transport"
)

// writeState tracks one file mid-transfer: the write request's declared
// shape, whether the local file has been opened yet, and the phase of the
// shared task.FileWriteStatus lifecycle it has reached — including, on the
// finalize check, task.FileWriteValidationFailed. Unlike the server's
// FileWriteTask, there is nothing to pipeline here — the server paces the
// exchange, this side just applies whatever arrives.
type writeState struct {
	fileSize  uint64
	blockSize uint64
	prepared  bool
	status    task.FileWriteStatus
}

// LauncherClient owns one connection to a sync server: the connection
// itself, a cached local FileLayout answered from until told otherwise, the
// in-flight delete/write operations a server request started, the local
// task processor pool those operations run on, and the game process
// Runner that startApplication/stopApplication drive.
type LauncherClient struct {
	Name string

	logger   *zap.Logger
	conn     *transport.Conn
	baseDir  string
	fileIO   *taskproc.OSFileIO
	runState *transport.LinkedRunState
	runner   gamerunner.Runner

	layoutMu    sync.Mutex
	cachedLayout *layout.FileLayout
	layoutValid bool

	writeMu sync.Mutex
	writes  map[string]*writeState

	pool *taskproc.Pool

	jobsMu sync.Mutex
	jobs   []func()

	watcher *dirtyWatcher

	OnConnectionClosed func(*LauncherClient)
}

// NewLauncherClient wires an already-connected connection into a client
// ready to have Start called on it. runner may be nil, in which case
// startApplication/stopApplication requests are ignored (no reply is sent)
// — useful for tests that don't care about the game process.
func NewLauncherClient(conn *transport.Conn, name, baseDir string, runner gamerunner.Runner, logger *zap.Logger) *LauncherClient {
	c := &LauncherClient{
		Name:    name,
		logger:  logger.Named("launcherclient"),
		conn:    conn,
		baseDir: baseDir,
		fileIO:  taskproc.NewOSFileIO(baseDir),
		runner:  runner,
		writes:  make(map[string]*writeState),
	}
	c.runState = transport.NewLinkedRunState(func(status protocol.RunStateStatus) {
		c.pushRunState(status)
	})
	c.pool = taskproc.NewPool(2, c.runJob)
	return c
}

// Start launches the local job pool and the directory watcher, if one was
// attached via SetWatcher.
func (c *LauncherClient) Start() {
	c.pool.Start()
	if c.watcher != nil {
		c.watcher.Start()
	}
}

// Stop halts the job pool and watcher and closes the connection.
func (c *LauncherClient) Stop() {
	if c.watcher != nil {
		c.watcher.Stop()
	}
	c.pool.Stop()
	if err := c.conn.Close(); err != nil {
		c.logger.Warn("close connection", zap.Error(err))
	}
	if c.OnConnectionClosed != nil {
		c.OnConnectionClosed(c)
	}
}

// RunState returns the client's own mirrored run-status value, the side
// that actually knows whether the game process is running.
func (c *LauncherClient) RunState() *transport.LinkedRunState { return c.runState }

// invalidateLayout marks the cached layout as needing a rescan before it
// can answer the next requestFileLayout, matching "IoFailure ... mark
// layout dirty" — used both by the fsnotify watcher and by a failed
// write/delete that leaves the directory in an unknown state.
func (c *LauncherClient) invalidateLayout() {
	c.layoutMu.Lock()
	c.layoutValid = false
	c.layoutMu.Unlock()
}

func (c *LauncherClient) addJob(job func()) {
	c.jobsMu.Lock()
	c.jobs = append(c.jobs, job)
	c.jobsMu.Unlock()
	c.pool.Wake()
}

func (c *LauncherClient) runJob() bool {
	c.jobsMu.Lock()
	if len(c.jobs) == 0 {
		c.jobsMu.Unlock()
		return false
	}
	job := c.jobs[0]
	c.jobs = c.jobs[1:]
	c.jobsMu.Unlock()

	job()
	return true
}
