package syncclient

import (
	"net"
	"os"
	"testing"

	"go.uber.org/zap"

	"github.com/LordOfDragons/deremotelauncher-sub000/taskproc"
	"github.com/LordOfDragons/deremotelauncher-sub000/transport"
)

func writeFile(path string, content []byte) error {
	return os.WriteFile(path, content, 0o644)
}

// pipeClient returns a LauncherClient wired to one end of an in-memory
// pipe, with the other end available for a test to read frames off of or
// send frames into dispatch.
func pipeClient(t *testing.T, baseDir string) (*LauncherClient, *transport.Conn) {
	t.Helper()
	a, b := net.Pipe()
	c := &LauncherClient{
		logger:  zap.NewNop(),
		conn:    transport.NewConn(a),
		baseDir: baseDir,
		fileIO:  taskproc.NewOSFileIO(baseDir),
		writes:  make(map[string]*writeState),
	}
	c.pool = taskproc.NewPool(2, c.runJob)
	return c, transport.NewConn(b)
}
