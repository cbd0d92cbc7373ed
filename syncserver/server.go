package syncserver

import (
	"net"
	"strconv"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/LordOfDragons/deremotelauncher-sub000/protocol"
	"github.com/LordOfDragons/deremotelauncher-sub000/transport"
)

// Server listens for incoming connections and hands each one through the
// connect handshake into a RemoteClient of its own. Grounded on
// derlRemoteClientConnection.cpp's pMessageReceivedConnect handshake path
// and the client registry implied by derlServer.h.
type Server struct {
	BaseDir string
	Logger  *zap.Logger

	// MaxInProgressFiles and MaxInProgressBlocks cap each connected
	// client's pipelined write exchange; zero means use the package
	// defaults (DefaultMaxInProgressFiles/DefaultMaxInProgressBlocks).
	MaxInProgressFiles  int
	MaxInProgressBlocks int

	ln net.Listener

	mu      sync.Mutex
	clients map[string]*RemoteClient
}

// NewServer creates a server that will serve files out of baseDir.
func NewServer(baseDir string, logger *zap.Logger) *Server {
	return &Server{
		BaseDir: baseDir,
		Logger:  logger.Named("syncserver"),
		clients: make(map[string]*RemoteClient),
	}
}

// Listen binds address (host or host:port, default port 3413).
func (s *Server) Listen(address string) error {
	addr, err := resolveAddress(address)
	if err != nil {
		return err
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.Wrapf(err, "listen %s", addr)
	}
	s.ln = ln
	return nil
}

// Serve accepts connections until the listener is closed, handshaking and
// starting each one's synchronization run in its own goroutine.
func (s *Server) Serve() error {
	for {
		nc, err := s.ln.Accept()
		if err != nil {
			return err
		}
		go s.handleConnection(nc)
	}
}

// Close stops accepting new connections and stops every connected client.
func (s *Server) Close() error {
	var err error
	if s.ln != nil {
		err = s.ln.Close()
	}

	s.mu.Lock()
	clients := make([]*RemoteClient, 0, len(s.clients))
	for _, c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.Unlock()

	for _, c := range clients {
		c.Stop()
	}
	return err
}

func (s *Server) handleConnection(nc net.Conn) {
	conn := transport.NewConn(nc)
	client, err := s.handshake(conn)
	if err != nil {
		s.Logger.Warn("handshake failed", zap.Stringer("remote", nc.RemoteAddr()), zap.Error(err))
		conn.Close()
		return
	}

	s.mu.Lock()
	s.clients[client.ID.String()] = client
	s.mu.Unlock()

	client.OnConnectionClosed = func(rc *RemoteClient) {
		s.mu.Lock()
		delete(s.clients, rc.ID.String())
		s.mu.Unlock()
	}

	client.Start()
	client.ReceiveLoop()
}

// handshake performs the connectRequest/connectAccepted exchange and
// returns a RemoteClient ready to Start. Grounded on
// derlRemoteClientConnection::pMessageReceivedConnect.
func (s *Server) handshake(conn *transport.Conn) (*RemoteClient, error) {
	body, err := conn.Receive()
	if err != nil {
		return nil, errors.Wrap(err, "receive connectRequest")
	}
	if len(body) == 0 || protocol.MessageCode(body[0]) != protocol.MessageConnectRequest {
		return nil, errors.New("expected connectRequest")
	}

	r := protocol.NewReader(body[1:])
	signature, err := r.ReadFixed(len(protocol.SignatureClient))
	if err != nil {
		return nil, errors.Wrap(err, "read client signature")
	}
	if string(signature) != protocol.SignatureClient {
		return nil, errors.New("bad client signature")
	}
	requestedFeatures, err := r.ReadUint32()
	if err != nil {
		return nil, errors.Wrap(err, "read requested features")
	}
	name, err := r.ReadString8()
	if err != nil {
		return nil, errors.Wrap(err, "read client name")
	}

	enabledFeatures := requestedFeatures & supportedFeatures

	w := protocol.NewWriter(protocol.MessageConnectAccepted)
	w.WriteFixed([]byte(protocol.SignatureServer)).WriteUint32(enabledFeatures)
	if err := conn.Send(w.Bytes()); err != nil {
		return nil, errors.Wrap(err, "send connectAccepted")
	}

	client := NewRemoteClient(conn, name, s.BaseDir, s.Logger)
	if s.MaxInProgressFiles > 0 {
		client.maxInProgressFiles = s.MaxInProgressFiles
	}
	if s.MaxInProgressBlocks > 0 {
		client.maxInProgressBlocks = s.MaxInProgressBlocks
	}

	runW := protocol.NewWriter(protocol.MessageLinkRunState)
	runW.WriteByte(byte(client.runState.Get()))
	if err := conn.Send(runW.Bytes()); err != nil {
		return nil, errors.Wrap(err, "send initial run state")
	}

	return client, nil
}

// resolveAddress fills in protocol.DefaultPort when address carries no
// port, matching derlLauncher.h's FromString contract.
func resolveAddress(address string) (string, error) {
	host, port, err := net.SplitHostPort(address)
	if err != nil {
		return net.JoinHostPort(address, strconv.Itoa(protocol.DefaultPort)), nil
	}
	return net.JoinHostPort(host, port), nil
}
