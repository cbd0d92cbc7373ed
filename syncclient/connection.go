package syncclient

import (
	"context"
	"io"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/LordOfDragons/deremotelauncher-sub000/derllog"
	"github.com/LordOfDragons/deremotelauncher-sub000/gamerunner"
	"github.com/LordOfDragons/deremotelauncher-sub000/layout"
	"github.com/LordOfDragons/deremotelauncher-sub000/protocol"
	"github.com/LordOfDragons/deremotelauncher-sub000/task"
	"github.com/LordOfDragons/deremotelauncher-sub000/transport"
)

// supportedFeatures is the bitmask of optional features this client build
// understands; connectRequest reports it, connectAccepted echoes back the
// subset the server also understands.
const supportedFeatures uint32 = 0

// Connect dials address, performs the connectRequest/connectAccepted
// handshake, and returns a LauncherClient ready to have Start called on
// it. Grounded on
// derlLauncherClientConnection::ConnectionEstablished/MessageReceived's
// pre-acceptance phase.
func Connect(address, clientName, baseDir string, runner gamerunner.Runner, logger *zap.Logger) (*LauncherClient, error) {
	conn, err := transport.Dial(address)
	if err != nil {
		return nil, err
	}

	w := protocol.NewWriter(protocol.MessageConnectRequest)
	w.WriteFixed([]byte(protocol.SignatureClient)).WriteUint32(supportedFeatures).WriteString8(clientName)
	if err := conn.Send(w.Bytes()); err != nil {
		conn.Close()
		return nil, errors.Wrap(err, "send connectRequest")
	}

	body, err := conn.Receive()
	if err != nil {
		conn.Close()
		return nil, errors.Wrap(err, "receive connectAccepted")
	}
	if len(body) == 0 || protocol.MessageCode(body[0]) != protocol.MessageConnectAccepted {
		conn.Close()
		return nil, errors.New("expected connectAccepted")
	}

	r := protocol.NewReader(body[1:])
	signature, err := r.ReadFixed(len(protocol.SignatureServer))
	if err != nil {
		conn.Close()
		return nil, errors.Wrap(err, "read server signature")
	}
	if string(signature) != protocol.SignatureServer {
		conn.Close()
		return nil, errors.New("bad server signature")
	}
	if _, err := r.ReadUint32(); err != nil { // enabledFeatures, unused: we support none yet
		conn.Close()
		return nil, errors.Wrap(err, "read enabled features")
	}

	return NewLauncherClient(conn, clientName, baseDir, runner, logger), nil
}

// ReceiveLoop reads and dispatches frames until the connection closes. Run
// it in its own goroutine after Start.
func (c *LauncherClient) ReceiveLoop() {
	for {
		body, err := c.conn.Receive()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				c.logger.Info("connection closed", zap.Error(err))
			}
			c.Stop()
			return
		}
		c.dispatch(body)
		c.conn.Release(body)
	}
}

// dispatch switches on the leading message code, matching
// derlLauncherClientConnection::MessageReceived's post-acceptance phase.
func (c *LauncherClient) dispatch(body []byte) {
	if len(body) == 0 {
		return
	}
	code := protocol.MessageCode(body[0])
	r := protocol.NewReader(body[1:])

	var err error
	switch code {
	case protocol.MessageRequestFileLayout:
		err = c.handleRequestFileLayout()
	case protocol.MessageRequestFileBlockHashes:
		err = c.handleRequestFileBlockHashes(r)
	case protocol.MessageRequestDeleteFile:
		err = c.handleRequestDeleteFile(r)
	case protocol.MessageRequestWriteFile:
		err = c.handleRequestWriteFile(r)
	case protocol.MessageSendFileData:
		err = c.handleSendFileData(r)
	case protocol.MessageRequestFinishWriteFile:
		err = c.handleRequestFinishWriteFile(r)
	case protocol.MessageStartApplication:
		err = c.handleStartApplication(r)
	case protocol.MessageStopApplication:
		err = c.handleStopApplication(r)
	case protocol.MessageLogs:
		err = c.handleLogs(r)
	case protocol.MessageLinkRunState:
		// the server is a read-only observer of this side's run state; it
		// has no run state of its own to push back.
	case protocol.MessageKeepAlive:
		// no-op, just keeps the connection alive
	default:
		c.logger.Warn("unhandled message code", zap.Stringer("code", code))
	}

	if err != nil {
		c.logger.Warn("malformed message", zap.Stringer("code", code), zap.Error(err))
	}
}

// --- request handlers --------------------------------------------------

// handleRequestFileLayout answers with the cached layout if one is valid,
// otherwise queues a scan and answers once it finishes. Grounded on
// derlLauncherClientConnection::pProcessRequestLayout, generalized past
// its original TODO stub.
func (c *LauncherClient) handleRequestFileLayout() error {
	c.layoutMu.Lock()
	l, valid := c.cachedLayout, c.layoutValid
	c.layoutMu.Unlock()

	if valid {
		return c.sendResponseFileLayout(l)
	}

	c.addJob(func() {
		scanned, err := layout.Scan(c.baseDir, layout.DefaultBlockSize)
		if err != nil {
			c.logger.Error("scan base directory", zap.Error(err))
			return
		}
		c.layoutMu.Lock()
		c.cachedLayout = scanned
		c.layoutValid = true
		c.layoutMu.Unlock()

		if err := c.sendResponseFileLayout(scanned); err != nil {
			c.logger.Warn("send responseFileLayout", zap.Error(err))
		}
	})
	return nil
}

// handleRequestFileBlockHashes answers an empty response if the file is
// unknown, rehashes it at the requested block size if the cached shape
// doesn't match, and otherwise answers with the cached per-block hashes
// directly. Grounded on
// derlLauncherClientConnection::pProcessRequestFileBlockHashes.
func (c *LauncherClient) handleRequestFileBlockHashes(r *protocol.Reader) error {
	path, err := r.ReadString16()
	if err != nil {
		return err
	}
	blockSize64, err := r.ReadUint32()
	if err != nil {
		return err
	}
	blockSize := uint64(blockSize64)

	c.layoutMu.Lock()
	l := c.cachedLayout
	c.layoutMu.Unlock()
	if l == nil {
		return c.sendResponseFileBlockHashesEmpty(path, blockSize)
	}

	f, ok := l.Get(path)
	if !ok {
		return c.sendResponseFileBlockHashesEmpty(path, blockSize)
	}

	if f.HasBlocks() && f.BlockSize == blockSize {
		return c.sendResponseFileBlockHashes(f)
	}

	c.addJob(func() {
		abs := filepath.Join(c.baseDir, filepath.FromSlash(path))
		blocks, err := layout.BuildBlocks(abs, f.Size, blockSize)
		if err != nil {
			c.logger.Error("rehash blocks", zap.String("path", path), zap.Error(err))
			if sendErr := c.sendResponseFileBlockHashesEmpty(path, blockSize); sendErr != nil {
				c.logger.Warn("send responseFileBlockHashes", zap.Error(sendErr))
			}
			return
		}
		f.BlockSize = blockSize
		f.Blocks = blocks
		c.layoutMu.Lock()
		if c.cachedLayout != nil {
			c.cachedLayout.Set(f)
		}
		c.layoutMu.Unlock()

		if err := c.sendResponseFileBlockHashes(f); err != nil {
			c.logger.Warn("send responseFileBlockHashes", zap.Error(err))
		}
	})
	return nil
}

// handleRequestDeleteFile queues the actual unlink on the job pool so the
// receive loop never blocks on disk I/O, then answers once it's done.
// Grounded on derlLauncherClientConnection::pProcessRequestDeleteFiles,
// narrowed to this protocol's one-path-per-message framing.
func (c *LauncherClient) handleRequestDeleteFile(r *protocol.Reader) error {
	path, err := r.ReadString16()
	if err != nil {
		return err
	}

	c.addJob(func() {
		result := protocol.DeleteFileSuccess
		if err := c.fileIO.Delete(path); err != nil {
			c.logger.Error("delete file", zap.String("path", path), zap.Error(err))
			result = protocol.DeleteFileFailure
		}
		c.invalidateLayout()
		if err := c.sendResponseDeleteFile(path, result); err != nil {
			c.logger.Warn("send responseDeleteFile", zap.Error(err))
		}
	})
	return nil
}

// handleRequestWriteFile opens the file for writing (creating it if
// missing, without truncating it) and resizes it to the requested fileSize,
// tracking the in-flight shape so subsequent
// sendFileData/requestFinishWriteFile frames for the same path can be
// applied. Grounded on
// derlLauncherClientConnection::pProcessRequestWriteFiles.
func (c *LauncherClient) handleRequestWriteFile(r *protocol.Reader) error {
	path, err := r.ReadString16()
	if err != nil {
		return err
	}
	fileSize, err := r.ReadUint64()
	if err != nil {
		return err
	}
	blockSize, err := r.ReadUint64()
	if err != nil {
		return err
	}
	if _, err := r.ReadUint32(); err != nil { // block count, re-derivable from fileSize/blockSize
		return err
	}

	c.writeMu.Lock()
	c.writes[path] = &writeState{fileSize: fileSize, blockSize: blockSize}
	c.writeMu.Unlock()

	c.addJob(func() {
		result := protocol.WriteFileSuccess
		if err := c.fileIO.Open(path, true); err != nil {
			c.logger.Error("open file for write", zap.String("path", path), zap.Error(err))
			result = protocol.WriteFileFailure
		}
		// Resize to the target shape without touching bytes before the cut
		// point: a full rewrite ends up fully overwritten by the blocks that
		// follow regardless, a partial rewrite needs its untouched blocks
		// left alone, and either way the file must end at fileSize.
		if result == protocol.WriteFileSuccess {
			if err := c.fileIO.Truncate(fileSize); err != nil {
				c.logger.Error("resize file for write", zap.String("path", path), zap.Error(err))
				result = protocol.WriteFileFailure
			}
		}
		if result == protocol.WriteFileSuccess {
			c.writeMu.Lock()
			if ws, ok := c.writes[path]; ok {
				ws.prepared = true
				ws.status = task.FileWriteProcessing
			}
			c.writeMu.Unlock()
		} else {
			c.writeMu.Lock()
			delete(c.writes, path)
			c.writeMu.Unlock()
		}
		if err := c.sendResponseWriteFile(path, result); err != nil {
			c.logger.Warn("send responseWriteFile", zap.Error(err))
		}
	})
	return nil
}

// handleSendFileData applies one block's bytes at its offset. The
// original's own handler left this exact step stubbed out
// (pProcessSendFileData comments out its reader.Read call); this is the
// actual write-to-disk logic that stub was standing in for.
func (c *LauncherClient) handleSendFileData(r *protocol.Reader) error {
	path, err := r.ReadString16()
	if err != nil {
		return err
	}
	index, err := r.ReadUint32()
	if err != nil {
		return err
	}
	data := r.ReadRaw()

	c.writeMu.Lock()
	ws, ok := c.writes[path]
	c.writeMu.Unlock()
	if !ok || !ws.prepared {
		c.logger.Warn("sendFileData for unknown or unprepared write", zap.String("path", path))
		return c.sendFileDataReceived(path, index, protocol.FileDataReceivedFailure)
	}

	buf := append([]byte(nil), data...)
	offset := int64(ws.blockSize) * int64(index)

	c.addJob(func() {
		result := protocol.FileDataReceivedSuccess
		if _, err := c.fileIO.WriteAt(buf, offset); err != nil {
			c.logger.Error("write block", zap.String("path", path), zap.Uint32("index", index), zap.Error(err))
			result = protocol.FileDataReceivedFailure
		}
		if err := c.sendFileDataReceived(path, index, result); err != nil {
			c.logger.Warn("send fileDataReceived", zap.Error(err))
		}
	})
	return nil
}

// handleRequestFinishWriteFile closes the file, then queues the finalize
// check: rehash the written file and compare it against expectedHash,
// answering success only on a match. A mismatch or any I/O failure along the
// way marks the write task's status task.FileWriteValidationFailed (or
// task.FileWriteFailure for a plain I/O error), invalidates the cached
// layout, and answers failure — matching the HashMismatch row of the error
// taxonomy and Scenario E. An untracked finish-request is acknowledged
// negatively rather than ignored, matching
// derlLauncherClientConnection::pProcessRequestFinishWriteFiles.
func (c *LauncherClient) handleRequestFinishWriteFile(r *protocol.Reader) error {
	path, err := r.ReadString16()
	if err != nil {
		return err
	}
	expectedHash, err := r.ReadBytes8()
	if err != nil {
		return err
	}
	var expected [32]byte
	copy(expected[:], expectedHash)

	c.writeMu.Lock()
	ws, ok := c.writes[path]
	c.writeMu.Unlock()

	if !ok {
		return c.sendResponseFinishWriteFile(path, protocol.WriteFileFailure)
	}

	if err := c.fileIO.Close(); err != nil {
		c.logger.Error("close written file", zap.String("path", path), zap.Error(err))
		c.writeMu.Lock()
		ws.status = task.FileWriteFailure
		delete(c.writes, path)
		c.writeMu.Unlock()
		c.invalidateLayout()
		return c.sendResponseFinishWriteFile(path, protocol.WriteFileFailure)
	}

	c.addJob(func() {
		result := protocol.WriteFileSuccess
		abs := filepath.Join(c.baseDir, filepath.FromSlash(path))
		actual, err := layout.HashFile(abs)
		switch {
		case err != nil:
			c.logger.Error("hash finished write", zap.String("path", path), zap.Error(err))
			ws.status = task.FileWriteFailure
			result = protocol.WriteFileFailure
		case actual != expected:
			c.logger.Warn("finalize hash mismatch", zap.String("path", path))
			ws.status = task.FileWriteValidationFailed
			result = protocol.WriteFileFailure
		default:
			ws.status = task.FileWriteSuccess
		}

		c.writeMu.Lock()
		delete(c.writes, path)
		c.writeMu.Unlock()

		if result != protocol.WriteFileSuccess {
			c.invalidateLayout()
		}
		if err := c.sendResponseFinishWriteFile(path, result); err != nil {
			c.logger.Warn("send responseFinishWriteFile", zap.Error(err))
		}
	})
	return nil
}

// handleStartApplication launches the game via the attached Runner and
// pushes the new run state. The original's pProcessStartApplication reads
// its fields and does nothing further (an empty body); this wires the
// parsed fields into an actual launch. arguments travels the wire as one
// str16 (derlLauncherClientConnection::pProcessStartApplication reads it as
// a single std::string), so it is split on whitespace into the argv slice
// RunParameters expects.
func (c *LauncherClient) handleStartApplication(r *protocol.Reader) error {
	gameConfig, err := r.ReadString16()
	if err != nil {
		return err
	}
	profileName, err := r.ReadString8()
	if err != nil {
		return err
	}
	arguments, err := r.ReadString16()
	if err != nil {
		return err
	}

	if c.runner == nil {
		c.logger.Warn("startApplication with no runner attached")
		return nil
	}
	params := gamerunner.RunParameters{
		GameConfig:  gameConfig,
		ProfileName: profileName,
		Arguments:   strings.Fields(arguments),
	}
	if err := c.runner.Run(context.Background(), c.baseDir, params); err != nil {
		c.logger.Error("start game", zap.Error(err))
		return nil
	}
	c.runState.Set(protocol.RunStateRunning)
	return nil
}

// handleStopApplication stops or kills the running game according to mode.
// The original's pProcessStopApplication parses mode and does nothing
// further; this wires it into the attached Runner.
func (c *LauncherClient) handleStopApplication(r *protocol.Reader) error {
	modeByte, err := r.ReadByte()
	if err != nil {
		return err
	}
	if c.runner == nil {
		return nil
	}

	var stopErr error
	switch protocol.StopApplicationMode(modeByte) {
	case protocol.StopModeKillProcess:
		stopErr = c.runner.Kill()
	default:
		stopErr = c.runner.Stop()
	}
	if stopErr != nil && !errors.Is(stopErr, gamerunner.ErrNotRunning) {
		c.logger.Warn("stop game", zap.Error(stopErr))
	}
	c.runState.Set(protocol.RunStateStopped)
	return nil
}

func (c *LauncherClient) handleLogs(r *protocol.Reader) error {
	level, err := r.ReadByte()
	if err != nil {
		return err
	}
	source, err := r.ReadString8()
	if err != nil {
		return err
	}
	message, err := r.ReadString16()
	if err != nil {
		return err
	}
	derllog.LogMessage(c.logger, protocol.LogLevel(level), source, message)
	return nil
}

// --- outbound message builders ------------------------------------------

func (c *LauncherClient) sendResponseFileLayout(l *layout.FileLayout) error {
	files := l.Snapshot()
	w := protocol.NewWriter(protocol.MessageResponseFileLayout)
	w.WriteUint32(uint32(len(files)))
	for _, f := range files {
		w.WriteString16(f.Path).WriteUint64(f.Size)
		if f.HashSet {
			w.WriteBytes8(f.Hash[:])
		} else {
			w.WriteBytes8(nil)
		}
	}
	return c.conn.Send(w.Bytes())
}

func (c *LauncherClient) sendResponseFileBlockHashesEmpty(path string, blockSize uint64) error {
	w := protocol.NewWriter(protocol.MessageResponseFileBlockHashes)
	w.WriteString16(path).WriteUint32(0).WriteUint32(uint32(blockSize))
	return c.conn.Send(w.Bytes())
}

func (c *LauncherClient) sendResponseFileBlockHashes(f layout.File) error {
	w := protocol.NewWriter(protocol.MessageResponseFileBlockHashes)
	w.WriteString16(f.Path).WriteUint32(uint32(len(f.Blocks))).WriteUint32(uint32(f.BlockSize))
	for _, b := range f.Blocks {
		if b.HashSet {
			w.WriteBytes8(b.Hash[:])
		} else {
			w.WriteBytes8(nil)
		}
	}
	return c.conn.Send(w.Bytes())
}

func (c *LauncherClient) sendResponseDeleteFile(path string, result protocol.DeleteFileResult) error {
	w := protocol.NewWriter(protocol.MessageResponseDeleteFile)
	w.WriteString16(path).WriteByte(byte(result))
	return c.conn.Send(w.Bytes())
}

func (c *LauncherClient) sendResponseWriteFile(path string, result protocol.WriteFileResult) error {
	w := protocol.NewWriter(protocol.MessageResponseWriteFile)
	w.WriteString16(path).WriteByte(byte(result))
	return c.conn.Send(w.Bytes())
}

func (c *LauncherClient) sendFileDataReceived(path string, index uint32, result protocol.FileDataReceivedResult) error {
	w := protocol.NewWriter(protocol.MessageFileDataReceived)
	w.WriteString16(path).WriteUint32(index).WriteByte(byte(result))
	return c.conn.Send(w.Bytes())
}

func (c *LauncherClient) sendResponseFinishWriteFile(path string, result protocol.WriteFileResult) error {
	w := protocol.NewWriter(protocol.MessageResponseFinishWriteFile)
	w.WriteString16(path).WriteByte(byte(result))
	return c.conn.Send(w.Bytes())
}

func (c *LauncherClient) pushRunState(status protocol.RunStateStatus) {
	w := protocol.NewWriter(protocol.MessageLinkRunState)
	w.WriteByte(byte(status))
	if err := c.conn.Send(w.Bytes()); err != nil {
		c.logger.Warn("push run state", zap.Error(err))
	}
}
