package syncserver

import (
	"io"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/LordOfDragons/deremotelauncher-sub000/derllog"
	"github.com/LordOfDragons/deremotelauncher-sub000/layout"
	"github.com/LordOfDragons/deremotelauncher-sub000/protocol"
	"github.com/LordOfDragons/deremotelauncher-sub000/task"
)

// supportedFeatures is the bitmask of optional features this server build
// understands; connectAccepted reports requestedFeatures masked against it.
const supportedFeatures uint32 = 0

// ReceiveLoop reads and dispatches frames until the connection closes. Run
// it in its own goroutine per accepted connection.
func (c *RemoteClient) ReceiveLoop() {
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
// derlRemoteClientConnection::ProcessReceivedMessages.
func (c *RemoteClient) dispatch(body []byte) {
	if len(body) == 0 {
		return
	}
	code := protocol.MessageCode(body[0])
	r := protocol.NewReader(body[1:])

	var err error
	switch code {
	case protocol.MessageResponseFileLayout:
		err = c.handleResponseFileLayout(r)
	case protocol.MessageResponseFileBlockHashes:
		err = c.handleResponseFileBlockHashes(r)
	case protocol.MessageResponseDeleteFile:
		err = c.handleResponseDeleteFile(r)
	case protocol.MessageResponseWriteFile:
		err = c.handleResponseWriteFile(r)
	case protocol.MessageFileDataReceived:
		err = c.handleFileDataReceived(r)
	case protocol.MessageResponseFinishWriteFile:
		err = c.handleResponseFinishWriteFile(r)
	case protocol.MessageLogs:
		err = c.handleLogs(r)
	case protocol.MessageLinkRunState:
		err = c.handleLinkRunState(r)
	case protocol.MessageKeepAlive:
		// no-op, just keeps the connection alive
	default:
		c.logger.Warn("unhandled message code", zap.Stringer("code", code))
	}

	if err != nil {
		c.logger.Warn("malformed message", zap.Stringer("code", code), zap.Error(err))
	}
}

// getSyncTask returns the current sync task if it is in one of the
// expected statuses, logging and returning false otherwise — late or
// duplicate responses for a phase already moved past are tolerated rather
// than treated as failures. Grounded on
// derlRemoteClientConnection::pGetSyncTask.
func (c *RemoteClient) getSyncTask(context string, expected ...task.SyncClientStatus) (*task.SyncClientTask, bool) {
	t := c.syncTask
	if t == nil {
		c.logger.Warn("no active sync task", zap.String("context", context))
		return nil, false
	}
	status := t.Status()
	for _, e := range expected {
		if status == e {
			return t, true
		}
	}
	c.logger.Warn("sync task not in expected status", zap.String("context", context), zap.Stringer("status", status))
	return nil, false
}

// --- response handlers -----------------------------------------------------

func (c *RemoteClient) handleResponseFileLayout(r *protocol.Reader) error {
	if _, ok := c.getSyncTask("responseFileLayout", task.SyncClientPending); !ok {
		return nil
	}

	count, err := r.ReadUint32()
	if err != nil {
		return err
	}

	l := layout.NewFileLayout()
	for i := uint32(0); i < count; i++ {
		path, err := r.ReadString16()
		if err != nil {
			return err
		}
		size, err := r.ReadUint64()
		if err != nil {
			return err
		}
		hash, err := r.ReadBytes8()
		if err != nil {
			return err
		}
		f := layout.File{Path: path, Size: size}
		if len(hash) == 32 {
			copy(f.Hash[:], hash)
			f.HashSet = true
		}
		l.Set(f)
	}

	c.layoutClientTask.SetLayout(l)
	c.layoutClientTask.SetStatus(task.FileLayoutSuccess)
	c.maybeStartHashing()
	return nil
}

func (c *RemoteClient) handleResponseFileBlockHashes(r *protocol.Reader) error {
	t, ok := c.getSyncTask("responseFileBlockHashes", task.SyncClientProcessHashing)
	if !ok {
		return nil
	}

	path, err := r.ReadString16()
	if err != nil {
		return err
	}
	count, err := r.ReadUint32()
	if err != nil {
		return err
	}
	if _, err := r.ReadUint32(); err != nil { // block size, echoed back; not checked
		return err
	}

	t.Mutex.Lock()
	ht, exists := t.BlockHashes()[path]
	t.Mutex.Unlock()
	if !exists || ht.Status() != task.FileBlockHashesProcessing {
		c.logger.Warn("responseFileBlockHashes for unknown or stale task", zap.String("path", path))
		for i := uint32(0); i < count; i++ {
			if _, err := r.ReadBytes8(); err != nil {
				return err
			}
		}
		return nil
	}

	clientLayout := c.layoutClientTask.Layout()
	cf, _ := clientLayout.Get(path)
	for i := uint32(0); i < count && int(i) < len(cf.Blocks); i++ {
		hash, err := r.ReadBytes8()
		if err != nil {
			return err
		}
		if len(hash) == 32 {
			copy(cf.Blocks[i].Hash[:], hash)
			cf.Blocks[i].HashSet = true
		}
	}
	clientLayout.Set(cf)

	ht.SetStatus(task.FileBlockHashesSuccess)
	t.Mutex.Lock()
	delete(t.BlockHashes(), path)
	t.Mutex.Unlock()

	c.checkFinishedHashes(t)
	return nil
}

func (c *RemoteClient) handleResponseDeleteFile(r *protocol.Reader) error {
	t, ok := c.getSyncTask("responseDeleteFile", task.SyncClientProcessWriting)
	if !ok {
		return nil
	}

	path, err := r.ReadString16()
	if err != nil {
		return err
	}
	result, err := r.ReadByte()
	if err != nil {
		return err
	}

	t.Mutex.Lock()
	dt, exists := t.DeleteFiles()[path]
	t.Mutex.Unlock()
	if !exists {
		c.logger.Warn("responseDeleteFile for unknown path", zap.String("path", path))
		return nil
	}

	if protocol.DeleteFileResult(result) != protocol.DeleteFileSuccess {
		dt.SetStatus(task.FileDeleteFailure)
		c.failSynchronization("client failed to delete " + path)
		return nil
	}

	dt.SetStatus(task.FileDeleteSuccess)
	t.Mutex.Lock()
	delete(t.DeleteFiles(), path)
	t.Mutex.Unlock()

	c.checkFinishedWrite(t)
	return nil
}

func (c *RemoteClient) handleResponseWriteFile(r *protocol.Reader) error {
	t, ok := c.getSyncTask("responseWriteFile", task.SyncClientProcessWriting)
	if !ok {
		return nil
	}

	path, err := r.ReadString16()
	if err != nil {
		return err
	}
	result, err := r.ReadByte()
	if err != nil {
		return err
	}

	t.Mutex.Lock()
	wt, exists := t.WriteFiles()[path]
	t.Mutex.Unlock()
	if !exists || wt.Status() != task.FileWritePreparing {
		c.logger.Warn("responseWriteFile for unknown or stale task", zap.String("path", path))
		return nil
	}

	if protocol.WriteFileResult(result) != protocol.WriteFileSuccess {
		wt.SetStatus(task.FileWriteFailure)
		c.releaseFileSlot()
		c.failSynchronization("client failed to prepare write of " + path)
		return nil
	}

	wt.SetStatus(task.FileWriteProcessing)
	c.sendNextWriteRequests(t)
	return nil
}

func (c *RemoteClient) handleFileDataReceived(r *protocol.Reader) error {
	t, ok := c.getSyncTask("fileDataReceived", task.SyncClientProcessWriting)
	if !ok {
		return nil
	}

	path, err := r.ReadString16()
	if err != nil {
		return err
	}
	index, err := r.ReadUint32()
	if err != nil {
		return err
	}
	result, err := r.ReadByte()
	if err != nil {
		return err
	}

	t.Mutex.Lock()
	wt, exists := t.WriteFiles()[path]
	t.Mutex.Unlock()
	if !exists {
		c.logger.Warn("fileDataReceived for unknown path", zap.String("path", path))
		return nil
	}

	blocks := wt.Blocks()
	var block *task.FileWriteBlockTask
	blockPos := -1
	for i, b := range blocks {
		if b.Index == int(index) {
			block = b
			blockPos = i
			break
		}
	}
	if block == nil || block.Status() != task.FileWriteBlockDataSent {
		c.logger.Warn("fileDataReceived for unknown or stale block", zap.String("path", path), zap.Uint32("index", index))
		return nil
	}

	c.releaseBlockSlot()

	if protocol.FileDataReceivedResult(result) != protocol.FileDataReceivedSuccess {
		block.SetStatus(task.FileWriteBlockFailure)
		c.failSynchronization("client failed to write block of " + path)
		return nil
	}

	block.SetStatus(task.FileWriteBlockSuccess)
	remaining := append(append([]*task.FileWriteBlockTask{}, blocks[:blockPos]...), blocks[blockPos+1:]...)
	wt.SetBlocks(remaining)

	c.sendNextWriteRequests(t)
	return nil
}

func (c *RemoteClient) handleResponseFinishWriteFile(r *protocol.Reader) error {
	t, ok := c.getSyncTask("responseFinishWriteFile", task.SyncClientProcessWriting)
	if !ok {
		return nil
	}

	path, err := r.ReadString16()
	if err != nil {
		return err
	}
	result, err := r.ReadByte()
	if err != nil {
		return err
	}

	t.Mutex.Lock()
	wt, exists := t.WriteFiles()[path]
	t.Mutex.Unlock()
	if !exists || wt.Status() != task.FileWriteFinishing {
		c.logger.Warn("responseFinishWriteFile for unknown or stale task", zap.String("path", path))
		return nil
	}

	c.releaseFileSlot()

	if protocol.WriteFileResult(result) != protocol.WriteFileSuccess {
		wt.SetStatus(task.FileWriteFailure)
		c.failSynchronization("client failed to finish write of " + path)
		return nil
	}

	wt.SetStatus(task.FileWriteSuccess)
	t.Mutex.Lock()
	delete(t.WriteFiles(), path)
	t.Mutex.Unlock()

	c.checkFinishedWrite(t)
	c.sendNextWriteRequests(t)
	return nil
}

func (c *RemoteClient) handleLogs(r *protocol.Reader) error {
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

func (c *RemoteClient) handleLinkRunState(r *protocol.Reader) error {
	status, err := r.ReadByte()
	if err != nil {
		return err
	}
	c.runState.Set(protocol.RunStateStatus(status))
	return nil
}

// --- outbound message builders ---------------------------------------------

func (c *RemoteClient) sendRequestFileLayout() error {
	w := protocol.NewWriter(protocol.MessageRequestFileLayout)
	return c.conn.Send(w.Bytes())
}

func (c *RemoteClient) sendRequestFileBlockHashes(path string, blockSize uint64) error {
	w := protocol.NewWriter(protocol.MessageRequestFileBlockHashes)
	w.WriteString16(path).WriteUint32(uint32(blockSize))
	return c.conn.Send(w.Bytes())
}

func (c *RemoteClient) sendRequestDeleteFile(path string) error {
	w := protocol.NewWriter(protocol.MessageRequestDeleteFile)
	w.WriteString16(path)
	return c.conn.Send(w.Bytes())
}

func (c *RemoteClient) sendRequestWriteFile(path string, wt *task.FileWriteTask) error {
	w := protocol.NewWriter(protocol.MessageRequestWriteFile)
	w.WriteString16(path).
		WriteUint64(wt.FileSize()).
		WriteUint64(wt.BlockSize()).
		WriteUint32(uint32(wt.BlockCount()))
	return c.conn.Send(w.Bytes())
}

func (c *RemoteClient) sendSendFileData(path string, b *task.FileWriteBlockTask) error {
	w := protocol.NewWriter(protocol.MessageSendFileData)
	w.WriteString16(path).WriteUint32(uint32(b.Index)).WriteRaw(b.Data)
	return c.conn.Send(w.Bytes())
}

func (c *RemoteClient) sendRequestFinishWriteFile(path string, wt *task.FileWriteTask) error {
	w := protocol.NewWriter(protocol.MessageRequestFinishWriteFile)
	hash := wt.Hash()
	w.WriteString16(path).WriteBytes8(hash[:])
	return c.conn.Send(w.Bytes())
}

// SendStartApplication asks the client to launch the game with the given
// configuration. arguments is joined with spaces into the single str16 field
// the wire carries (derlLauncherClientConnection::pProcessStartApplication
// reads it back as one std::string).
func (c *RemoteClient) SendStartApplication(gameConfig, profileName string, arguments []string) error {
	w := protocol.NewWriter(protocol.MessageStartApplication)
	w.WriteString16(gameConfig).WriteString8(profileName).WriteString16(strings.Join(arguments, " "))
	return c.conn.Send(w.Bytes())
}

// SendStopApplication asks the client to stop the game, gracefully or by
// force depending on mode.
func (c *RemoteClient) SendStopApplication(mode protocol.StopApplicationMode) error {
	w := protocol.NewWriter(protocol.MessageStopApplication)
	w.WriteByte(byte(mode))
	return c.conn.Send(w.Bytes())
}

// SendKeepAlive sends an empty keep-alive frame.
func (c *RemoteClient) SendKeepAlive() error {
	w := protocol.NewWriter(protocol.MessageKeepAlive)
	return c.conn.Send(w.Bytes())
}
