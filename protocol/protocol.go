// Package protocol defines the wire format of the DERemoteLauncher protocol:
// message codes, handshake magics, and link codes. Numeric values mirror the
// upstream derlProtocol definitions byte-for-byte.
package protocol

// SignatureClient is the magic sent by the client in connectRequest.
const SignatureClient = "DERemLaunchCnt-0"

// SignatureServer is the magic sent by the server in connectAccepted.
const SignatureServer = "DERemLaunchSrv-0"

// DefaultPort is the default TCP port the server listens on.
const DefaultPort = 3413

// MessageCode identifies the payload that follows it on the wire.
type MessageCode byte

const (
	MessageConnectRequest          MessageCode = 1
	MessageConnectAccepted         MessageCode = 2
	MessageRequestFileLayout       MessageCode = 3
	MessageResponseFileLayout      MessageCode = 4
	MessageRequestFileBlockHashes  MessageCode = 5
	MessageResponseFileBlockHashes MessageCode = 6
	MessageRequestDeleteFile       MessageCode = 7
	MessageResponseDeleteFile      MessageCode = 8
	MessageRequestWriteFile        MessageCode = 9
	MessageResponseWriteFile       MessageCode = 10
	MessageSendFileData            MessageCode = 11
	MessageFileDataReceived        MessageCode = 12
	MessageRequestFinishWriteFile  MessageCode = 13
	MessageResponseFinishWriteFile MessageCode = 14
	MessageStartApplication        MessageCode = 15
	MessageStopApplication         MessageCode = 16
	MessageLogs                    MessageCode = 17
	MessageKeepAlive               MessageCode = 18

	// MessageLinkRunState is not a framed request/response; it carries the
	// payload of the linked run-state value (see transport.LinkedRunState).
	MessageLinkRunState MessageCode = 19
)

func (c MessageCode) String() string {
	switch c {
	case MessageConnectRequest:
		return "connectRequest"
	case MessageConnectAccepted:
		return "connectAccepted"
	case MessageRequestFileLayout:
		return "requestFileLayout"
	case MessageResponseFileLayout:
		return "responseFileLayout"
	case MessageRequestFileBlockHashes:
		return "requestFileBlockHashes"
	case MessageResponseFileBlockHashes:
		return "responseFileBlockHashes"
	case MessageRequestDeleteFile:
		return "requestDeleteFile"
	case MessageResponseDeleteFile:
		return "responseDeleteFile"
	case MessageRequestWriteFile:
		return "requestWriteFile"
	case MessageResponseWriteFile:
		return "responseWriteFile"
	case MessageSendFileData:
		return "sendFileData"
	case MessageFileDataReceived:
		return "fileDataReceived"
	case MessageRequestFinishWriteFile:
		return "requestFinishWriteFile"
	case MessageResponseFinishWriteFile:
		return "responseFinishWriteFile"
	case MessageStartApplication:
		return "startApplication"
	case MessageStopApplication:
		return "stopApplication"
	case MessageLogs:
		return "logs"
	case MessageKeepAlive:
		return "keepAlive"
	case MessageLinkRunState:
		return "linkRunState"
	default:
		return "unknown"
	}
}

// DeleteFileResult is the u8 result field of responseDeleteFile.
type DeleteFileResult byte

const (
	DeleteFileSuccess DeleteFileResult = 0
	DeleteFileFailure DeleteFileResult = 1
)

// WriteFileResult is the u8 result field shared by responseWriteFile and
// responseFinishWriteFile.
type WriteFileResult byte

const (
	WriteFileSuccess WriteFileResult = 0
	WriteFileFailure WriteFileResult = 1
)

// FileDataReceivedResult is the u8 result field of fileDataReceived.
type FileDataReceivedResult byte

const (
	FileDataReceivedSuccess FileDataReceivedResult = 0
	FileDataReceivedFailure FileDataReceivedResult = 1
)

// StopApplicationMode is the u8 mode field of stopApplication.
type StopApplicationMode byte

const (
	StopModeRequestClose StopApplicationMode = 0
	StopModeKillProcess  StopApplicationMode = 1
)

// LogLevel is the u8 level field of the logs message.
type LogLevel byte

const (
	LogLevelInfo    LogLevel = 0
	LogLevelWarning LogLevel = 1
	LogLevelError   LogLevel = 2
)

// RunStateStatus is the u8 status carried by the linked run-state value.
type RunStateStatus byte

const (
	RunStateStopped RunStateStatus = 0
	RunStateRunning RunStateStatus = 1
)

func (s RunStateStatus) String() string {
	if s == RunStateRunning {
		return "running"
	}
	return "stopped"
}
