// Package bridge speaks the editor panel's message protocol on behalf of
// the update and record operations.
//
// Inbound messages are JSON objects {type, value, command, filePath}; every
// reply is {type, value} with type one of success, error, file, info or
// exited. Messages with an empty value are ignored, which is how the panel
// guards against stray clicks.
package bridge

// Inbound message types.
const (
	TypeInfo               = "onInfo"
	TypeError              = "onError"
	TypeUpdateKeploy       = "updateKeploy"
	TypeUpdateKeployDocker = "updateKeployDocker"
	TypeRecord             = "record"
	TypeStartRecording     = "startRecordingCommand"
	TypeLatestVersion      = "latestVersion"
)

// Reply types.
const (
	ReplySuccess = "success"
	ReplyError   = "error"
	ReplyFile    = "file"
	ReplyInfo    = "info"
	ReplyExited  = "exited"
)

// Message is a request from the panel.
type Message struct {
	Type     string `json:"type"`
	Value    string `json:"value,omitempty"`
	Command  string `json:"command,omitempty"`
	FilePath string `json:"filePath,omitempty"`
}

// Reply is sent back to the panel.
type Reply struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// SendFunc delivers a reply to the panel. Implementations must be safe for
// concurrent use.
type SendFunc func(Reply)
