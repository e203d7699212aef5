// Package protocol implements the wire format of the file transfer protocol.
//
// Every exchange starts with a fixed 512-byte header. A header is a list of
// text fields joined by '\n' and right-padded with spaces to HeaderSize.
// Requests carry {command, filename, filesize, mode}; responses carry
// {status, message, filesize}. A header may be followed by a body phase of
// exactly filesize raw bytes (LIST payloads, GET downloads, PUT uploads).
package protocol

// HeaderSize is the exact width of every request and response header.
const HeaderSize = 512

// Command is the first field of a request header. Commands are case-sensitive.
type Command string

const (
	CmdGetList Command = "GET_LIST"
	CmdList    Command = "LIST" // alias of GET_LIST sent by older clients
	CmdCheck   Command = "CHECK"
	CmdGet     Command = "GET"
	CmdPut     Command = "PUT"
	CmdDel     Command = "DEL"
	CmdTest    Command = "TEST"
	CmdQuit    Command = "QUIT"
)

// Status is the first field of a response header.
type Status string

const (
	StatusList      Status = "LIST"
	StatusReady     Status = "READY"
	StatusSuccess   Status = "SUCCESS"
	StatusError     Status = "ERROR"
	StatusExists    Status = "EXISTS"
	StatusNotExists Status = "NOT_EXISTS"
)

// Mode selects how a PUT body is applied to an existing target.
type Mode string

const (
	// ModeWrite truncates (or creates) the target.
	ModeWrite Mode = "WRITE"
	// ModeAdd appends to the target when it exists and creates it otherwise.
	ModeAdd Mode = "ADD"
)

// Error messages carried in ERROR responses.
const (
	MsgFileNotExists    = "File not exists"
	MsgForbiddenChars   = "Forbidden chars"
	MsgNoData           = "No data"
	MsgUnknownCommand   = "Unknown command"
	MsgMalformedHeader  = "Malformed header"
	MsgFilenameRequired = "Filename required"
	MsgWriteFailed      = "Write failed"
	MsgReadFailed       = "Read failed"
	MsgDeleteFailed     = "Delete failed"
	MsgListFailed       = "List failed"
	MsgBusy             = "Too many requests"
)

// IsKnown reports whether c is part of the command vocabulary.
func (c Command) IsKnown() bool {
	switch c {
	case CmdGetList, CmdList, CmdCheck, CmdGet, CmdPut, CmdDel, CmdTest, CmdQuit:
		return true
	}
	return false
}

// Canonical folds aliases onto their canonical command.
func (c Command) Canonical() Command {
	if c == CmdList {
		return CmdGetList
	}
	return c
}

// IsKnown reports whether s is part of the status vocabulary.
func (s Status) IsKnown() bool {
	switch s {
	case StatusList, StatusReady, StatusSuccess, StatusError, StatusExists, StatusNotExists:
		return true
	}
	return false
}

// IsValid reports whether m is an accepted mode value. The empty mode is
// valid and behaves as ModeWrite.
func (m Mode) IsValid() bool {
	return m == "" || m == ModeWrite || m == ModeAdd
}
