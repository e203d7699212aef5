// Package handlers implements the server side of each file protocol command.
//
// A handler runs after the request header has been decoded. It may move a
// body over the connection (GET, PUT, GET_LIST) and always leaves the stream
// positioned at the next header, or reports that the connection must be
// closed.
package handlers

import (
	"context"
	"errors"
	"io"

	"github.com/granddizzy/ItismAsyncio/internal/logger"
	"github.com/granddizzy/ItismAsyncio/internal/protocol"
	"github.com/granddizzy/ItismAsyncio/pkg/store"
)

// ErrCloseConnection is returned together with an Outcome when the stream is
// no longer usable, for example after a body that ended early.
var ErrCloseConnection = errors.New("connection must be closed")

// Handler executes commands against a store.
type Handler struct {
	Store store.Store
}

// New returns a Handler serving s.
func New(s store.Store) *Handler {
	return &Handler{Store: s}
}

// CommandContext carries the per-command state shared by all handlers.
type CommandContext struct {
	// Context is cancelled when the server shuts down.
	Context context.Context

	// Conn is the client stream. Headers and bodies are both read from and
	// written to it.
	Conn io.ReadWriter

	// ClientAddr is the remote address, for logging.
	ClientAddr string

	// SessionID identifies the connection in logs.
	SessionID string

	// BeforeChunk, when set, runs before every body chunk. The connection
	// uses it to push the read or write deadline forward.
	BeforeChunk func() error
}

// Outcome summarizes a handled command for metrics and the connection loop.
type Outcome struct {
	// Status is the last status sent, empty when nothing was sent.
	Status protocol.Status

	// BytesIn and BytesOut count body bytes only.
	BytesIn  int64
	BytesOut int64

	// Aborted is set when a body ended before the declared size.
	Aborted bool

	// Close asks the connection loop to end the session cleanly.
	Close bool
}

type commandHandler func(h *Handler, cc *CommandContext, req *protocol.Request) (Outcome, error)

// commandInfo contains metadata about a command for dispatch.
type commandInfo struct {
	// Name is the canonical command name used in logs and metrics.
	Name string

	// Handler processes the command.
	Handler commandHandler

	// NeedsFilename rejects requests without a filename before the handler
	// runs.
	NeedsFilename bool
}

// dispatchTable maps commands to their handlers. LIST is an alias of
// GET_LIST.
var dispatchTable = map[protocol.Command]*commandInfo{
	protocol.CmdGetList: {Name: string(protocol.CmdGetList), Handler: handleList},
	protocol.CmdList:    {Name: string(protocol.CmdGetList), Handler: handleList},
	protocol.CmdCheck:   {Name: string(protocol.CmdCheck), Handler: handleCheck, NeedsFilename: true},
	protocol.CmdGet:     {Name: string(protocol.CmdGet), Handler: handleGet, NeedsFilename: true},
	protocol.CmdPut:     {Name: string(protocol.CmdPut), Handler: handlePut, NeedsFilename: true},
	protocol.CmdDel:     {Name: string(protocol.CmdDel), Handler: handleDelete, NeedsFilename: true},
	protocol.CmdTest:    {Name: string(protocol.CmdTest), Handler: handleTest},
	protocol.CmdQuit:    {Name: string(protocol.CmdQuit), Handler: handleQuit},
}

// CommandName returns the name under which cmd is logged and measured.
// Unknown commands are grouped as "UNKNOWN".
func CommandName(cmd protocol.Command) string {
	if info, ok := dispatchTable[cmd]; ok {
		return info.Name
	}
	return "UNKNOWN"
}

// Dispatch runs the handler for req.
//
// A nil error means the stream is positioned at the next header. A non-nil
// error means the connection must be closed; the Outcome still describes
// what happened.
func (h *Handler) Dispatch(cc *CommandContext, req *protocol.Request) (Outcome, error) {
	info, ok := dispatchTable[req.Command]
	if !ok {
		logger.Debug("Unknown command %q: client=%s session=%s", req.Command, cc.ClientAddr, cc.SessionID)
		return respond(cc, protocol.NewError(protocol.MsgUnknownCommand))
	}

	if info.NeedsFilename && req.Filename == "" {
		logger.Debug("%s without filename: client=%s session=%s", info.Name, cc.ClientAddr, cc.SessionID)
		return respond(cc, protocol.NewError(protocol.MsgFilenameRequired))
	}

	return info.Handler(h, cc, req)
}

// RejectMalformed answers a header that could not be decoded. The full
// header block was consumed, so the session continues.
func RejectMalformed(cc *CommandContext) (Outcome, error) {
	return respond(cc, protocol.NewError(protocol.MsgMalformedHeader))
}

// RejectBusy answers a command refused by the rate limiter.
func RejectBusy(cc *CommandContext) (Outcome, error) {
	return respond(cc, protocol.NewError(protocol.MsgBusy))
}

// respond sends a header-only response.
func respond(cc *CommandContext, resp *protocol.Response) (Outcome, error) {
	out := Outcome{Status: resp.Status}
	if err := protocol.WriteResponse(cc.Conn, resp); err != nil {
		return out, err
	}
	return out, nil
}

// writeMode maps the wire mode to the store mode. An empty mode means WRITE.
func writeMode(m protocol.Mode) store.WriteMode {
	if m == protocol.ModeAdd {
		return store.ModeAdd
	}
	return store.ModeWrite
}

// rejectName answers a filename the store would refuse with reply. It
// reports false when the name is acceptable and the command should proceed.
// Such a name can never exist, so lookups answer as for a missing file and
// only PUT reports the forbidden characters.
func rejectName(cc *CommandContext, command, name string, reply *protocol.Response) (Outcome, bool, error) {
	if err := store.ValidateName(name); err != nil {
		logger.Debug("%s rejected: name=%q client=%s session=%s error=%v",
			command, name, cc.ClientAddr, cc.SessionID, err)
		out, err := respond(cc, reply)
		return out, true, err
	}
	return Outcome{}, false, nil
}
