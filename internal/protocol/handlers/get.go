package handlers

import (
	"errors"
	"fmt"

	"github.com/granddizzy/ItismAsyncio/internal/logger"
	"github.com/granddizzy/ItismAsyncio/internal/protocol"
	"github.com/granddizzy/ItismAsyncio/internal/protocol/transfer"
	"github.com/granddizzy/ItismAsyncio/pkg/store"
)

// handleGet sends READY with the file size followed by the file content.
//
// Once READY is sent the client expects exactly that many bytes. A source
// that runs dry or a failed write leaves the stream unusable, so both end
// the session.
func handleGet(h *Handler, cc *CommandContext, req *protocol.Request) (Outcome, error) {
	if out, rejected, err := rejectName(cc, "GET", req.Filename, protocol.NewError(protocol.MsgFileNotExists)); rejected {
		return out, err
	}

	rc, size, err := h.Store.Open(cc.Context, req.Filename)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			logger.Debug("GET failed: file not found: name=%q session=%s", req.Filename, cc.SessionID)
			return respond(cc, protocol.NewError(protocol.MsgFileNotExists))
		}
		logger.Error("GET failed: name=%q client=%s session=%s error=%v",
			req.Filename, cc.ClientAddr, cc.SessionID, err)
		return respond(cc, protocol.NewError(protocol.MsgReadFailed))
	}
	defer func() { _ = rc.Close() }()

	out := Outcome{Status: protocol.StatusReady}
	if err := protocol.WriteResponse(cc.Conn, &protocol.Response{Status: protocol.StatusReady, Filesize: size}); err != nil {
		return out, err
	}

	logger.Info("GET: name=%q size=%d client=%s session=%s", req.Filename, size, cc.ClientAddr, cc.SessionID)

	job := transfer.NewJob(transfer.Download, size)
	job.BeforeChunk = cc.BeforeChunk
	n, err := job.Send(cc.Context, cc.Conn, rc)
	out.BytesOut = n
	if err != nil {
		out.Aborted = true
		logger.Error("GET aborted: name=%q sent=%d size=%d session=%s error=%v",
			req.Filename, n, size, cc.SessionID, err)
		return out, fmt.Errorf("%w: %w", ErrCloseConnection, err)
	}

	logger.Debug("GET successful: name=%q bytes=%d session=%s", req.Filename, n, cc.SessionID)
	return out, nil
}
