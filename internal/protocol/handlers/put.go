package handlers

import (
	"errors"
	"fmt"

	"github.com/granddizzy/ItismAsyncio/internal/logger"
	"github.com/granddizzy/ItismAsyncio/internal/protocol"
	"github.com/granddizzy/ItismAsyncio/internal/protocol/transfer"
	"github.com/granddizzy/ItismAsyncio/pkg/store"
)

// handlePut receives an upload.
//
// Exchange:
//
//	client: PUT <name> <size> [WRITE|ADD]
//	server: READY <size>
//	client: <size bytes>
//	server: SUCCESS | ERROR <message>
//
// The write mode is resolved by the store before READY is sent. A body that
// ends early is never committed: the server answers "No data" if it still
// can and closes the session. A store failure in the middle of the body is
// reported after the remaining bytes were drained, so the session survives.
func handlePut(h *Handler, cc *CommandContext, req *protocol.Request) (Outcome, error) {
	if out, rejected, err := rejectName(cc, "PUT", req.Filename, protocol.NewError(protocol.MsgForbiddenChars)); rejected {
		return out, err
	}

	mode := writeMode(req.Mode)
	w, err := h.Store.Create(cc.Context, req.Filename, mode)
	if err != nil {
		logger.Error("PUT failed: cannot create: name=%q client=%s session=%s error=%v",
			req.Filename, cc.ClientAddr, cc.SessionID, err)
		return respond(cc, protocol.NewError(protocol.MsgWriteFailed))
	}

	out := Outcome{Status: protocol.StatusReady}
	if err := protocol.WriteResponse(cc.Conn, &protocol.Response{Status: protocol.StatusReady, Filesize: req.Filesize}); err != nil {
		_ = w.Abort()
		return out, err
	}

	logger.Info("PUT: name=%q size=%d mode=%s client=%s session=%s",
		req.Filename, req.Filesize, w.Mode(), cc.ClientAddr, cc.SessionID)

	sink := &drainWriter{w: w}
	job := transfer.NewJob(transfer.Upload, req.Filesize)
	job.BeforeChunk = cc.BeforeChunk
	n, err := job.Receive(cc.Context, cc.Conn, sink)
	out.BytesIn = n

	if err != nil {
		_ = w.Abort()
		out.Aborted = true
		if errors.Is(err, transfer.ErrIncompleteTransfer) {
			logger.Warn("PUT aborted: name=%q received=%d size=%d session=%s",
				req.Filename, n, req.Filesize, cc.SessionID)
			out.Status = protocol.StatusError
			_ = protocol.WriteResponse(cc.Conn, protocol.NewError(protocol.MsgNoData))
		} else {
			logger.Warn("PUT aborted: name=%q received=%d size=%d session=%s error=%v",
				req.Filename, n, req.Filesize, cc.SessionID, err)
		}
		return out, fmt.Errorf("%w: %w", ErrCloseConnection, err)
	}

	if sink.err != nil {
		_ = w.Abort()
		logger.Error("PUT failed: write error: name=%q session=%s error=%v", req.Filename, cc.SessionID, sink.err)
		resp, err := respond(cc, protocol.NewError(protocol.MsgWriteFailed))
		resp.BytesIn = n
		return resp, err
	}

	if err := w.Commit(); err != nil {
		logger.Error("PUT failed: commit error: name=%q session=%s error=%v", req.Filename, cc.SessionID, err)
		resp, err := respond(cc, protocol.NewError(protocol.MsgWriteFailed))
		resp.BytesIn = n
		return resp, err
	}

	logger.Info("PUT successful: name=%q bytes=%d mode=%s session=%s", req.Filename, n, w.Mode(), cc.SessionID)
	resp, err := respond(cc, &protocol.Response{Status: protocol.StatusSuccess})
	resp.BytesIn = n
	return resp, err
}

// drainWriter forwards to w until the first error and swallows everything
// after it, so the body can still be consumed from the stream.
type drainWriter struct {
	w   store.Writer
	err error
}

func (d *drainWriter) Write(p []byte) (int, error) {
	if d.err != nil {
		return len(p), nil
	}
	if _, err := d.w.Write(p); err != nil {
		d.err = err
	}
	return len(p), nil
}
