package handlers

import (
	"errors"

	"github.com/granddizzy/ItismAsyncio/internal/logger"
	"github.com/granddizzy/ItismAsyncio/internal/protocol"
	"github.com/granddizzy/ItismAsyncio/pkg/store"
)

// handleDelete removes a file.
func handleDelete(h *Handler, cc *CommandContext, req *protocol.Request) (Outcome, error) {
	if out, rejected, err := rejectName(cc, "DEL", req.Filename, protocol.NewError(protocol.MsgFileNotExists)); rejected {
		return out, err
	}

	err := h.Store.Delete(cc.Context, req.Filename)
	switch {
	case err == nil:
		logger.Info("DEL successful: name=%q client=%s session=%s", req.Filename, cc.ClientAddr, cc.SessionID)
		return respond(cc, &protocol.Response{Status: protocol.StatusSuccess})
	case errors.Is(err, store.ErrNotFound):
		logger.Debug("DEL failed: file not found: name=%q session=%s", req.Filename, cc.SessionID)
		return respond(cc, protocol.NewError(protocol.MsgFileNotExists))
	default:
		logger.Error("DEL failed: name=%q client=%s session=%s error=%v",
			req.Filename, cc.ClientAddr, cc.SessionID, err)
		return respond(cc, protocol.NewError(protocol.MsgDeleteFailed))
	}
}
