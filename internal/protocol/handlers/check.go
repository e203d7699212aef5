package handlers

import (
	"github.com/granddizzy/ItismAsyncio/internal/logger"
	"github.com/granddizzy/ItismAsyncio/internal/protocol"
)

// handleCheck answers EXISTS or NOT_EXISTS.
func handleCheck(h *Handler, cc *CommandContext, req *protocol.Request) (Outcome, error) {
	if out, rejected, err := rejectName(cc, "CHECK", req.Filename, &protocol.Response{Status: protocol.StatusNotExists}); rejected {
		return out, err
	}

	exists, err := h.Store.Exists(cc.Context, req.Filename)
	if err != nil {
		logger.Error("CHECK failed: name=%q client=%s session=%s error=%v",
			req.Filename, cc.ClientAddr, cc.SessionID, err)
		return respond(cc, protocol.NewError(protocol.MsgReadFailed))
	}

	status := protocol.StatusNotExists
	if exists {
		status = protocol.StatusExists
	}
	logger.Debug("CHECK: name=%q status=%s session=%s", req.Filename, status, cc.SessionID)
	return respond(cc, &protocol.Response{Status: status})
}
