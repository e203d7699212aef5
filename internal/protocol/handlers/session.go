package handlers

import (
	"github.com/granddizzy/ItismAsyncio/internal/logger"
	"github.com/granddizzy/ItismAsyncio/internal/protocol"
)

// handleTest answers the liveness probe.
func handleTest(_ *Handler, cc *CommandContext, _ *protocol.Request) (Outcome, error) {
	return respond(cc, &protocol.Response{Status: protocol.StatusSuccess})
}

// handleQuit ends the session without a response.
func handleQuit(_ *Handler, cc *CommandContext, _ *protocol.Request) (Outcome, error) {
	logger.Debug("QUIT: client=%s session=%s", cc.ClientAddr, cc.SessionID)
	return Outcome{Close: true}, nil
}
