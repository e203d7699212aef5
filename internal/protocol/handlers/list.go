package handlers

import (
	"bytes"

	"github.com/granddizzy/ItismAsyncio/internal/logger"
	"github.com/granddizzy/ItismAsyncio/internal/protocol"
	"github.com/granddizzy/ItismAsyncio/internal/protocol/transfer"
)

// handleList sends a LIST header with the payload length followed by the
// listing body.
func handleList(h *Handler, cc *CommandContext, _ *protocol.Request) (Outcome, error) {
	records, err := h.Store.List(cc.Context)
	if err != nil {
		logger.Error("GET_LIST failed: client=%s session=%s error=%v", cc.ClientAddr, cc.SessionID, err)
		return respond(cc, protocol.NewError(protocol.MsgListFailed))
	}

	body := protocol.FormatListing(records)
	out := Outcome{Status: protocol.StatusList}
	resp := &protocol.Response{Status: protocol.StatusList, Filesize: int64(len(body))}
	if err := protocol.WriteResponse(cc.Conn, resp); err != nil {
		return out, err
	}

	job := transfer.NewJob(transfer.Listing, int64(len(body)))
	job.BeforeChunk = cc.BeforeChunk
	n, err := job.Send(cc.Context, cc.Conn, bytes.NewReader(body))
	out.BytesOut = n
	if err != nil {
		return out, err
	}

	logger.Debug("GET_LIST: files=%d bytes=%d client=%s session=%s", len(records), n, cc.ClientAddr, cc.SessionID)
	return out, nil
}
