package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/suPer8Hu/agentk/internal/chat"
)

type selectReq struct {
	SessionID string `json:"session_id"`
	ModelID   string `json:"model_id"`
	Shared    bool   `json:"shared"`
}

func (h *Handler) Select(c *gin.Context) {
	var req selectReq
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	if req.ModelID != "" {
		if _, err := h.Catalog.Lookup(c.Request.Context(), req.ModelID); err != nil {
			h.failErr(c, err)
			return
		}
	}
	view, err := h.Chat.Select(c.Request.Context(), chat.Selection{
		SessionID: req.SessionID,
		ModelID:   req.ModelID,
		Shared:    req.Shared,
	})
	if err != nil {
		h.failErr(c, err)
		return
	}
	ok(c, view)
}

type draftReq struct {
	Text string `json:"text"`
}

func (h *Handler) SetDraft(c *gin.Context) {
	var req draftReq
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	ok(c, gin.H{"state": h.Chat.SetDraft(req.Text)})
}

func (h *Handler) View(c *gin.Context) {
	ok(c, h.Chat.View())
}

type submitReq struct {
	Content string `json:"content" binding:"required"`
}

func (h *Handler) Submit(c *gin.Context) {
	var req submitReq
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	res, err := h.Chat.Submit(turnContext(c), req.Content)
	h.turn(c, res, err)
}

func (h *Handler) Resubmit(c *gin.Context) {
	id, good := parseID(c, "id")
	if !good {
		return
	}
	res, err := h.Chat.Resubmit(turnContext(c), id)
	h.turn(c, res, err)
}

// turnContext keeps a turn running after the client goes away; the reply is
// still stored and shows up on the next view.
func turnContext(c *gin.Context) context.Context {
	return context.WithoutCancel(c.Request.Context())
}

// turn writes a submit or resubmit outcome. A generation failure still
// returns the stored user message so the client can offer a resubmit.
func (h *Handler) turn(c *gin.Context, res *chat.TurnResult, err error) {
	var gerr *chat.GenerationError
	if errors.As(err, &gerr) {
		failWith(c, http.StatusBadGateway, 50201, gerr.Error(), res)
		return
	}
	if err != nil {
		h.failErr(c, err)
		return
	}
	ok(c, res)
}

func (h *Handler) ClearContext(c *gin.Context) {
	n, err := h.Chat.ClearContext(c.Request.Context())
	if err != nil {
		h.failErr(c, err)
		return
	}
	ok(c, gin.H{"removed": n})
}
