package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

type sessionReq struct {
	Name string `json:"name"`
}

func (h *Handler) ListSessions(c *gin.Context) {
	list, err := h.Sessions.List(c.Request.Context())
	if err != nil {
		h.failErr(c, err)
		return
	}
	ok(c, gin.H{"sessions": list})
}

// CreateSession starts a new chat and makes it the active one.
func (h *Handler) CreateSession(c *gin.Context) {
	var req sessionReq
	_ = c.ShouldBindJSON(&req) // allow empty {}

	sess, err := h.Chat.NewChat(c.Request.Context(), req.Name)
	if err != nil && sess == nil {
		h.failErr(c, err)
		return
	}
	ok(c, sess)
}

func (h *Handler) RenameSession(c *gin.Context) {
	var req sessionReq
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	ctx := c.Request.Context()
	id := c.Param("id")
	if err := h.Sessions.Rename(ctx, id, req.Name); err != nil {
		h.failErr(c, err)
		return
	}
	sess, err := h.Sessions.Get(ctx, id)
	if err != nil {
		h.failErr(c, err)
		return
	}
	ok(c, sess)
}

func (h *Handler) DeleteSession(c *gin.Context) {
	if !h.Chat.DeleteSession(c.Request.Context(), c.Param("id")) {
		fail(c, http.StatusInternalServerError, 50002, "failed to delete session")
		return
	}
	ok(c, gin.H{"deleted": true})
}

type scopeQuery struct {
	sessionID string
	modelID   string
	shared    bool
}

func readScope(c *gin.Context) (scopeQuery, bool) {
	q := scopeQuery{
		sessionID: c.Param("id"),
		modelID:   strings.TrimSpace(c.Query("model_id")),
		shared:    queryBool(c, "shared"),
	}
	if !q.shared && q.modelID == "" {
		fail(c, http.StatusBadRequest, 10005, "model_id is required unless shared=true")
		return q, false
	}
	return q, true
}

func (h *Handler) ListMessages(c *gin.Context) {
	q, good := readScope(c)
	if !good {
		return
	}
	msgs, err := h.Ledger.History(c.Request.Context(), q.sessionID, q.modelID, q.shared)
	if err != nil {
		h.failErr(c, err)
		return
	}
	ok(c, gin.H{"messages": msgs})
}

func (h *Handler) ClearMessages(c *gin.Context) {
	q, good := readScope(c)
	if !good {
		return
	}
	n, err := h.Chat.Clear(c.Request.Context(), q.sessionID, q.modelID, q.shared)
	if err != nil {
		h.failErr(c, err)
		return
	}
	ok(c, gin.H{"removed": n})
}

func (h *Handler) DeleteMessage(c *gin.Context) {
	id, good := parseID(c, "id")
	if !good {
		return
	}
	deleted, err := h.Chat.DeleteMessage(c.Request.Context(), id)
	if err != nil {
		h.failErr(c, err)
		return
	}
	ok(c, gin.H{"deleted": deleted})
}
