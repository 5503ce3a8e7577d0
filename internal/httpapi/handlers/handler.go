package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/suPer8Hu/agentk/internal/catalog"
	"github.com/suPer8Hu/agentk/internal/chat"
	"github.com/suPer8Hu/agentk/internal/keys"
	"github.com/suPer8Hu/agentk/internal/logging"
	"github.com/suPer8Hu/agentk/internal/store"
)

type Handler struct {
	Sessions *chat.Registry
	Ledger   *chat.Ledger
	Chat     *chat.Assembler
	Catalog  *catalog.Catalog
	Keys     *keys.Vault
	Log      *zap.Logger
}

type Deps struct {
	Sessions *chat.Registry
	Ledger   *chat.Ledger
	Chat     *chat.Assembler
	Catalog  *catalog.Catalog
	Keys     *keys.Vault
	Log      *zap.Logger
}

func NewHandler(d Deps) *Handler {
	return &Handler{
		Sessions: d.Sessions,
		Ledger:   d.Ledger,
		Chat:     d.Chat,
		Catalog:  d.Catalog,
		Keys:     d.Keys,
		Log:      logging.OrNop(d.Log),
	}
}

func (h *Handler) Ping(c *gin.Context) {
	ok(c, gin.H{"pong": true})
}

func ok(c *gin.Context, data any) {
	c.JSON(http.StatusOK, gin.H{
		"code":    0,
		"message": "ok",
		"data":    data,
	})
}

func fail(c *gin.Context, httpStatus int, code int, msg string) {
	failWith(c, httpStatus, code, msg, nil)
}

func failWith(c *gin.Context, httpStatus int, code int, msg string, data any) {
	c.JSON(httpStatus, gin.H{
		"code":    code,
		"message": msg,
		"data":    data,
	})
}

// failErr maps domain errors onto the response envelope.
func (h *Handler) failErr(c *gin.Context, err error) {
	status, code, msg := classify(err)
	if status >= http.StatusInternalServerError {
		h.Log.Error("request failed",
			zap.String("path", c.FullPath()),
			zap.Error(err),
		)
		_ = c.Error(err)
	}
	fail(c, status, code, msg)
}

func classify(err error) (int, int, string) {
	var gerr *chat.GenerationError
	switch {
	case errors.As(err, &gerr):
		return http.StatusBadGateway, 50201, gerr.Error()
	case errors.Is(err, chat.ErrEmptyContent):
		return http.StatusBadRequest, 10002, "message content is empty"
	case errors.Is(err, chat.ErrInvalidInput), errors.Is(err, store.ErrInvalidKey):
		return http.StatusBadRequest, 10003, "invalid input"
	case errors.Is(err, chat.ErrNoActiveSession):
		return http.StatusConflict, 40901, "no active session"
	case errors.Is(err, chat.ErrNoActiveModel):
		return http.StatusConflict, 40902, "no active model"
	case errors.Is(err, chat.ErrBusy):
		return http.StatusConflict, 40903, "a turn is already awaiting a response"
	case errors.Is(err, catalog.ErrModelDisabled):
		return http.StatusConflict, 40904, "model is disabled"
	case errors.Is(err, chat.ErrAnchorNotFound):
		return http.StatusNotFound, 40402, "message not in current view"
	case errors.Is(err, catalog.ErrModelNotFound):
		return http.StatusNotFound, 40403, "model not found"
	case errors.Is(err, keys.ErrKeyNotFound):
		return http.StatusNotFound, 40405, "key not found"
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, 40404, "not found"
	case errors.Is(err, catalog.ErrInvalidModel), errors.Is(err, keys.ErrInvalidKey):
		return http.StatusBadRequest, 10003, err.Error()
	case errors.Is(err, keys.ErrNoSecret):
		return http.StatusPreconditionFailed, 41201, "KEYS_SECRET is not configured"
	case errors.Is(err, store.ErrUnavailable):
		return http.StatusServiceUnavailable, 50301, "store unavailable"
	}
	return http.StatusInternalServerError, 50001, "internal error"
}

func parseID(c *gin.Context, name string) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		fail(c, http.StatusBadRequest, 10004, "invalid "+name)
		return 0, false
	}
	return id, true
}

func queryBool(c *gin.Context, name string) bool {
	v, err := strconv.ParseBool(c.Query(name))
	return err == nil && v
}
