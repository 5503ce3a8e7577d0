package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (h *Handler) ListKeys(c *gin.Context) {
	entries, err := h.Keys.List(c.Request.Context())
	if err != nil {
		h.failErr(c, err)
		return
	}
	ok(c, gin.H{"keys": entries})
}

type keyReq struct {
	APIKey string `json:"api_key" binding:"required"`
	Name   string `json:"name"`
}

func (h *Handler) PutKey(c *gin.Context) {
	var req keyReq
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	entry, err := h.Keys.Save(c.Request.Context(), c.Param("id"), req.APIKey, req.Name)
	if err != nil {
		h.failErr(c, err)
		return
	}
	ok(c, entry)
}

func (h *Handler) DeleteKey(c *gin.Context) {
	removed, err := h.Keys.Remove(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.failErr(c, err)
		return
	}
	ok(c, gin.H{"deleted": removed})
}
