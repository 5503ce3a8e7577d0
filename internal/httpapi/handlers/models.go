package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/suPer8Hu/agentk/internal/store"
)

func (h *Handler) ListModels(c *gin.Context) {
	ctx := c.Request.Context()
	var (
		models []store.Model
		err    error
	)
	switch {
	case c.Query("provider") != "":
		models, err = h.Catalog.ByProvider(ctx, c.Query("provider"))
	case queryBool(c, "enabled"):
		models, err = h.Catalog.Enabled(ctx)
	default:
		models, err = h.Catalog.List(ctx)
	}
	if err != nil {
		h.failErr(c, err)
		return
	}
	ok(c, gin.H{"models": models})
}

func (h *Handler) ListProviders(c *gin.Context) {
	providers, err := h.Catalog.Providers(c.Request.Context())
	if err != nil {
		h.failErr(c, err)
		return
	}
	ok(c, gin.H{"providers": providers})
}

type modelReq struct {
	Provider string `json:"provider" binding:"required"`
	Name     string `json:"name"`
	Enabled  *bool  `json:"enabled"`
}

func (h *Handler) PutModel(c *gin.Context) {
	var req modelReq
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	m := store.Model{
		ID:       c.Param("id"),
		Provider: req.Provider,
		Name:     req.Name,
		Enabled:  req.Enabled == nil || *req.Enabled,
	}
	saved, err := h.Catalog.Upsert(c.Request.Context(), m)
	if err != nil {
		h.failErr(c, err)
		return
	}
	ok(c, saved)
}

type enabledReq struct {
	Enabled *bool `json:"enabled" binding:"required"`
}

func (h *Handler) SetModelEnabled(c *gin.Context) {
	var req enabledReq
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	if err := h.Catalog.SetEnabled(c.Request.Context(), c.Param("id"), *req.Enabled); err != nil {
		h.failErr(c, err)
		return
	}
	ok(c, gin.H{"enabled": *req.Enabled})
}

func (h *Handler) DeleteModel(c *gin.Context) {
	deleted, err := h.Catalog.Delete(c.Request.Context(), c.Param("provider"), c.Param("id"))
	if err != nil {
		h.failErr(c, err)
		return
	}
	ok(c, gin.H{"deleted": deleted})
}
