package handler

import (
	"net/http"

	"github.com/Danrejk/download-image-from-tiles/pkg/logger"
	"github.com/gin-gonic/gin"
)

type tileRequest struct {
	Z int `uri:"z" validate:"gte=0"`
	X int `uri:"x" validate:"gte=0"`
	Y int `uri:"y" validate:"gte=0"`
}

// Tile serves the raw cached bytes of one tile.
func (h *Handler) Tile(c *gin.Context) {
	l := logger.FromContext(c.Request.Context())

	var req tileRequest
	if err := c.ShouldBindUri(&req); err != nil {
		h.RespondWithJSON(c, http.StatusBadRequest, "z, x and y should be integers", nil)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.RespondWithJSON(c, http.StatusBadRequest, "z, x and y should not be negative", nil)
		return
	}

	data, exists, err := h.tileCacheUseCase.GetCachedTile(req.Z, req.X, req.Y)
	if err != nil {
		h.RespondWithInternalServerError(c)
		return
	}
	if !exists {
		h.RespondWithJSON(c, http.StatusNotFound, "tile not cached", nil)
		return
	}

	l.Debug("returned cached tile", "z", req.Z, "x", req.X, "y", req.Y, "size", len(data))
	c.Data(http.StatusOK, http.DetectContentType(data), data)
}
