package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (h *Handler) Progress(c *gin.Context) {
	h.RespondWithJSON(c, http.StatusOK, "fetch progress", h.progress.Progress())
}
