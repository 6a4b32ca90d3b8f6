package handler

import (
	"net/http"

	"github.com/Danrejk/download-image-from-tiles/internal/usecase"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

const (
	internalServerErrorText = "the server encountered an error and could not process your request"
)

type response struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// ProgressReporter exposes the state of the running fetch.
// *usecase.FetchUseCase implements it.
type ProgressReporter interface {
	Progress() usecase.Report
}

type Handler struct {
	validate         *validator.Validate
	tileCacheUseCase *usecase.TileCacheUseCase
	progress         ProgressReporter
}

func NewHandler(v *validator.Validate, uc *usecase.TileCacheUseCase, progress ProgressReporter) *Handler {
	return &Handler{
		validate:         v,
		tileCacheUseCase: uc,
		progress:         progress,
	}
}

func (h *Handler) RespondWithInternalServerError(c *gin.Context) {
	h.RespondWithJSON(c, http.StatusInternalServerError, internalServerErrorText, nil)
}

func (h *Handler) RespondWithJSON(c *gin.Context, code int, message string, data any) {
	success := code < 400

	r := response{
		Success: success,
		Message: message,
		Data:    data,
	}

	c.JSON(code, r)
}
