package http_server

import (
	"net/http"

	"github.com/Danrejk/download-image-from-tiles/pkg/config"
)

// NewServer binds handler to the configured port. Request logging belongs to
// the handler's own middleware.
func NewServer(cfg config.Server, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
}
