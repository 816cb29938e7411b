package infra

import (
	"context"
	"net/http"
	"time"
)

// NewHTTPServer builds the API http.Server with the configured timeouts.
func NewHTTPServer(cfg *Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadTimeout:       cfg.HTTPReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.HTTPWriteTimeout,
		IdleTimeout:       cfg.HTTPIdleTimeout,
	}
}

// ShutdownHTTPServer stops the server, waiting at most the configured idle
// timeout for in-flight requests.
func ShutdownHTTPServer(ctx context.Context, cfg *Config, srv *http.Server) error {
	ctx, cancel := context.WithTimeout(ctx, cfg.HTTPIdleTimeout)
	defer cancel()
	return srv.Shutdown(ctx)
}
