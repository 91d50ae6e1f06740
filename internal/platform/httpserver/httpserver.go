package httpserver

import (
	"net/http"
	"time"
)

// New builds the authority server. WriteTimeout sits above the 30s handler
// timeout so a timed-out request still gets its 503 written.
func New(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      35 * time.Second,
		IdleTimeout:       90 * time.Second,
	}
}
