// Package server runs the HTTP server.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

const shutdownTimeout = 10 * time.Second

// Start serves handler on ln until ctx is done, then shuts down gracefully.
// TLS is used when both certFile and keyFile are set.
func Start(ctx context.Context, handler http.Handler, ln net.Listener, certFile, keyFile string) error {
	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errs := make(chan error, 1)
	go func() {
		var err error
		if certFile != "" && keyFile != "" {
			log.Info().Str("address", ln.Addr().String()).Msg("Start HTTPS server")
			err = srv.ServeTLS(ln, certFile, keyFile)
		} else {
			log.Info().Str("address", ln.Addr().String()).Msg("Start HTTP server")
			err = srv.Serve(ln)
		}
		errs <- err
	}()

	select {
	case err := <-errs:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errs; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
