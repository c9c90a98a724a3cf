// Package supervisor runs the process's long-lived services under suture.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/thejerf/suture/v4"

	"hyodream/api/logging"
)

// New returns the root supervisor with suture's default restart policy and
// events routed to the zerolog logger.
func New(name string, shutdownTimeout time.Duration) *suture.Supervisor {
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	return suture.New(name, suture.Spec{
		EventHook:        eventHook,
		FailureThreshold: 5,
		FailureDecay:     30,
		FailureBackoff:   15 * time.Second,
		Timeout:          shutdownTimeout,
	})
}

func eventHook(e suture.Event) {
	log := logging.Logger()
	switch e.Type() {
	case suture.EventTypeServicePanic, suture.EventTypeServiceTerminate:
		log.Error().Fields(e.Map()).Msg(e.String())
	case suture.EventTypeBackoff, suture.EventTypeStopTimeout:
		log.Warn().Fields(e.Map()).Msg(e.String())
	default:
		log.Info().Fields(e.Map()).Msg(e.String())
	}
}

type HTTPServer interface {
	ListenAndServe() error
	Shutdown(ctx context.Context) error
}

// HTTPService adapts an http.Server to suture.Service with graceful shutdown.
type HTTPService struct {
	server          HTTPServer
	shutdownTimeout time.Duration
}

func NewHTTPService(server HTTPServer, shutdownTimeout time.Duration) *HTTPService {
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	return &HTTPService{server: server, shutdownTimeout: shutdownTimeout}
}

func (h *HTTPService) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := h.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), h.shutdownTimeout)
		defer cancel()
		if err := h.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http server shutdown failed: %w", err)
		}
		<-errCh
		return ctx.Err()
	}
}

func (h *HTTPService) String() string { return "http-server" }
