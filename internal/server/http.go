package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"github.com/smallbiznis/valora-sleep/internal/config"
)

// writeSlack is added on top of the slowest outbound call a handler can make.
const writeSlack = 5 * time.Second

// HTTPServer wraps a gin.Engine with graceful shutdown helpers.
type HTTPServer struct {
	Engine            *gin.Engine
	ShutdownTimeout   time.Duration
	ReadHeaderTimeout time.Duration
	WriteTimeout      time.Duration
}

// NewHTTPServer sizes the server around the gateway's outbound calls: a
// response may not be written before the analysis or provider call it waits
// on has had its full timeout.
func NewHTTPServer(router *gin.Engine, cfg config.Config) *HTTPServer {
	router.HandleMethodNotAllowed = true
	router.ForwardedByClientIP = true

	srv := &HTTPServer{
		Engine:            router,
		ShutdownTimeout:   cfg.ShutdownTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      writeTimeout(cfg),
	}
	if srv.ShutdownTimeout <= 0 {
		srv.ShutdownTimeout = 10 * time.Second
	}
	if srv.ReadHeaderTimeout <= 0 {
		srv.ReadHeaderTimeout = 10 * time.Second
	}
	return srv
}

// writeTimeout covers the longest handler chain: a failed fetch, one token
// refresh and the retried fetch, or one analysis call.
func writeTimeout(cfg config.Config) time.Duration {
	sleepChain := 2*cfg.FetchTimeout + cfg.TokenTimeout
	longest := max(sleepChain, cfg.AnalysisTimeout)
	if longest <= 0 {
		return 0
	}
	return longest + writeSlack
}

// Run starts the HTTP server on the provided addr and shuts it down when ctx is done.
func (s *HTTPServer) Run(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	return s.Serve(ctx, ln)
}

// Serve runs on an existing listener until ctx is done.
func (s *HTTPServer) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Engine,
		ReadHeaderTimeout: s.ReadHeaderTimeout,
		WriteTimeout:      s.WriteTimeout,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	})

	return g.Wait()
}
