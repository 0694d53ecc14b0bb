// Package monitor serves the HTTP status surface of a running stream:
// liveness, Prometheus metrics, the current session stats and the most
// recent data frame.
package monitor

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/danmuck/mocapctl/internal/observability"
	"github.com/danmuck/mocapctl/internal/protocol/measurement"
	"github.com/danmuck/mocapctl/internal/stream"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// StatsSource is anything that can report stream stats; *stream.Stream does.
type StatsSource interface {
	Stats() stream.Stats
}

type Server struct {
	ID       string
	Addr     string
	Appeared time.Time

	router *gin.Engine

	mu     sync.RWMutex
	source StatsSource
	latest *Sample
}

// Sample is a copy of one data frame, detached from the read buffer.
type Sample struct {
	Seq      uint64         `json:"seq"`
	Received time.Time      `json:"received"`
	Records  []SampleRecord `json:"records"`
}

type SampleRecord struct {
	Node   string    `json:"node,omitempty"`
	Key    int32     `json:"key"`
	Length int32     `json:"length"`
	Values []float32 `json:"values"`
}

func New(id, addr string, corsOrigins []string) *Server {
	observability.RegisterMetrics()
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.RequestLogger(observability.ComponentLogger("monitor")))
	r.Use(observability.RequestMetrics(id))
	r.Use(cors.New(cors.Config{
		AllowOrigins: normalizeOrigins(corsOrigins),
		AllowMethods: []string{"GET"},
		AllowHeaders: []string{"Origin", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	s := &Server{
		ID:       id,
		Addr:     addr,
		Appeared: time.Now(),
		router:   r,
	}
	s.registerRoutes()
	return s
}

// SetSource swaps the stream reported on /stream. nil clears it.
func (s *Server) SetSource(src StatsSource) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.source = src
}

// Observe keeps a copy of f for /stream/latest. It has the stream.Handler
// signature so it can wrap another handler.
func (s *Server) Observe(f stream.Frame) error {
	items := measurement.Decode(f.Data, f.View.Dimension())
	sample := &Sample{
		Seq:      f.Seq,
		Received: time.Now(),
		Records:  make([]SampleRecord, len(items)),
	}
	for i, it := range items {
		rec := SampleRecord{Key: it.Key, Length: it.Length, Values: it.Data}
		if i < len(f.Names) {
			rec.Node = f.Names[i]
		}
		sample.Records[i] = rec
	}
	s.mu.Lock()
	s.latest = sample
	s.mu.Unlock()
	return nil
}

// Latest is the most recently observed frame, or nil.
func (s *Server) Latest() *Sample {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latest
}

func (s *Server) Source() StatsSource {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.source
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) registerRoutes() {
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"uptime":  time.Since(s.Appeared).String(),
			"service": s.ID,
		})
	})

	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	s.router.GET("/ready", func(c *gin.Context) {
		src := s.Source()
		if src == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"ready": false})
			return
		}
		st := src.Stats()
		ready := st.State == stream.StateStreaming.String()
		status := http.StatusOK
		if !ready {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"ready": ready, "state": st.State})
	})

	s.router.GET("/stream", func(c *gin.Context) {
		src := s.Source()
		if src == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "no active stream"})
			return
		}
		c.JSON(http.StatusOK, src.Stats())
	})

	s.router.GET("/stream/latest", func(c *gin.Context) {
		sample := s.Latest()
		if sample == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "no data frame yet"})
			return
		}
		c.JSON(http.StatusOK, sample)
	})
}

// Serve listens on s.Addr until ctx is done, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.Addr)
	if err != nil {
		return err
	}
	return s.ServeListener(ctx, ln)
}

func (s *Server) ServeListener(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	log.Info().Str("addr", ln.Addr().String()).Msg("monitor listening")

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	}
}

func normalizeOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"http://localhost:3000"}
	}
	return origins
}
