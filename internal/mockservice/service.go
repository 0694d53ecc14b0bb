// Package mockservice is a stand-in for the motion-capture data service. It
// speaks the same framed protocol: greeting, channel request, node list, then
// synthetic measurement frames sized to whatever channels the client asked for.
package mockservice

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/danmuck/mocapctl/internal/observability"
	"github.com/danmuck/mocapctl/internal/protocol/channel"
	"github.com/danmuck/mocapctl/internal/protocol/frame"
	"github.com/danmuck/mocapctl/internal/protocol/measurement"
	"github.com/danmuck/mocapctl/internal/protocol/metadata"
	"github.com/rs/zerolog"
)

const DefaultAddr = "127.0.0.1:32076"

// ErrNodesRequired is returned by Serve when there is no node to report; every
// data frame needs at least one record.
var ErrNodesRequired = errors.New("mockservice: at least one node is required")

type Config struct {
	Addr    string
	Service metadata.Service
	Nodes   []string
	// Frames is the number of data frames per connection. Zero streams until
	// the client goes away.
	Frames   int
	Interval time.Duration
	// MetadataEvery resends the node list before every Nth data frame.
	MetadataEvery int
	// Stall keeps the connection open and silent after the last frame.
	Stall bool
	// LengthSkew is added to the declared length of every record.
	LengthSkew     int
	RequestTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		Addr:           DefaultAddr,
		Service:        metadata.Service{Name: "configurable", Version: "2.0.0"},
		Nodes:          []string{"Hips", "Chest"},
		Frames:         0,
		Interval:       10 * time.Millisecond,
		RequestTimeout: 5 * time.Second,
	}
}

func (c Config) Validate() error {
	if len(c.Nodes) == 0 {
		return ErrNodesRequired
	}
	for i, name := range c.Nodes {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("mockservice: node %d has an empty name", i)
		}
	}
	return nil
}

type Service struct {
	cfg Config
	log zerolog.Logger

	active atomic.Int64

	connsMu sync.Mutex
	conns   map[net.Conn]struct{}

	reqMu    sync.Mutex
	requests []channel.Mask
}

func New(cfg Config) *Service {
	def := DefaultConfig()
	if strings.TrimSpace(cfg.Addr) == "" {
		cfg.Addr = def.Addr
	}
	if cfg.Service == (metadata.Service{}) {
		cfg.Service = def.Service
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = def.RequestTimeout
	}
	if cfg.Frames < 0 {
		cfg.Frames = 0
	}
	return &Service{
		cfg:   cfg,
		log:   observability.ComponentLogger("mockservice"),
		conns: make(map[net.Conn]struct{}),
	}
}

// ListenAndServe binds cfg.Addr and serves until ctx is done.
func (s *Service) ListenAndServe(ctx context.Context) error {
	if err := s.cfg.Validate(); err != nil {
		return err
	}
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve accepts clients on ln until ctx is done. Open connections are closed
// on the way out.
func (s *Service) Serve(ctx context.Context, ln net.Listener) error {
	defer ln.Close()
	if err := s.cfg.Validate(); err != nil {
		return err
	}
	s.log.Info().Str("addr", ln.Addr().String()).Strs("nodes", s.cfg.Nodes).Msg("mock service listening")
	go func() {
		<-ctx.Done()
		s.closeAllConns()
		_ = ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		s.trackConn(conn)
		go s.handleConn(ctx, conn)
	}
}

// Requests returns every channel mask clients have asked for, in arrival
// order.
func (s *Service) Requests() []channel.Mask {
	s.reqMu.Lock()
	defer s.reqMu.Unlock()
	out := make([]channel.Mask, len(s.requests))
	copy(out, s.requests)
	return out
}

func (s *Service) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	defer s.untrackConn(conn)
	log := s.log.With().Str("remote", conn.RemoteAddr().String()).Logger()
	log.Info().Int64("active_clients", s.active.Add(1)).Msg("client connected")
	defer func() {
		log.Info().Int64("active_clients", s.active.Add(-1)).Msg("client disconnected")
	}()

	limits := frame.DefaultLimits()
	if err := frame.WriteFrame(conn, metadata.MakeService(s.cfg.Service), limits); err != nil {
		log.Warn().Err(err).Msg("write greeting")
		return
	}

	_ = conn.SetReadDeadline(time.Now().Add(s.cfg.RequestTimeout))
	req, err := frame.ReadFrame(conn, limits)
	if err != nil {
		log.Warn().Err(err).Msg("read channel request")
		return
	}
	_ = conn.SetReadDeadline(time.Time{})
	mask, err := metadata.ParseChannelRequest(req)
	if err != nil {
		log.Warn().Err(err).Msg("parse channel request")
		return
	}
	s.reqMu.Lock()
	s.requests = append(s.requests, mask)
	s.reqMu.Unlock()
	dim := channel.MaskDimension(mask)
	log.Debug().Strs("channels", mask.Names()).Int("dim", dim).Msg("channels requested")

	names := metadata.MakeNodeList(s.cfg.Nodes)
	if err := frame.WriteFrame(conn, names, limits); err != nil {
		log.Warn().Err(err).Msg("write node list")
		return
	}

	buf := make([]byte, 0, len(s.cfg.Nodes)*measurement.ItemSize(dim))
	for seq := 0; s.cfg.Frames == 0 || seq < s.cfg.Frames; seq++ {
		if ctx.Err() != nil {
			return
		}
		if s.cfg.MetadataEvery > 0 && seq > 0 && seq%s.cfg.MetadataEvery == 0 {
			if err := frame.WriteFrame(conn, names, limits); err != nil {
				log.Debug().Err(err).Msg("write node list")
				return
			}
		}
		buf = EncodeFrame(buf[:0], seq, len(s.cfg.Nodes), dim, s.cfg.LengthSkew)
		if err := frame.WriteFrame(conn, buf, limits); err != nil {
			log.Debug().Err(err).Int("seq", seq).Msg("write data frame")
			return
		}
		if s.cfg.Interval > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(s.cfg.Interval):
			}
		}
	}

	if s.cfg.Stall {
		log.Debug().Msg("stalling")
		_, _ = io.Copy(io.Discard, conn)
	}
}

// EncodeFrame appends one synthetic data frame of nodes records with dim
// values each. Keys start at 1 to match MakeNodeList.
func EncodeFrame(dst []byte, seq, nodes, dim, skew int) []byte {
	start := len(dst)
	data := make([]float32, dim)
	for r := 0; r < nodes; r++ {
		for j := range data {
			data[j] = Value(seq, r, j)
		}
		dst = measurement.Encode(dst, measurement.Item{Key: int32(r + 1), Data: data})
	}
	if skew != 0 {
		size := measurement.ItemSize(dim)
		for r := 0; r < nodes; r++ {
			off := start + r*size + 4
			binary.NativeEndian.PutUint32(dst[off:], uint32(int32(dim+skew)))
		}
	}
	return dst
}

// Value is the synthetic sample at frame seq, record r, scalar j.
func Value(seq, r, j int) float32 {
	return float32(seq) + float32(r)*0.25 + float32(j)*0.0625
}

func (s *Service) trackConn(conn net.Conn) {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()
	s.conns[conn] = struct{}{}
}

func (s *Service) untrackConn(conn net.Conn) {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()
	delete(s.conns, conn)
}

func (s *Service) closeAllConns() {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()
	for conn := range s.conns {
		_ = conn.Close()
		delete(s.conns, conn)
	}
}
