// Package stream owns one client session with the motion-capture data
// service: connect, handshake, channel request, and the metadata-aware frame
// read that the watchdog bounds.
package stream

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/danmuck/mocapctl/internal/observability"
	"github.com/danmuck/mocapctl/internal/protocol/channel"
	"github.com/danmuck/mocapctl/internal/protocol/frame"
	"github.com/danmuck/mocapctl/internal/protocol/metadata"
	"github.com/danmuck/mocapctl/internal/protocol/session"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// DefaultAddress is where the data service listens on a capture host.
const DefaultAddress = "127.0.0.1:32076"

// readBufferSize is independent of the frame limit; ReadFrame copies payloads
// into their own slices.
const readBufferSize = 16 << 10

var ErrAddressRequired = errors.New("stream: address required")

type Config struct {
	Address string
	Session session.Config
}

func DefaultConfig() Config {
	return Config{
		Address: DefaultAddress,
		Session: session.DefaultConfig(),
	}
}

// Stream is one connected session. ReadNext and RequestChannels are meant for
// a single reader goroutine; Close, Names and Stats are safe from any
// goroutine.
type Stream struct {
	id       string
	cfg      session.Config
	conn     net.Conn
	reader   *bufio.Reader
	deadline *session.Deadline
	log      zerolog.Logger

	state     atomic.Int32
	closeOnce sync.Once
	closeErr  error
	outcome   atomic.Value

	mu        sync.Mutex
	names     []string
	namesGen  uint64
	mask      channel.Mask
	service   metadata.Service
	frames    uint64
	metaCount uint64
	bytes     uint64
	lastFrame time.Time
}

// Dial connects to cfg.Address and performs the handshake.
func Dial(ctx context.Context, cfg Config) (*Stream, error) {
	addr := strings.TrimSpace(cfg.Address)
	if addr == "" {
		return nil, ErrAddressRequired
	}
	cfg.Session = cfg.Session.WithDefaults()

	dialer := net.Dialer{Timeout: cfg.Session.ConnectTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("stream: dial %s: %w", addr, err)
	}
	if err := tuneConn(conn); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("stream: set tcp no-delay: %w", err)
	}
	return New(ctx, conn, cfg.Session)
}

// New performs the handshake on an already connected transport. The handshake
// ends early when ctx is done. On failure the conn is closed.
func New(ctx context.Context, conn net.Conn, cfg session.Config) (*Stream, error) {
	cfg = cfg.WithDefaults()
	s := &Stream{
		id:       uuid.NewString(),
		cfg:      cfg,
		conn:     conn,
		reader:   bufio.NewReaderSize(conn, readBufferSize),
		deadline: session.NewDeadline(),
		names:    []string{},
	}
	s.log = observability.ComponentLogger("stream").With().
		Str("session", s.id).
		Str("addr", remoteAddr(conn)).
		Logger()
	s.outcome.Store("closed")
	s.state.Store(int32(StateConnecting))

	if err := s.handshake(ctx); err != nil {
		s.state.Store(int32(StateClosed))
		_ = conn.Close()
		return nil, err
	}
	observability.RecordSessionOpened()
	return s, nil
}

func (s *Stream) handshake(ctx context.Context) error {
	s.state.Store(int32(StateHandshaking))
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("stream: handshake: %w", err)
	}
	stop := context.AfterFunc(ctx, func() { _ = s.conn.Close() })
	defer stop()

	deadline := time.Now().Add(s.cfg.HandshakeTimeout)
	ctxBound := false
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
		ctxBound = true
	}
	if err := s.conn.SetReadDeadline(deadline); err != nil {
		return fmt.Errorf("stream: handshake deadline: %w", err)
	}
	payload, err := frame.ReadFrame(s.reader, s.cfg.Limits)
	if err != nil {
		err = fmt.Errorf("stream: read handshake: %w", err)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return errors.Join(ctxErr, err)
		}
		// The conn deadline can fire just before the context timer does.
		if ctxBound && !time.Now().Before(deadline) {
			return errors.Join(context.DeadlineExceeded, err)
		}
		return err
	}
	if !metadata.IsMetadata(payload) {
		return fmt.Errorf("%w: got %d bytes", session.ErrHandshake, len(payload))
	}
	if !stop() {
		return fmt.Errorf("stream: handshake: %w", ctx.Err())
	}
	if err := s.conn.SetReadDeadline(time.Time{}); err != nil {
		return fmt.Errorf("stream: clear handshake deadline: %w", err)
	}

	svc, ok := metadata.ParseService(payload)
	s.mu.Lock()
	s.service = svc
	s.mu.Unlock()
	if ok {
		s.log.Info().Str("service", svc.Name).Str("version", svc.Version).Msg("handshake complete")
	} else {
		s.log.Info().Int("len", len(payload)).Msg("handshake complete")
	}
	s.state.Store(int32(StateStreaming))
	return nil
}

func remoteAddr(conn net.Conn) string {
	if addr := conn.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return ""
}

func (s *Stream) ID() string {
	return s.id
}

func (s *Stream) State() State {
	return State(s.state.Load())
}

// Deadline is the read deadline this stream extends before every read.
func (s *Stream) Deadline() *session.Deadline {
	return s.deadline
}

// Config returns the effective session config.
func (s *Stream) Config() session.Config {
	return s.cfg
}

// Service is the greeting parsed during the handshake, if any.
func (s *Stream) Service() metadata.Service {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.service
}

// RequestChannels asks the service to stream the channels in mask. No reply
// is expected; the next data frames carry the requested layout.
func (s *Stream) RequestChannels(ctx context.Context, mask channel.Mask) error {
	if s.State() != StateStreaming {
		return session.ErrNotStreaming
	}
	deadline := time.Now().Add(s.cfg.WriteTimeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	if err := s.conn.SetWriteDeadline(deadline); err != nil {
		return fmt.Errorf("stream: write deadline: %w", err)
	}
	if err := frame.WriteFrame(s.conn, metadata.MakeChannelRequest(mask), s.cfg.Limits); err != nil {
		return fmt.Errorf("stream: write channel request: %w", err)
	}
	s.mu.Lock()
	s.mask = mask
	s.mu.Unlock()
	s.log.Debug().Strs("channels", mask.Names()).Int("dim", channel.MaskDimension(mask)).Msg("channels requested")
	return nil
}

// Mask is the most recently requested channel mask.
func (s *Stream) Mask() channel.Mask {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mask
}

// Dimension is the scalar count per record implied by Mask.
func (s *Stream) Dimension() int {
	return channel.MaskDimension(s.Mask())
}

// Names returns a copy of the current node name list.
func (s *Stream) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.names))
	copy(out, s.names)
	return out
}

// NamesGeneration increments every time a metadata frame replaces the names.
func (s *Stream) NamesGeneration() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.namesGen
}

// ReadNext extends the deadline by the read timeout and returns the next data
// frame. Metadata frames in between replace the name list and are not
// returned. Canceling ctx closes the stream.
func (s *Stream) ReadNext(ctx context.Context) ([]byte, error) {
	return s.readNext(ctx, s.deadline)
}

func (s *Stream) readNext(ctx context.Context, d *session.Deadline) ([]byte, error) {
	if s.State() == StateClosed {
		return nil, session.ErrClosed
	}
	stop := context.AfterFunc(ctx, func() { _ = s.Close() })
	defer stop()

	for {
		d.Extend(s.cfg.ReadTimeout)
		start := time.Now()
		payload, err := frame.ReadFrame(s.reader, s.cfg.Limits)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, errors.Join(ctxErr, err)
			}
			if s.State() == StateClosed {
				return nil, errors.Join(session.ErrClosed, err)
			}
			return nil, fmt.Errorf("stream: read frame: %w", err)
		}

		if metadata.IsMetadata(payload) {
			names := metadata.ParseNodeNames(payload)
			s.mu.Lock()
			s.names = names
			s.namesGen++
			s.metaCount++
			s.bytes += uint64(len(payload))
			s.mu.Unlock()
			observability.RecordMetadataFrame(len(payload))
			s.log.Debug().Strs("names", names).Msg("node names updated")
			continue
		}

		s.mu.Lock()
		s.frames++
		s.bytes += uint64(len(payload))
		s.lastFrame = time.Now()
		s.mu.Unlock()
		observability.RecordDataFrame(len(payload), len(payload)/max(1, s.itemSize()), time.Since(start))
		return payload, nil
	}
}

func (s *Stream) itemSize() int {
	return 8 + 4*s.Dimension()
}

// Stats is a point-in-time view for status reporting.
type Stats struct {
	ID             string    `json:"id"`
	State          string    `json:"state"`
	Service        string    `json:"service,omitempty"`
	Version        string    `json:"version,omitempty"`
	Channels       []string  `json:"channels"`
	Dimension      int       `json:"dimension"`
	Names          []string  `json:"names"`
	DataFrames     uint64    `json:"data_frames"`
	MetadataFrames uint64    `json:"metadata_frames"`
	Bytes          uint64    `json:"bytes"`
	LastFrame      time.Time `json:"last_frame"`
	Deadline       time.Time `json:"deadline"`
}

func (s *Stream) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, len(s.names))
	copy(names, s.names)
	return Stats{
		ID:             s.id,
		State:          s.State().String(),
		Service:        s.service.Name,
		Version:        s.service.Version,
		Channels:       s.mask.Names(),
		Dimension:      channel.MaskDimension(s.mask),
		Names:          names,
		DataFrames:     s.frames,
		MetadataFrames: s.metaCount,
		Bytes:          s.bytes,
		LastFrame:      s.lastFrame,
		Deadline:       s.deadline.At(),
	}
}

// Close shuts down both directions of the transport, closes it and clears the
// name list. Repeated calls return the first result.
func (s *Stream) Close() error {
	s.closeOnce.Do(func() {
		wasOpen := State(s.state.Swap(int32(StateClosed))) != StateClosed
		if err := shutdownConn(s.conn); err != nil {
			s.log.Debug().Err(err).Msg("shutdown")
		}
		s.closeErr = s.conn.Close()
		s.mu.Lock()
		s.names = []string{}
		s.mu.Unlock()
		if wasOpen {
			outcome, _ := s.outcome.Load().(string)
			observability.RecordSessionClosed(outcome)
			s.log.Info().Str("outcome", outcome).Msg("stream closed")
		}
	})
	return s.closeErr
}
