package stream

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/danmuck/mocapctl/internal/observability"
	"github.com/danmuck/mocapctl/internal/protocol/measurement"
	"github.com/danmuck/mocapctl/internal/protocol/session"
	"golang.org/x/sync/errgroup"
)

// ErrStop ends Run without error when returned by a Handler.
var ErrStop = errors.New("stream: stop")

// Frame is one data frame handed to a Handler.
type Frame struct {
	Seq  uint64
	Data []byte
	// Names is the node list in effect for this frame, in record order.
	Names []string
	// NamesChanged is set when a metadata frame arrived since the previous
	// data frame.
	NamesChanged bool
	View         measurement.View
}

// Handler consumes frames from Run. Data is only valid until the handler
// returns.
type Handler func(Frame) error

// Run reads frames and passes them to h while a watchdog closes the stream if
// a read outlives the deadline. Whichever finishes first ends the other. Run
// owns s from here on and closes it before returning.
//
// A watchdog expiry is reported as an error matching session.ErrWatchdogExpired.
func (s *Stream) Run(parent context.Context, h Handler) error {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	d := s.Deadline()
	d.Extend(s.cfg.ReadTimeout)

	var expired atomic.Bool
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer cancel()
		return s.readLoop(gctx, d, h)
	})
	g.Go(func() error {
		err := session.Watchdog(gctx, d, func() {
			expired.Store(true)
			s.setOutcome("timeout")
			s.log.Warn().Dur("timeout", s.cfg.ReadTimeout).Msg("watchdog expired, closing stream")
			_ = s.Close()
		})
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	err := g.Wait()
	switch {
	case expired.Load():
		if !errors.Is(err, session.ErrWatchdogExpired) {
			err = errors.Join(session.ErrWatchdogExpired, err)
		}
	case parent.Err() != nil:
		err = parent.Err()
		s.setOutcome("canceled")
	case err != nil:
		s.setOutcome(classify(err))
	default:
		s.setOutcome("ok")
	}
	_ = s.Close()
	return err
}

func (s *Stream) readLoop(ctx context.Context, d *session.Deadline, h Handler) error {
	var seq uint64
	lastGen := s.NamesGeneration()
	for {
		data, err := s.readNext(ctx, d)
		if err != nil {
			return err
		}

		view, err := s.checkFrame(data)
		if err != nil {
			return err
		}

		gen := s.NamesGeneration()
		seq++
		fr := Frame{
			Seq:          seq,
			Data:         data,
			Names:        s.Names(),
			NamesChanged: gen != lastGen,
			View:         view,
		}
		lastGen = gen

		if err := h(fr); err != nil {
			if errors.Is(err, ErrStop) {
				return nil
			}
			return err
		}
	}
}

// checkFrame overlays the negotiated record layout. Mismatches are fatal only
// with StrictLengths; otherwise they are counted and the frame is passed on
// with whatever records align.
func (s *Stream) checkFrame(data []byte) (measurement.View, error) {
	dim := s.Dimension()
	view := measurement.NewView(data, dim)

	var problem error
	if view.Len() == 0 {
		problem = fmt.Errorf("%w: %d bytes, record size %d", session.ErrUnexpectedDataLen, len(data), measurement.ItemSize(dim))
	} else if err := view.CheckLengths(); err != nil {
		problem = err
	}
	if problem == nil {
		return view, nil
	}

	observability.RecordLengthMismatch()
	if s.cfg.StrictLengths {
		return view, problem
	}
	s.log.Debug().Err(problem).Msg("data frame does not match negotiated channels")
	return view, nil
}

func (s *Stream) setOutcome(outcome string) {
	s.outcome.Store(outcome)
}

func classify(err error) string {
	switch {
	case session.IsTimeout(err):
		return "timeout"
	case session.IsProtocol(err):
		return "protocol"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "transport"
	}
}
