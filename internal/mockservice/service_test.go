package mockservice

import (
	"context"
	"errors"
	"net"
	"reflect"
	"testing"
	"time"

	"github.com/danmuck/mocapctl/internal/protocol/channel"
	"github.com/danmuck/mocapctl/internal/protocol/frame"
	"github.com/danmuck/mocapctl/internal/protocol/measurement"
	"github.com/danmuck/mocapctl/internal/protocol/metadata"
	"github.com/danmuck/mocapctl/internal/testutil/testlog"
)

func TestEncodeFrameLayout(t *testing.T) {
	testlog.Start(t)
	b := EncodeFrame(nil, 3, 2, 4, 0)
	if len(b) != 2*measurement.ItemSize(4) {
		t.Fatalf("len got=%d want=%d", len(b), 2*measurement.ItemSize(4))
	}
	v := measurement.NewView(b, 4)
	if err := v.CheckLengths(); err != nil {
		t.Fatalf("check lengths: %v", err)
	}
	if v.Key(0) != 1 || v.Key(1) != 2 {
		t.Fatalf("keys got=%d,%d", v.Key(0), v.Key(1))
	}
	if got, want := v.Value(1, 2), Value(3, 1, 2); got != want {
		t.Fatalf("value got=%v want=%v", got, want)
	}

	skewed := measurement.NewView(EncodeFrame(nil, 0, 2, 4, -1), 4)
	if skewed.Length(0) != 3 || skewed.Length(1) != 3 {
		t.Fatalf("skewed lengths got=%d,%d", skewed.Length(0), skewed.Length(1))
	}
	if !errors.Is(skewed.CheckLengths(), measurement.ErrLengthMismatch) {
		t.Fatalf("expected skewed frame to fail length check")
	}
}

func TestServeConversation(t *testing.T) {
	testlog.Start(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	svc := New(Config{Nodes: []string{"Hips", "Chest"}, Frames: 2})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- svc.Serve(ctx, ln)
	}()
	defer func() {
		cancel()
		if err := <-done; err != nil {
			t.Fatalf("serve: %v", err)
		}
	}()

	conn, err := net.DialTimeout("tcp", ln.Addr().String(), time.Second)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(3 * time.Second))
	limits := frame.DefaultLimits()

	hello, err := frame.ReadFrame(conn, limits)
	if err != nil {
		t.Fatalf("read greeting: %v", err)
	}
	if svcInfo, ok := metadata.ParseService(hello); !ok || svcInfo.Name != "configurable" {
		t.Fatalf("unexpected greeting %q", hello)
	}

	mask := channel.MaskOf(channel.Gq, channel.Dt)
	if err := frame.WriteFrame(conn, metadata.MakeChannelRequest(mask), limits); err != nil {
		t.Fatalf("write request: %v", err)
	}

	names, err := frame.ReadFrame(conn, limits)
	if err != nil {
		t.Fatalf("read names: %v", err)
	}
	if got := metadata.ParseNodeNames(names); !reflect.DeepEqual(got, []string{"Hips", "Chest"}) {
		t.Fatalf("names got=%v", got)
	}
	for seq := 0; seq < 2; seq++ {
		data, err := frame.ReadFrame(conn, limits)
		if err != nil {
			t.Fatalf("read frame %d: %v", seq, err)
		}
		if len(data) != 2*measurement.ItemSize(5) {
			t.Fatalf("frame %d len=%d", seq, len(data))
		}
	}
	if reqs := svc.Requests(); len(reqs) != 1 || reqs[0] != mask {
		t.Fatalf("requests got=%v", reqs)
	}
}

func TestServeRequiresNodes(t *testing.T) {
	testlog.Start(t)
	cases := []Config{
		{},
		{Nodes: []string{"Hips", "  "}},
	}
	for i, cfg := range cases {
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			t.Fatalf("listen: %v", err)
		}
		err = New(cfg).Serve(context.Background(), ln)
		if err == nil {
			t.Fatalf("case %d: expected config error", i)
		}
		if i == 0 && !errors.Is(err, ErrNodesRequired) {
			t.Fatalf("case %d: got %v want ErrNodesRequired", i, err)
		}
		if _, err := net.DialTimeout("tcp", ln.Addr().String(), 200*time.Millisecond); err == nil {
			t.Fatalf("case %d: listener left open", i)
		}
	}
}
