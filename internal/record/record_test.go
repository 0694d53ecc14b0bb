package record

import (
	"bytes"
	"errors"
	"reflect"
	"testing"

	"github.com/danmuck/mocapctl/internal/protocol/channel"
	"github.com/danmuck/mocapctl/internal/protocol/measurement"
	"github.com/danmuck/mocapctl/internal/stream"
	"github.com/danmuck/mocapctl/internal/testutil/testlog"
)

func frameOf(mask channel.Mask, names []string, changed bool, items ...measurement.Item) stream.Frame {
	data := measurement.Encode(nil, items...)
	return stream.Frame{
		Data:         data,
		Names:        names,
		NamesChanged: changed,
		View:         measurement.NewView(data, channel.MaskDimension(mask)),
	}
}

func TestHeaderExpandsColumns(t *testing.T) {
	testlog.Start(t)
	r, err := New(&bytes.Buffer{}, channel.MaskOf(channel.Lq, channel.C), DefaultOptions())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	got := r.Header([]string{"Hips"})
	want := []string{"Hips.Lqw", "Hips.Lqx", "Hips.Lqy", "Hips.Lqz", "Hips.cw", "Hips.cx", "Hips.cy", "Hips.cz"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("header got=%v want=%v", got, want)
	}
}

func TestHandleWritesHeaderOnlyWhenNamesChange(t *testing.T) {
	testlog.Start(t)
	mask := channel.MaskOf(channel.A, channel.Dt)
	var out bytes.Buffer
	r, err := New(&out, mask, DefaultOptions())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	names := []string{"A", "B"}
	frames := []stream.Frame{
		frameOf(mask, names, true,
			measurement.Item{Key: 1, Data: []float32{1, 2, 3, 0.5}},
			measurement.Item{Key: 2, Data: []float32{-1, 0, 1.25, 0.0005}},
		),
		frameOf(mask, names, false,
			measurement.Item{Key: 1, Data: []float32{4, 5, 6, 7}},
			measurement.Item{Key: 2, Data: []float32{8, 9, 10, 11}},
		),
	}
	for _, f := range frames {
		if err := r.Handle(f); err != nil {
			t.Fatalf("handle: %v", err)
		}
	}
	want := "A.ax,A.ay,A.az,A.dt,B.ax,B.ay,B.az,B.dt\n" +
		"1.000,2.000,3.000,0.500,-1.000,0.000,1.250,0.001\n" +
		"4.000,5.000,6.000,7.000,8.000,9.000,10.000,11.000\n"
	if got := out.String(); got != want {
		t.Fatalf("output got=\n%s\nwant=\n%s", got, want)
	}
	if r.Rows() != 2 || r.Headers() != 1 {
		t.Fatalf("rows=%d headers=%d", r.Rows(), r.Headers())
	}
}

func TestHandleCustomSeparatorAndNoHeader(t *testing.T) {
	testlog.Start(t)
	mask := channel.MaskOf(channel.Dt, channel.Timestamp)
	var out bytes.Buffer
	opts := Options{Separator: " | ", Newline: "\r\n", Precision: 1}
	r, err := New(&out, mask, opts)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	f := frameOf(mask, []string{"Hips"}, true, measurement.Item{Key: 1, Data: []float32{0.3, 12}})
	if err := r.Handle(f); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if got, want := out.String(), "0.3 | 12.0\r\n"; got != want {
		t.Fatalf("output got=%q want=%q", got, want)
	}
}

func TestHandleStopsAtFrameLimit(t *testing.T) {
	testlog.Start(t)
	mask := channel.MaskOf(channel.Dt)
	opts := DefaultOptions()
	opts.Frames = 2
	r, err := New(&bytes.Buffer{}, mask, opts)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	f := frameOf(mask, nil, false, measurement.Item{Key: 1, Data: []float32{1}})
	if err := r.Handle(f); err != nil {
		t.Fatalf("first handle: %v", err)
	}
	if err := r.Handle(f); !errors.Is(err, stream.ErrStop) {
		t.Fatalf("second handle got=%v want ErrStop", err)
	}
}

func TestOptionsValidate(t *testing.T) {
	testlog.Start(t)
	bad := []Options{
		{Separator: "", Newline: "\n"},
		{Separator: ",", Newline: ""},
		{Separator: ",", Newline: "\n", Precision: -1},
		{Separator: ",", Newline: "\n", Frames: -1},
	}
	for i, opts := range bad {
		if _, err := New(&bytes.Buffer{}, channel.AllMask, opts); err == nil {
			t.Fatalf("case %d: expected validation error", i)
		}
	}
}
