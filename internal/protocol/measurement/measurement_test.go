package measurement

import (
	"encoding/binary"
	"errors"
	"math"
	"testing"

	"github.com/danmuck/mocapctl/internal/testutil/testlog"
)

func TestNewViewCounts(t *testing.T) {
	testlog.Start(t)
	cases := []struct {
		n    int
		size int
		want int
	}{
		{n: 8, size: 10 * ItemSize(8), want: 10},
		{n: 4, size: 5 * ItemSize(4), want: 5},
		{n: 10, size: ItemSize(10) + 1, want: 0},
		{n: 1, size: 0, want: 0},
		{n: 3, size: ItemSize(3) - 1, want: 0},
	}
	for _, tc := range cases {
		v := NewView(make([]byte, tc.size), tc.n)
		if v.Len() != tc.want {
			t.Fatalf("n=%d size=%d got=%d want=%d", tc.n, tc.size, v.Len(), tc.want)
		}
		if len(v.Items()) != tc.want {
			t.Fatalf("n=%d size=%d items got=%d", tc.n, tc.size, len(v.Items()))
		}
	}
}

func TestItemSizeLayout(t *testing.T) {
	testlog.Start(t)
	if ItemSize(0) != 8 || ItemSize(1) != 12 || ItemSize(8) != 40 {
		t.Fatalf("unexpected item sizes: %d %d %d", ItemSize(0), ItemSize(1), ItemSize(8))
	}
}

func TestViewReadsFieldsAtFixedOffsets(t *testing.T) {
	testlog.Start(t)
	buf := make([]byte, 2*ItemSize(2))
	put := func(off int, v uint32) { binary.NativeEndian.PutUint32(buf[off:], v) }
	put(0, 7)
	put(4, 2)
	put(8, math.Float32bits(1.5))
	put(12, math.Float32bits(-2.25))
	put(16, uint32(0xFFFFFFFF))
	put(20, 2)
	put(24, math.Float32bits(3))
	put(28, math.Float32bits(4))

	v := NewView(buf, 2)
	if v.Len() != 2 {
		t.Fatalf("len got=%d", v.Len())
	}
	if v.Key(0) != 7 || v.Length(0) != 2 {
		t.Fatalf("record 0 header got key=%d length=%d", v.Key(0), v.Length(0))
	}
	if v.Value(0, 0) != 1.5 || v.Value(0, 1) != -2.25 {
		t.Fatalf("record 0 data got=%v", v.At(0).Data)
	}
	if v.Key(1) != -1 {
		t.Fatalf("key must be signed, got=%d", v.Key(1))
	}
	items := v.Items()
	if items[1].Data[0] != 3 || items[1].Data[1] != 4 {
		t.Fatalf("record 1 data got=%v", items[1].Data)
	}
	if err := v.CheckLengths(); err != nil {
		t.Fatalf("check lengths: %v", err)
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	testlog.Start(t)
	in := []Item{
		{Key: 1, Data: []float32{1, 0, 0, 0, 0.1, 0.2, 0.3, 1}},
		{Key: 2, Data: []float32{0.5, 0.5, 0.5, 0.5, 1, 2, 3, 4}},
	}
	wire := Encode(nil, in...)
	if len(wire) != 2*ItemSize(8) {
		t.Fatalf("wire size got=%d", len(wire))
	}
	out := Decode(wire, 8)
	if len(out) != 2 {
		t.Fatalf("decoded count got=%d", len(out))
	}
	for i := range in {
		if out[i].Key != in[i].Key || out[i].Length != 8 {
			t.Fatalf("record %d header got=%+v", i, out[i])
		}
		for j := range in[i].Data {
			if out[i].Data[j] != in[i].Data[j] {
				t.Fatalf("record %d scalar %d got=%v want=%v", i, j, out[i].Data[j], in[i].Data[j])
			}
		}
	}
	wire[0] ^= 0xff
	if out[0].Key != 1 {
		t.Fatalf("decoded items must not alias the buffer")
	}
}

func TestCheckLengthsMismatch(t *testing.T) {
	testlog.Start(t)
	wire := Encode(nil, Item{Key: 1, Data: []float32{1, 2, 3}})
	// Same byte size as one record of dimension 3, declared as 2.
	binary.NativeEndian.PutUint32(wire[4:], 2)
	err := NewView(wire, 3).CheckLengths()
	if !errors.Is(err, ErrLengthMismatch) {
		t.Fatalf("expected ErrLengthMismatch, got %v", err)
	}
}

func BenchmarkViewCreation(b *testing.B) {
	wire := make([]byte, 128*ItemSize(8))
	b.SetBytes(int64(len(wire)))
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		v := NewView(wire, 8)
		if v.Len() != 128 {
			b.Fatalf("len got=%d", v.Len())
		}
	}
}
