// Package measurement reads binary data frames as fixed-layout records.
//
// One record on the wire:
//
//	offset 0  int32    key
//	offset 4  int32    length (declared scalar count)
//	offset 8  float32  data[N]
//
// Values are in the service host's native byte order; only the frame length
// prefix is big-endian.
package measurement

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

const (
	keyOffset    = 0
	lengthOffset = 4
	dataOffset   = 8
	scalarSize   = 4
)

var ErrLengthMismatch = errors.New("measurement: record length does not match channel dimension")

// Item is one decoded record.
type Item struct {
	Key    int32
	Length int32
	Data   []float32
}

// ItemSize is the wire size of a record carrying n scalars.
func ItemSize(n int) int {
	return dataOffset + scalarSize*n
}

// View indexes records in a frame without copying it. It is only valid while
// the backing buffer is unchanged.
type View struct {
	buf    []byte
	dim    int
	stride int
	count  int
}

// NewView returns a view of b as records of n scalars. An empty or misaligned
// buffer yields an empty view.
func NewView(b []byte, n int) View {
	if n < 0 || len(b) == 0 {
		return View{dim: max(n, 0)}
	}
	stride := ItemSize(n)
	if len(b)%stride != 0 {
		return View{dim: n}
	}
	return View{
		buf:    b,
		dim:    n,
		stride: stride,
		count:  len(b) / stride,
	}
}

func (v View) Len() int {
	return v.count
}

func (v View) Dimension() int {
	return v.dim
}

func (v View) record(i int) []byte {
	if i < 0 || i >= v.count {
		panic(fmt.Sprintf("measurement: index %d out of range [0,%d)", i, v.count))
	}
	return v.buf[i*v.stride : (i+1)*v.stride]
}

func (v View) Key(i int) int32 {
	return int32(binary.NativeEndian.Uint32(v.record(i)[keyOffset:]))
}

// Length is the scalar count the record declares for itself.
func (v View) Length(i int) int32 {
	return int32(binary.NativeEndian.Uint32(v.record(i)[lengthOffset:]))
}

// Value returns scalar j of record i.
func (v View) Value(i, j int) float32 {
	if j < 0 || j >= v.dim {
		panic(fmt.Sprintf("measurement: scalar %d out of range [0,%d)", j, v.dim))
	}
	off := dataOffset + j*scalarSize
	return math.Float32frombits(binary.NativeEndian.Uint32(v.record(i)[off:]))
}

// AppendValues appends the scalars of record i to dst.
func (v View) AppendValues(dst []float32, i int) []float32 {
	rec := v.record(i)
	for j := 0; j < v.dim; j++ {
		off := dataOffset + j*scalarSize
		dst = append(dst, math.Float32frombits(binary.NativeEndian.Uint32(rec[off:])))
	}
	return dst
}

// At decodes record i into an owned Item.
func (v View) At(i int) Item {
	return Item{
		Key:    v.Key(i),
		Length: v.Length(i),
		Data:   v.AppendValues(make([]float32, 0, v.dim), i),
	}
}

// Items decodes every record. Data slices share one backing array.
func (v View) Items() []Item {
	if v.count == 0 {
		return []Item{}
	}
	items := make([]Item, v.count)
	values := make([]float32, 0, v.count*v.dim)
	for i := range items {
		start := len(values)
		values = v.AppendValues(values, i)
		items[i] = Item{
			Key:    v.Key(i),
			Length: v.Length(i),
			Data:   values[start:len(values):len(values)],
		}
	}
	return items
}

// CheckLengths reports the first record whose declared length differs from
// the view's dimension.
func (v View) CheckLengths() error {
	for i := 0; i < v.count; i++ {
		if got := v.Length(i); int(got) != v.dim {
			return fmt.Errorf("%w: record %d key=%d length=%d want=%d", ErrLengthMismatch, i, v.Key(i), got, v.dim)
		}
	}
	return nil
}

// Decode is the copying form of NewView(b, n).Items().
func Decode(b []byte, n int) []Item {
	return NewView(b, n).Items()
}

// Encode appends records to dst in wire layout. The declared length of each
// record is len(item.Data).
func Encode(dst []byte, items ...Item) []byte {
	for _, it := range items {
		dst = binary.NativeEndian.AppendUint32(dst, uint32(it.Key))
		dst = binary.NativeEndian.AppendUint32(dst, uint32(len(it.Data)))
		for _, f := range it.Data {
			dst = binary.NativeEndian.AppendUint32(dst, math.Float32bits(f))
		}
	}
	return dst
}
