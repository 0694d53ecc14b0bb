package channel

import (
	"errors"
	"fmt"
	"strings"
)

// Channel is one measurement kind. The value is its bit in a Mask.
type Channel uint32

// Mask is a bitwise OR of Channel values.
type Mask uint32

const (
	None      Channel = 0
	Gq        Channel = 1 << 0
	Gdq       Channel = 1 << 1
	Lq        Channel = 1 << 2
	R         Channel = 1 << 3
	La        Channel = 1 << 4
	Lv        Channel = 1 << 5
	Lt        Channel = 1 << 6
	C         Channel = 1 << 7
	A         Channel = 1 << 8
	M         Channel = 1 << 9
	G         Channel = 1 << 10
	Temp      Channel = 1 << 11
	RawA      Channel = 1 << 12
	RawM      Channel = 1 << 13
	RawG      Channel = 1 << 14
	RawTemp   Channel = 1 << 15
	Dt        Channel = 1 << 16
	Timestamp Channel = 1 << 17
	Systime   Channel = 1 << 18
	Ea        Channel = 1 << 19
	Em        Channel = 1 << 20
	Eg        Channel = 1 << 21
	Eq        Channel = 1 << 22
	Ec        Channel = 1 << 23
	P         Channel = 1 << 24
	Atm       Channel = 1 << 25
	Elev      Channel = 1 << 26
	Bq        Channel = 1 << 27
)

// AllMask enables every defined channel.
const AllMask Mask = 0x0FFFFFFF

var ErrUnknownChannel = errors.New("channel: unknown channel name")

type info struct {
	ch   Channel
	dim  int
	name string
}

// table is ordered by bit position. Wire names are case sensitive.
var table = [...]info{
	{Gq, 4, "Gq"},
	{Gdq, 4, "Gdq"},
	{Lq, 4, "Lq"},
	{R, 3, "r"},
	{La, 3, "la"},
	{Lv, 3, "lv"},
	{Lt, 3, "lt"},
	{C, 4, "c"},
	{A, 3, "a"},
	{M, 3, "m"},
	{G, 3, "g"},
	{Temp, 1, "temp"},
	{RawA, 3, "A"},
	{RawM, 3, "M"},
	{RawG, 3, "G"},
	{RawTemp, 1, "Temp"},
	{Dt, 1, "dt"},
	{Timestamp, 1, "timestamp"},
	{Systime, 1, "systime"},
	{Ea, 1, "ea"},
	{Em, 1, "em"},
	{Eg, 1, "eg"},
	{Eq, 1, "eq"},
	{Ec, 1, "ec"},
	{P, 4, "p"},
	{Atm, 1, "atm"},
	{Elev, 1, "elev"},
	{Bq, 4, "Bq"},
}

func lookup(c Channel) (info, bool) {
	for _, it := range table {
		if it.ch == c {
			return it, true
		}
	}
	return info{}, false
}

// All returns every defined channel in ascending bit order. None is excluded.
func All() []Channel {
	out := make([]Channel, len(table))
	for i, it := range table {
		out[i] = it.ch
	}
	return out
}

// Dimension returns the number of scalars in one sample of c, or 0 for None
// and values outside the table.
func Dimension(c Channel) int {
	it, ok := lookup(c)
	if !ok {
		return 0
	}
	return it.dim
}

// Name returns the wire name of c. Unknown values yield "None".
func Name(c Channel) string {
	it, ok := lookup(c)
	if !ok {
		return "None"
	}
	return it.name
}

func (c Channel) String() string {
	return Name(c)
}

// Parse resolves a wire name such as "Lq" or "timestamp".
func Parse(name string) (Channel, error) {
	name = strings.TrimSpace(name)
	for _, it := range table {
		if it.name == name {
			return it.ch, nil
		}
	}
	return None, fmt.Errorf("%w: %q", ErrUnknownChannel, name)
}

// ParseMask ORs together the named channels.
func ParseMask(names []string) (Mask, error) {
	var m Mask
	for _, name := range names {
		if strings.TrimSpace(name) == "" {
			continue
		}
		c, err := Parse(name)
		if err != nil {
			return 0, err
		}
		m |= Mask(c)
	}
	return m, nil
}

// MaskOf builds a mask from individual channels.
func MaskOf(cs ...Channel) Mask {
	var m Mask
	for _, c := range cs {
		m |= Mask(c)
	}
	return m
}

func (m Mask) Has(c Channel) bool {
	return c != None && uint32(m)&uint32(c) != 0
}

// Channels lists the defined channels set in m, ascending. Bits outside the
// table are skipped.
func (m Mask) Channels() []Channel {
	out := make([]Channel, 0, len(table))
	for _, it := range table {
		if m.Has(it.ch) {
			out = append(out, it.ch)
		}
	}
	return out
}

// Names lists the wire names of the channels set in m, ascending.
func (m Mask) Names() []string {
	cs := m.Channels()
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = Name(c)
	}
	return out
}

// MaskDimension sums Dimension over every channel set in m.
//
//	MaskDimension(MaskOf(Lq, La)) == 7
func MaskDimension(m Mask) int {
	total := 0
	for _, it := range table {
		if m.Has(it.ch) {
			total += it.dim
		}
	}
	return total
}

var axes = [...]string{"x", "y", "z"}

// ColumnNames expands each channel in m into one label per scalar, e.g.
// Lq -> Lqw Lqx Lqy Lqz, a -> ax ay az, dt -> dt.
func ColumnNames(m Mask) []string {
	out := make([]string, 0, MaskDimension(m))
	for _, c := range m.Channels() {
		name := Name(c)
		switch Dimension(c) {
		case 1:
			out = append(out, name)
		case 4:
			out = append(out, name+"w")
			fallthrough
		case 3:
			for _, axis := range axes {
				out = append(out, name+axis)
			}
		}
	}
	return out
}
