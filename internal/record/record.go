// Package record writes data frames as delimited text rows, one row per
// frame, with every record's values laid out left to right.
package record

import (
	"bufio"
	"errors"
	"io"
	"strconv"

	"github.com/danmuck/mocapctl/internal/protocol/channel"
	"github.com/danmuck/mocapctl/internal/stream"
)

var ErrSeparatorRequired = errors.New("record: separator and newline must be non-empty")

type Options struct {
	// Header writes a Node.column row whenever the node list changes.
	Header    bool
	Separator string
	Newline   string
	// Precision is the number of digits after the decimal point.
	Precision int
	// Frames stops the recorder after this many rows. Zero means no limit.
	Frames int
}

func DefaultOptions() Options {
	return Options{
		Header:    true,
		Separator: ",",
		Newline:   "\n",
		Precision: 3,
	}
}

func (o Options) Validate() error {
	if o.Separator == "" || o.Newline == "" {
		return ErrSeparatorRequired
	}
	if o.Precision < 0 {
		return errors.New("record: precision must be >= 0")
	}
	if o.Frames < 0 {
		return errors.New("record: frames must be >= 0")
	}
	return nil
}

// Recorder turns frames into rows. It is not safe for concurrent use.
type Recorder struct {
	w       *bufio.Writer
	opts    Options
	columns []string
	line    []byte
	rows    int
	headers int
}

// New returns a recorder for frames negotiated with mask.
func New(w io.Writer, mask channel.Mask, opts Options) (*Recorder, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return &Recorder{
		w:       bufio.NewWriter(w),
		opts:    opts,
		columns: channel.ColumnNames(mask),
	}, nil
}

// Header returns the column titles for names under the recorder's channels.
func (r *Recorder) Header(names []string) []string {
	out := make([]string, 0, len(names)*len(r.columns))
	for _, name := range names {
		for _, col := range r.columns {
			out = append(out, name+"."+col)
		}
	}
	return out
}

// Handle is a stream.Handler. It returns stream.ErrStop once the frame limit
// is reached.
func (r *Recorder) Handle(f stream.Frame) error {
	line := r.line[:0]
	if r.opts.Header && f.NamesChanged && len(f.Names) > 0 {
		for i, col := range r.Header(f.Names) {
			if i > 0 {
				line = append(line, r.opts.Separator...)
			}
			line = append(line, col...)
		}
		line = append(line, r.opts.Newline...)
		r.headers++
	}

	column := 0
	for i := 0; i < f.View.Len(); i++ {
		for j := 0; j < f.View.Dimension(); j++ {
			if column > 0 {
				line = append(line, r.opts.Separator...)
			}
			line = strconv.AppendFloat(line, float64(f.View.Value(i, j)), 'f', r.opts.Precision, 32)
			column++
		}
	}
	line = append(line, r.opts.Newline...)
	r.line = line

	if _, err := r.w.Write(line); err != nil {
		return err
	}
	if err := r.w.Flush(); err != nil {
		return err
	}
	r.rows++
	if r.opts.Frames > 0 && r.rows >= r.opts.Frames {
		return stream.ErrStop
	}
	return nil
}

// Flush writes any buffered output.
func (r *Recorder) Flush() error {
	return r.w.Flush()
}

// Rows is the number of data rows written.
func (r *Recorder) Rows() int {
	return r.rows
}

// Headers is the number of header rows written.
func (r *Recorder) Headers() int {
	return r.headers
}
