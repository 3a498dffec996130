package transfer

import (
	"io"
	"math"
)

// Percent returns round(sent*100/total), capped at 100. The second return value is false when
// the total is unknown.
func Percent(sent, total int64) (int, bool) {
	if total <= 0 {
		return 0, false
	}
	p := int(math.Round(float64(sent) * 100 / float64(total)))
	if p > 100 {
		p = 100
	}
	if p < 0 {
		p = 0
	}
	return p, true
}

// progressReader counts the bytes read through it and reports every change of the
// completed percentage.
type progressReader struct {
	reader   io.Reader
	total    int64
	sent     int64
	last     int
	onChange func(percent int)
}

func newProgressReader(r io.Reader, total int64, onChange func(percent int)) *progressReader {
	return &progressReader{
		reader:   r,
		total:    total,
		last:     -1,
		onChange: onChange,
	}
}

func (r *progressReader) Read(p []byte) (int, error) {
	n, err := r.reader.Read(p)
	if n > 0 {
		r.sent += int64(n)
		r.report()
	}
	return n, err
}

func (r *progressReader) report() {
	percent, ok := Percent(r.sent, r.total)
	if !ok || percent == r.last {
		return
	}
	r.last = percent
	r.onChange(percent)
}
