// Package progress provides an io.Reader wrapper that reports how many
// bytes have passed through it.
package progress

import "io"

// Reader wraps an io.Reader and invokes a callback as bytes flow through.
// The callback fires once every interval bytes and once more at EOF, so the
// final byte count is always reported.
type Reader struct {
	r          io.Reader
	total      int64
	interval   int64
	onProgress func(read, total int64)

	read        int64
	sinceReport int64
}

// NewReader creates a progress reader. total may be zero when the expected
// size is unknown; interval below one disables intermediate reports.
func NewReader(r io.Reader, total, interval int64, onProgress func(read, total int64)) *Reader {
	return &Reader{
		r:          r,
		total:      total,
		interval:   interval,
		onProgress: onProgress,
	}
}

func (pr *Reader) Read(p []byte) (int, error) {
	n, err := pr.r.Read(p)
	if n > 0 {
		pr.read += int64(n)
		pr.sinceReport += int64(n)
	}

	report := pr.interval > 0 && pr.sinceReport >= pr.interval
	if err == io.EOF && pr.sinceReport > 0 {
		report = true
	}

	if report && pr.onProgress != nil {
		pr.onProgress(pr.read, pr.total)
		pr.sinceReport = 0
	}

	return n, err
}

// BytesRead returns the cumulative number of bytes read so far.
func (pr *Reader) BytesRead() int64 {
	return pr.read
}
