package progress

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReaderReportsAtIntervalAndEOF(t *testing.T) {
	payload := bytes.Repeat([]byte("a"), 250)

	var reports []int64

	r := NewReader(bytes.NewReader(payload), 250, 100, func(read, total int64) {
		reports = append(reports, read)

		require.Equal(t, int64(250), total)
	})

	buf := make([]byte, 100)

	_, err := io.CopyBuffer(onlyWriter{io.Discard}, onlyReader{r}, buf)
	require.NoError(t, err)

	// One report per full interval plus the final EOF report.
	require.Equal(t, []int64{100, 200, 250}, reports)
	require.Equal(t, int64(250), r.BytesRead())
}

func TestReaderNoIntermediateReportsWhenDisabled(t *testing.T) {
	payload := bytes.Repeat([]byte("a"), 300)

	var reports []int64

	r := NewReader(bytes.NewReader(payload), 300, 0, func(read, total int64) {
		reports = append(reports, read)
	})

	_, err := io.Copy(io.Discard, onlyReader{r})
	require.NoError(t, err)

	// Only the final EOF report fires.
	require.Equal(t, []int64{300}, reports)
	require.Equal(t, int64(300), r.BytesRead())
}

func TestReaderNilCallback(t *testing.T) {
	r := NewReader(bytes.NewReader([]byte("abc")), 3, 1, nil)

	_, err := io.Copy(io.Discard, onlyReader{r})
	require.NoError(t, err)
	require.Equal(t, int64(3), r.BytesRead())
}

// onlyReader hides WriteTo/ReadFrom fast paths so io.Copy goes through Read.
type onlyReader struct{ io.Reader }

// onlyWriter hides the destination's ReadFrom fast path so io.CopyBuffer
// actually uses the provided buffer.
type onlyWriter struct{ io.Writer }
