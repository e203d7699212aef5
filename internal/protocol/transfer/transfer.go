// Package transfer moves exact byte counts between a connection and a
// store, using an adaptive chunk size.
//
// The body phase that follows a READY or LIST header carries no framing of
// its own: the declared size is the only delimiter. Both directions
// therefore move exactly that many bytes and treat an early end of stream as
// a hard error.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
)

const (
	// SmallChunkSize is used for bodies up to LargeThreshold bytes.
	SmallChunkSize = 1024

	// LargeChunkSize is used for bodies above LargeThreshold bytes.
	LargeChunkSize = 64 * 1024

	// LargeThreshold is 10 MiB.
	LargeThreshold = 10 * 1024 * 1024
)

var (
	// ErrIncompleteTransfer is matched by *IncompleteError. The receiving
	// side must not report the transfer as successful.
	ErrIncompleteTransfer = errors.New("incomplete transfer")

	// ErrSourceShorterThanDeclared is matched by *SourceShortError. The
	// peer has already been promised more bytes than the source holds, so
	// the connection cannot be reused.
	ErrSourceShorterThanDeclared = errors.New("source shorter than declared size")
)

// IncompleteError reports a stream that ended before the declared size.
type IncompleteError struct {
	Expected int64
	Received int64
}

func (e *IncompleteError) Error() string {
	return fmt.Sprintf("incomplete transfer: received %d of %d bytes", e.Received, e.Expected)
}

func (e *IncompleteError) Is(target error) bool {
	return target == ErrIncompleteTransfer
}

// SourceShortError reports a local source that ran dry before the declared
// size was sent.
type SourceShortError struct {
	Declared int64
	Sent     int64
}

func (e *SourceShortError) Error() string {
	return fmt.Sprintf("source shorter than declared: sent %d of %d bytes", e.Sent, e.Declared)
}

func (e *SourceShortError) Is(target error) bool {
	return target == ErrSourceShorterThanDeclared
}

// ChunkSize returns the buffer size for a body of total bytes. The choice is
// made once per transfer.
func ChunkSize(total int64) int {
	if total > LargeThreshold {
		return LargeChunkSize
	}
	return SmallChunkSize
}

// Direction tells which way a Job moves bytes.
type Direction int

const (
	Upload Direction = iota
	Download
	Listing
)

func (d Direction) String() string {
	switch d {
	case Upload:
		return "upload"
	case Download:
		return "download"
	case Listing:
		return "list"
	default:
		return "unknown"
	}
}

// Job describes one body phase. It lives only for the duration of a
// single PUT, GET or LIST exchange.
type Job struct {
	Direction Direction
	Total     int64

	// Progress, when set, is called after every chunk with the bytes moved
	// so far. It runs on the transferring goroutine.
	Progress func(done, total int64)

	// BeforeChunk, when set, runs before every read from the source. The
	// connection uses it to push read deadlines forward per chunk.
	BeforeChunk func() error
}

// NewJob returns a Job for total bytes.
func NewJob(direction Direction, total int64) *Job {
	return &Job{Direction: direction, Total: total}
}

// ChunkSize returns the chunk size of the job.
func (j *Job) ChunkSize() int {
	return ChunkSize(j.Total)
}

// Receive reads exactly j.Total bytes from src and writes them to dst.
//
// Returns the number of bytes written and:
//   - nil when exactly Total bytes arrived
//   - *IncompleteError when src ended early (io.EOF or io.ErrUnexpectedEOF)
//   - the context error if ctx was cancelled between chunks
//   - the wrapped read or write error otherwise
//
// Receive never reads past Total, so the next header on the stream is left
// intact.
func (j *Job) Receive(ctx context.Context, src io.Reader, dst io.Writer) (int64, error) {
	buf := make([]byte, j.ChunkSize())
	var done int64

	for done < j.Total {
		if err := ctx.Err(); err != nil {
			return done, err
		}
		if j.BeforeChunk != nil {
			if err := j.BeforeChunk(); err != nil {
				return done, err
			}
		}

		want := int64(len(buf))
		if remaining := j.Total - done; remaining < want {
			want = remaining
		}

		n, readErr := src.Read(buf[:want])
		if n > 0 {
			if _, err := dst.Write(buf[:n]); err != nil {
				return done, fmt.Errorf("write chunk at offset %d: %w", done, err)
			}
			done += int64(n)
			if j.Progress != nil {
				j.Progress(done, j.Total)
			}
		}

		if readErr != nil {
			if done == j.Total {
				break
			}
			if errors.Is(readErr, io.EOF) || errors.Is(readErr, io.ErrUnexpectedEOF) {
				return done, &IncompleteError{Expected: j.Total, Received: done}
			}
			return done, fmt.Errorf("read chunk at offset %d: %w", done, readErr)
		}
	}
	return done, nil
}

// Send reads up to one chunk at a time from src and writes it to dst until
// j.Total bytes were sent.
//
// Returns the number of bytes sent and:
//   - nil when exactly Total bytes were written
//   - *SourceShortError when src ended before Total
//   - the context error if ctx was cancelled between chunks
//   - the wrapped read or write error otherwise
//
// Extra bytes in src beyond Total are never sent.
func (j *Job) Send(ctx context.Context, dst io.Writer, src io.Reader) (int64, error) {
	buf := make([]byte, j.ChunkSize())
	var done int64

	for done < j.Total {
		if err := ctx.Err(); err != nil {
			return done, err
		}
		if j.BeforeChunk != nil {
			if err := j.BeforeChunk(); err != nil {
				return done, err
			}
		}

		want := int64(len(buf))
		if remaining := j.Total - done; remaining < want {
			want = remaining
		}

		n, readErr := io.ReadFull(src, buf[:want])
		if n > 0 {
			if _, err := dst.Write(buf[:n]); err != nil {
				return done, fmt.Errorf("write chunk at offset %d: %w", done, err)
			}
			done += int64(n)
			if j.Progress != nil {
				j.Progress(done, j.Total)
			}
		}

		if readErr != nil {
			if errors.Is(readErr, io.EOF) || errors.Is(readErr, io.ErrUnexpectedEOF) {
				return done, &SourceShortError{Declared: j.Total, Sent: done}
			}
			return done, fmt.Errorf("read source at offset %d: %w", done, readErr)
		}
	}
	return done, nil
}

// ReceiveExact is Receive for a one-off job.
func ReceiveExact(ctx context.Context, src io.Reader, dst io.Writer, total int64) (int64, error) {
	return NewJob(Upload, total).Receive(ctx, src, dst)
}

// SendExact is Send for a one-off job.
func SendExact(ctx context.Context, dst io.Writer, src io.Reader, total int64) (int64, error) {
	return NewJob(Download, total).Send(ctx, dst, src)
}
