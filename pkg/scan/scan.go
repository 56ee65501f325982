// Package scan runs the capture loop that turns a stream of scanner reads
// into one HC1 credential.
package scan

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/lacpass/healthlink/pkg/hcert"
)

var (
	// ErrNoCandidate is returned by a Source for a read that held no code.
	// The loop keeps scanning.
	ErrNoCandidate = errors.New("scan: no code read")
	// ErrStopped is the result of a scan ended by Stop or cancellation.
	ErrStopped = errors.New("scan: stopped")
	// ErrSourceClosed is the result of a scan whose source ran dry.
	ErrSourceClosed = errors.New("scan: source closed")
)

// missLogInterval is how many consecutive misses pass between debug logs.
const missLogInterval = 40

// Source yields decoded barcode text. Next blocks until a read completes
// or ctx is done.
type Source interface {
	Next(ctx context.Context) (string, error)
}

// Result is the single outcome of a scan.
type Result struct {
	Text string
	Err  error
}

// Loop owns at most one active scan.
type Loop struct {
	src    Source
	logger *slog.Logger

	startMu sync.Mutex // held from teardown to install in Start
	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewLoop returns a Loop reading from src. A nil logger discards.
func NewLoop(src Source, logger *slog.Logger) *Loop {
	if logger == nil {
		logger = discard()
	}
	return &Loop{src: src, logger: logger}
}

// Start tears down the active scan, if any, and starts a new one. The
// returned channel delivers exactly one Result and is then closed: the
// first read that passes hcert.Validate, or the reason the scan ended.
func (l *Loop) Start(ctx context.Context) <-chan Result {
	l.startMu.Lock()
	defer l.startMu.Unlock()
	l.Stop()

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	out := make(chan Result, 1)

	l.mu.Lock()
	l.cancel, l.done = cancel, done
	l.mu.Unlock()

	go func() {
		defer close(done)
		defer cancel()
		text, err := Scan(ctx, l.src, l.logger)
		out <- Result{Text: text, Err: err}
		close(out)
	}()
	return out
}

// Stop ends the active scan and waits for it to finish. It is safe to call
// at any time and more than once.
func (l *Loop) Stop() {
	l.mu.Lock()
	cancel, done := l.cancel, l.done
	l.cancel, l.done = nil, nil
	l.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Active reports whether a scan is running.
func (l *Loop) Active() bool {
	l.mu.Lock()
	done := l.done
	l.mu.Unlock()
	if done == nil {
		return false
	}
	select {
	case <-done:
		return false
	default:
		return true
	}
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// Scan reads from src until a candidate validates as an HC1 credential and
// returns its normalized text. A nil logger discards.
func Scan(ctx context.Context, src Source, logger *slog.Logger) (string, error) {
	if logger == nil {
		logger = discard()
	}
	misses := 0
	for {
		if ctx.Err() != nil {
			return "", fmt.Errorf("%w: %v", ErrStopped, ctx.Err())
		}
		candidate, err := src.Next(ctx)
		switch {
		case err == nil:
		case ctx.Err() != nil:
			return "", fmt.Errorf("%w: %v", ErrStopped, ctx.Err())
		case errors.Is(err, ErrNoCandidate):
			misses++
			if misses%missLogInterval == 0 {
				logger.DebugContext(ctx, "still scanning", "misses", misses)
			}
			continue
		case errors.Is(err, io.EOF):
			return "", ErrSourceClosed
		default:
			return "", fmt.Errorf("scan: read: %w", err)
		}

		text, err := hcert.Validate(candidate)
		if err != nil {
			misses++
			logger.DebugContext(ctx, "ignoring non-HC1 read", "length", len(candidate))
			continue
		}
		logger.InfoContext(ctx, "credential scanned", "length", len(text))
		return text, nil
	}
}

// LineSource reads one candidate per line, as keyboard-wedge barcode
// readers type them.
type LineSource struct {
	once  sync.Once
	r     io.Reader
	lines chan string
	// err is set before lines is closed.
	err error
}

// NewLineSource returns a Source over r.
func NewLineSource(r io.Reader) *LineSource {
	return &LineSource{r: r, lines: make(chan string)}
}

func (s *LineSource) start() {
	go func() {
		sc := bufio.NewScanner(s.r)
		sc.Buffer(make([]byte, 0, 4096), 1<<20)
		for sc.Scan() {
			s.lines <- sc.Text()
		}
		s.err = sc.Err()
		if s.err == nil {
			s.err = io.EOF
		}
		close(s.lines)
	}()
}

// Next returns the next line. Blank lines report ErrNoCandidate.
func (s *LineSource) Next(ctx context.Context) (string, error) {
	s.once.Do(s.start)
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case line, ok := <-s.lines:
		if !ok {
			return "", s.err
		}
		if len(line) == 0 {
			return "", ErrNoCandidate
		}
		return line, nil
	}
}
