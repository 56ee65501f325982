package scan

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"
)

// sliceSource replays reads, then blocks until ctx is done.
type sliceSource struct {
	reads []read
}

type read struct {
	text string
	err  error
}

func (s *sliceSource) Next(ctx context.Context) (string, error) {
	if len(s.reads) == 0 {
		<-ctx.Done()
		return "", ctx.Err()
	}
	r := s.reads[0]
	s.reads = s.reads[1:]
	return r.text, r.err
}

func TestU_Scan_FirstValidWins(t *testing.T) {
	src := &sliceSource{reads: []read{
		{err: ErrNoCandidate},
		{text: "https://example.org/not-a-credential"},
		{text: "  HC1:NCFOXN"},
		{text: "HC1:SECOND"},
	}}
	got, err := Scan(context.Background(), src, nil)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if got != "HC1:NCFOXN" {
		t.Errorf("Scan = %q", got)
	}
	if len(src.reads) != 1 {
		t.Errorf("%d reads left, want 1", len(src.reads))
	}
}

func TestU_Scan_SourceErrors(t *testing.T) {
	boom := errors.New("camera unplugged")
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"eof", io.EOF, ErrSourceClosed},
		{"fatal", boom, boom},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Scan(context.Background(), &sliceSource{reads: []read{{err: tt.err}}}, nil)
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestU_Loop_StartDeliversOnce(t *testing.T) {
	l := NewLoop(&sliceSource{reads: []read{{text: "HC1:ABC"}, {text: "HC1:DEF"}}}, nil)

	results := l.Start(context.Background())
	res, ok := <-results
	if !ok || res.Err != nil || res.Text != "HC1:ABC" {
		t.Fatalf("result = %+v, %v", res, ok)
	}
	if _, ok := <-results; ok {
		t.Error("result channel delivered twice")
	}

	res = <-l.Start(context.Background())
	if res.Text != "HC1:DEF" {
		t.Errorf("second scan = %+v", res)
	}
	l.Stop()
}

func TestU_Loop_StopIsIdempotent(t *testing.T) {
	l := NewLoop(&sliceSource{}, nil)
	l.Stop()

	results := l.Start(context.Background())
	if !l.Active() {
		t.Error("scan not active after Start")
	}
	l.Stop()
	l.Stop()

	select {
	case res := <-results:
		if !errors.Is(res.Err, ErrStopped) {
			t.Errorf("err = %v, want ErrStopped", res.Err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("stopped scan delivered nothing")
	}
	if l.Active() {
		t.Error("scan still active after Stop")
	}
}

func TestU_Loop_StartReplacesActiveScan(t *testing.T) {
	l := NewLoop(&sliceSource{}, nil)
	first := l.Start(context.Background())
	second := l.Start(context.Background())

	res := <-first
	if !errors.Is(res.Err, ErrStopped) {
		t.Errorf("first scan err = %v, want ErrStopped", res.Err)
	}
	if !l.Active() {
		t.Error("second scan not active")
	}
	l.Stop()
	<-second
}

func TestU_Loop_ConcurrentStartsLeaveOneScan(t *testing.T) {
	l := NewLoop(&sliceSource{}, nil)

	const n = 8
	chans := make(chan (<-chan Result), n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			chans <- l.Start(context.Background())
		}()
	}
	wg.Wait()
	close(chans)
	l.Stop()

	for results := range chans {
		select {
		case res := <-results:
			if !errors.Is(res.Err, ErrStopped) {
				t.Errorf("err = %v, want ErrStopped", res.Err)
			}
		case <-time.After(5 * time.Second):
			t.Fatal("a scan outlived Stop")
		}
	}
}

func TestU_LineSource(t *testing.T) {
	src := NewLineSource(strings.NewReader("\nnoise\nHC1:XYZ\n"))
	ctx := context.Background()

	if _, err := src.Next(ctx); !errors.Is(err, ErrNoCandidate) {
		t.Errorf("blank line: err = %v", err)
	}
	got, err := Scan(ctx, src, nil)
	if err != nil || got != "HC1:XYZ" {
		t.Fatalf("Scan = %q, %v", got, err)
	}
	if _, err := src.Next(ctx); !errors.Is(err, io.EOF) {
		t.Errorf("after input: err = %v, want EOF", err)
	}
}

func TestU_LineSource_Cancel(t *testing.T) {
	r, w := io.Pipe()
	defer w.Close()
	src := NewLineSource(r)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := src.Next(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want deadline exceeded", err)
	}
}
