package ui

import (
	"bytes"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// syncBuffer guards a buffer shared with the animation goroutine.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestSpinnerLifecycle(t *testing.T) {
	tests := []struct {
		name   string
		finish func(*Spinner)
		state  SpinnerState
		symbol string
		detail string
	}{
		{"success", func(s *Spinner) { s.Success("online") }, SpinnerSuccess, SymbolSuccess, "online"},
		{"fail", func(s *Spinner) { s.Fail("unreachable") }, SpinnerFailed, SymbolFail, "unreachable"},
		{"skip", func(s *Spinner) { s.Skip("paused") }, SpinnerSkipped, SymbolSkipped, "paused"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out syncBuffer
			s := NewSpinner("Connecting to web")
			s.SetOutput(&out)
			assert.Equal(t, SpinnerPending, s.State())

			s.Start()
			s.Start()
			assert.Equal(t, SpinnerInProgress, s.State())
			time.Sleep(2 * spinnerTick)

			tt.finish(s)
			assert.Equal(t, tt.state, s.State())
			got := out.String()
			assert.Contains(t, got, "Connecting to web...")
			assert.Contains(t, got, tt.symbol)
			assert.Contains(t, got, tt.detail)
			assert.Contains(t, got, "\n")
		})
	}
}

func TestSpinnerStopKeepsState(t *testing.T) {
	var out syncBuffer
	s := NewSpinner("Probing")
	s.SetOutput(&out)
	s.Start()
	s.Stop()
	s.Stop()
	assert.Equal(t, SpinnerInProgress, s.State())
}

func TestSpinnerSetLabel(t *testing.T) {
	s := NewSpinner("a")
	s.SetLabel("b")
	assert.Equal(t, "b", s.Label())
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "0.05s", FormatDuration(50*time.Millisecond))
	assert.Equal(t, "1.5s", FormatDuration(1500*time.Millisecond))
	assert.Equal(t, "2m5s", FormatDuration(125*time.Second))
}
