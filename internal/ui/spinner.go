package ui

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// SpinnerState is where a Spinner is in its lifecycle.
type SpinnerState int

const (
	SpinnerPending SpinnerState = iota
	SpinnerInProgress
	SpinnerSuccess
	SpinnerFailed
	SpinnerSkipped
)

var spinnerFrames = []string{"⣾", "⣽", "⣻", "⢿", "⡿", "⣟", "⣯", "⣷"}

const spinnerTick = 80 * time.Millisecond

// Spinner animates a single status line while an operation runs, then
// replaces it with a final symbol, label, optional detail and elapsed time.
type Spinner struct {
	mu        sync.Mutex
	out       io.Writer
	label     string
	state     SpinnerState
	frame     int
	startTime time.Time
	stopCh    chan struct{}
	doneCh    chan struct{}
	running   bool
	lastWidth int
}

// NewSpinner creates a spinner writing to stdout.
func NewSpinner(label string) *Spinner {
	return &Spinner{label: label, out: os.Stdout}
}

// SetOutput redirects the spinner.
func (s *Spinner) SetOutput(w io.Writer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.out = w
}

// Start begins animating. Calling it twice is a no-op.
func (s *Spinner) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.state = SpinnerInProgress
	s.startTime = time.Now()
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	s.renderLocked()
	s.mu.Unlock()

	go s.animate()
}

// Stop halts the animation without recording an outcome.
func (s *Spinner) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopCh)
	s.mu.Unlock()
	<-s.doneCh
}

// Success finishes with a check mark.
func (s *Spinner) Success(detail string) { s.finish(SpinnerSuccess, detail) }

// Fail finishes with a cross.
func (s *Spinner) Fail(detail string) { s.finish(SpinnerFailed, detail) }

// Skip finishes with the skipped symbol.
func (s *Spinner) Skip(detail string) { s.finish(SpinnerSkipped, detail) }

// State returns the current state.
func (s *Spinner) State() SpinnerState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Label returns the label.
func (s *Spinner) Label() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.label
}

// SetLabel changes the label shown on the next frame.
func (s *Spinner) SetLabel(label string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.label = label
}

func (s *Spinner) animate() {
	ticker := time.NewTicker(spinnerTick)
	defer ticker.Stop()
	defer close(s.doneCh)

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.mu.Lock()
			s.frame = (s.frame + 1) % len(spinnerFrames)
			s.renderLocked()
			s.mu.Unlock()
		}
	}
}

func (s *Spinner) clearLocked() {
	if s.lastWidth > 0 {
		fmt.Fprint(s.out, "\r"+strings.Repeat(" ", s.lastWidth)+"\r")
	}
}

func (s *Spinner) renderLocked() {
	style := lipgloss.NewStyle().Foreground(GradientColors[(s.frame/2)%len(GradientColors)])
	line := style.Render(spinnerFrames[s.frame]) + " " + s.label + "..."
	s.clearLocked()
	fmt.Fprint(s.out, line)
	s.lastWidth = lipgloss.Width(line)
}

func (s *Spinner) finish(state SpinnerState, detail string) {
	s.Stop()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state

	var symbol string
	var color lipgloss.Color
	switch state {
	case SpinnerSuccess:
		symbol, color = SymbolSuccess, ColorSuccess
	case SpinnerFailed:
		symbol, color = SymbolFail, ColorError
	case SpinnerSkipped:
		symbol, color = SymbolSkipped, ColorWarning
	default:
		symbol, color = SymbolPending, ColorMuted
	}

	muted := lipgloss.NewStyle().Foreground(ColorMuted)
	line := lipgloss.NewStyle().Foreground(color).Render(symbol) + " " + s.label
	if detail != "" {
		line += " " + muted.Render(detail)
	}
	if !s.startTime.IsZero() {
		line += " " + muted.Render(FormatDuration(time.Since(s.startTime)))
	}

	s.clearLocked()
	fmt.Fprintln(s.out, line)
	s.lastWidth = 0
}

// FormatDuration renders short durations as "0.03s" and longer ones as "1.2s".
func FormatDuration(d time.Duration) string {
	if secs := d.Seconds(); secs < 0.1 {
		return fmt.Sprintf("%.2fs", secs)
	} else if secs < 60 {
		return fmt.Sprintf("%.1fs", secs)
	}
	return d.Round(time.Second).String()
}
