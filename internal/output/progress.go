package output

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-isatty"
)

// writerIsTTY reports whether w is a file attached to a terminal.
func writerIsTTY(w io.Writer) bool {
	type fder interface {
		Fd() uintptr
	}
	if f, ok := w.(fder); ok {
		return isatty.IsTerminal(f.Fd())
	}
	return false
}

// Spinner displays an animated spinner with a message while work runs.
// Example: |  Syncing repositories... (3s elapsed)
type Spinner struct {
	mu      sync.Mutex
	message string
	writer  io.Writer
	frames  []string
	started time.Time
	running bool
	done    chan struct{}
}

// NewSpinner creates a spinner writing to stderr.
func NewSpinner(message string) *Spinner {
	return &Spinner{
		message: message,
		writer:  os.Stderr,
		frames:  []string{"|", "/", "-", "\\"},
	}
}

// SetWriter sets the output writer (useful for testing).
func (s *Spinner) SetWriter(w io.Writer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writer = w
}

// Start begins the animation. On a non-terminal writer the message is
// printed once and no goroutine is started.
func (s *Spinner) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return
	}
	s.running = true
	s.started = time.Now()

	if !writerIsTTY(s.writer) {
		fmt.Fprintf(s.writer, "%s...\n", s.message)
		return
	}

	s.done = make(chan struct{})
	go s.animate(s.done)
}

func (s *Spinner) animate(done <-chan struct{}) {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for i := 0; ; i++ {
		select {
		case <-done:
			return
		case <-ticker.C:
			s.mu.Lock()
			elapsed := int(time.Since(s.started).Seconds())
			fmt.Fprintf(s.writer, "\r%s  %s (%ds elapsed)", s.frames[i%len(s.frames)], s.message, elapsed)
			s.mu.Unlock()
		}
	}
}

// UpdateMessage replaces the message while the spinner runs.
func (s *Spinner) UpdateMessage(message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.message = message
}

// Stop halts the animation and clears the line.
func (s *Spinner) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	s.running = false

	if s.done != nil {
		close(s.done)
		s.done = nil
		fmt.Fprintf(s.writer, "\r%s\r", strings.Repeat(" ", len(s.message)+24))
	}
}

// StopWithMessage stops the spinner and prints a final line.
func (s *Spinner) StopWithMessage(message string) {
	s.Stop()
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintln(s.writer, message)
}
