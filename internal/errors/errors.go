package errors

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/conneroisu/pagesmith/internal/websocket"
)

// DevServer is the live-update channel of a running development server.
type DevServer interface {
	Send(msg websocket.UpdateMessage)
}

var (
	sourceStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9"))
	messageStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
)

// Channel routes render failures to the console or to a dev server.
type Channel struct {
	console io.Writer
	mutex   sync.Mutex
}

// NewChannel creates a channel writing console reports to w (stderr if nil).
func NewChannel(w io.Writer) *Channel {
	if w == nil {
		w = os.Stderr
	}
	return &Channel{console: w}
}

// Report emits err and returns the replacement content for the file. The
// replacement is always undefined: in a one-shot build the output becomes
// empty, in the dev server the overlay replaces a half-rendered page.
func (c *Channel) Report(ctx context.Context, err error, dev DevServer, component string) (string, bool) {
	if err == nil {
		return "", false
	}

	if dev == nil {
		c.mutex.Lock()
		defer c.mutex.Unlock()
		fmt.Fprintf(c.console, "%s %s\n", sourceStyle.Render("["+component+"]"), messageStyle.Render(err.Error()))
		return "", false
	}

	dev.Send(websocket.UpdateMessage{
		Type:      websocket.MessageError,
		Message:   err.Error(),
		Source:    component,
		Timestamp: time.Now(),
	})

	return "", false
}

// FileError is a failure attached to one input file.
type FileError struct {
	File string
	Err  error
}

// Error implements the error interface.
func (fe FileError) Error() string {
	return fmt.Sprintf("%s: %v", fe.File, fe.Err)
}

// Unwrap returns the underlying error.
func (fe FileError) Unwrap() error {
	return fe.Err
}

// ErrorCollector collects per-file failures across a batch.
type ErrorCollector struct {
	errors []FileError
	mutex  sync.RWMutex
}

// NewErrorCollector creates a new error collector
func NewErrorCollector() *ErrorCollector {
	return &ErrorCollector{
		errors: make([]FileError, 0),
	}
}

// Add records a failure for file.
func (ec *ErrorCollector) Add(file string, err error) {
	if err == nil {
		return
	}
	ec.mutex.Lock()
	defer ec.mutex.Unlock()
	ec.errors = append(ec.errors, FileError{File: file, Err: err})
}

// GetErrors returns a copy of all collected failures.
func (ec *ErrorCollector) GetErrors() []FileError {
	ec.mutex.RLock()
	defer ec.mutex.RUnlock()
	result := make([]FileError, len(ec.errors))
	copy(result, ec.errors)
	return result
}

// HasErrors returns true if there are any errors
func (ec *ErrorCollector) HasErrors() bool {
	ec.mutex.RLock()
	defer ec.mutex.RUnlock()
	return len(ec.errors) > 0
}

// Err joins every collected failure, or returns nil.
func (ec *ErrorCollector) Err() error {
	ec.mutex.RLock()
	defer ec.mutex.RUnlock()
	if len(ec.errors) == 0 {
		return nil
	}
	errs := make([]error, len(ec.errors))
	for i, fe := range ec.errors {
		errs[i] = fe
	}
	return errors.Join(errs...)
}
