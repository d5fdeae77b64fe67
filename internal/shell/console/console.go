// Package console prints the user-facing progress lines of a pipeline run.
package console

import (
	"fmt"
	"io"
	"sync"

	"github.com/mitchellh/colorstring"
)

// Console writes status lines. It is safe for concurrent use.
type Console struct {
	out      io.Writer
	colorize colorstring.Colorize
	mu       sync.Mutex
}

// New creates a console writing to out. Colour codes are stripped when
// color is false.
func New(out io.Writer, color bool) *Console {
	if out == nil {
		out = io.Discard
	}
	return &Console{
		out: out,
		colorize: colorstring.Colorize{
			Colors:  colorstring.DefaultColors,
			Disable: !color,
			Reset:   true,
		},
	}
}

// Discard returns a console that prints nothing.
func Discard() *Console {
	return New(io.Discard, false)
}

// Task prints a top-level stage line.
func (c *Console) Task(format string, args ...any) {
	c.line("[blue][bold]==>", format, args...)
}

// Subtask prints a step within a stage.
func (c *Console) Subtask(format string, args ...any) {
	c.line("[green][bold]  ->", format, args...)
}

// Info prints a neutral note.
func (c *Console) Info(format string, args ...any) {
	c.line("[cyan]  ::", format, args...)
}

// Warn prints a warning.
func (c *Console) Warn(format string, args ...any) {
	c.line("[yellow][bold]  !!", format, args...)
}

// Error prints a failure.
func (c *Console) Error(format string, args ...any) {
	c.line("[red][bold]  ->", format, args...)
}

// Plain prints a line without a prefix.
func (c *Console) Plain(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, format+"\n", args...)
}

// Message text is written after colourizing so that brackets in names are
// never read as colour codes.
func (c *Console) line(prefix, format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, "%s %s\n", c.colorize.Color(prefix), fmt.Sprintf(format, args...))
}
