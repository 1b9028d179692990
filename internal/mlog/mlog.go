// Package mlog provides the small logging surface this tool needs:
// colorized warnings and fatal errors printed to standard error, plus a
// line-splitting io.Writer adapter used to turn subprocess stderr streams
// into individual log lines.
package mlog

import (
	"bytes"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/fatih/color"
)

// Logger is the process-wide logger, a thin wrapper over the standard
// library's log.Logger that's safe to use even before verbosity is
// configured.
type Logger struct {
	verbosity int
	target    *log.Logger
}

// New creates a Logger writing to standard error at the given verbosity
// level (the number of times -v was repeated on the command line).
func New(verbosity int) *Logger {
	return &Logger{
		verbosity: verbosity,
		target:    log.New(os.Stderr, "", 0),
	}
}

// Warning prints a warning message.
func (l *Logger) Warning(format string, args ...interface{}) {
	fmt.Fprintln(os.Stderr, color.YellowString("Warning:"), fmt.Sprintf(format, args...))
}

// Error prints an error message without terminating the process.
func (l *Logger) Error(err error) {
	fmt.Fprintln(os.Stderr, color.RedString("Error:"), err)
}

// Fatal prints an error message and terminates the process with exit code
// 1.
func (l *Logger) Fatal(err error) {
	l.Error(err)
	os.Exit(1)
}

// Debug logs a message only when verbosity is at least the given level
// (the number of times -v was passed).
func (l *Logger) Debug(level int, format string, args ...interface{}) {
	if l.verbosity < level {
		return
	}
	l.target.Printf("[debug] "+format, args...)
}

// LineWriter adapts an arbitrary byte stream (such as a subprocess's
// stderr pipe) into discrete log lines, buffering incomplete trailing
// fragments across writes.
type LineWriter struct {
	callback func(string)
	buffer   []byte
}

// NewLineWriter creates a LineWriter that invokes callback once per
// complete line written to it.
func NewLineWriter(callback func(string)) *LineWriter {
	return &LineWriter{callback: callback}
}

// Write implements io.Writer.
func (w *LineWriter) Write(p []byte) (int, error) {
	w.buffer = append(w.buffer, p...)

	var processed int
	remaining := w.buffer
	for {
		index := bytes.IndexByte(remaining, '\n')
		if index == -1 {
			break
		}
		w.callback(string(trimCarriageReturn(remaining[:index])))
		processed += index + 1
		remaining = remaining[index+1:]
	}

	if processed > 0 {
		leftover := len(w.buffer) - processed
		if leftover > 0 {
			copy(w.buffer[:leftover], w.buffer[processed:])
		}
		w.buffer = w.buffer[:leftover]
	}

	return len(p), nil
}

// Flush emits any remaining buffered partial line as a final line. It
// should be called once the underlying stream is known to be closed.
func (w *LineWriter) Flush() {
	if len(w.buffer) > 0 {
		w.callback(string(trimCarriageReturn(w.buffer)))
		w.buffer = nil
	}
}

func trimCarriageReturn(buffer []byte) []byte {
	if len(buffer) > 0 && buffer[len(buffer)-1] == '\r' {
		return buffer[:len(buffer)-1]
	}
	return buffer
}

var _ io.Writer = (*LineWriter)(nil)
