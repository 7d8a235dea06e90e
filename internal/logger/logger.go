package logger

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// Logger writes levelled, printf-style messages to the console and,
// optionally, to a log file.
type Logger struct {
	Verbose bool
	mu      sync.Mutex
	out     io.Writer
	errOut  io.Writer
	fileLog *os.File
	quiet   bool
	prefix  string
}

// New creates a new Logger instance
func New(verbose bool) *Logger {
	return &Logger{
		Verbose: verbose,
		out:     os.Stdout,
		errOut:  os.Stderr,
	}
}

// NewWriter creates a Logger writing both normal and error output to w.
func NewWriter(w io.Writer, verbose bool) *Logger {
	return &Logger{
		Verbose: verbose,
		out:     w,
		errOut:  w,
	}
}

// Discard returns a Logger that drops everything.
func Discard() *Logger {
	return NewWriter(io.Discard, false)
}

// With returns a Logger that shares output with l and prefixes every
// message with "[prefix] ".
func (l *Logger) With(prefix string) *Logger {
	l.mu.Lock()
	defer l.mu.Unlock()
	return &Logger{
		Verbose: l.Verbose,
		out:     l.out,
		errOut:  l.errOut,
		fileLog: l.fileLog,
		quiet:   l.quiet,
		prefix:  l.prefix + "[" + prefix + "] ",
	}
}

// SetFileLog enables logging to a file
func (l *Logger) SetFileLog(path string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}

	l.fileLog = f
	return nil
}

// SetQuiet suppresses console output for Info/Warn/Debug while a progress
// bar owns the terminal. Errors are always printed.
func (l *Logger) SetQuiet(quiet bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.quiet = quiet
}

// Close closes the log file if open
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.fileLog != nil {
		err := l.fileLog.Close()
		l.fileLog = nil
		return err
	}
	return nil
}

// Info logs informational messages
func (l *Logger) Info(format string, args ...interface{}) {
	l.log("INFO", format, args...)
}

// Debug logs detailed messages; they reach the console only in verbose mode
// but always land in the log file.
func (l *Logger) Debug(format string, args ...interface{}) {
	if l.Verbose {
		l.log("DEBUG", format, args...)
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.writeFile(l.format("DEBUG", format, args...))
}

// Warn logs warning messages
func (l *Logger) Warn(format string, args ...interface{}) {
	l.log("WARN", format, args...)
}

// Error logs error messages to stderr
func (l *Logger) Error(format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()

	msg := l.format("ERROR", format, args...)
	fmt.Fprint(l.errOut, msg)
	l.writeFile(msg)
}

func (l *Logger) log(level, format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()

	msg := l.format(level, format, args...)
	if l.Verbose || !l.quiet {
		fmt.Fprint(l.out, msg)
	}
	l.writeFile(msg)
}

func (l *Logger) format(level, format string, args ...interface{}) string {
	msg := l.prefix + fmt.Sprintf(format, args...) + "\n"
	if level != "INFO" {
		msg = "[" + level + "] " + msg
	}
	return msg
}

// writeFile must be called with l.mu held.
func (l *Logger) writeFile(msg string) {
	if l.fileLog == nil {
		return
	}
	l.fileLog.WriteString(time.Now().Format("15:04:05.000 ") + msg)
}
