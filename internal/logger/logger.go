/**
 * @description
 * Structured logger for the Swipe prediction backend.
 * Info messages go to stdout, warnings and errors to stderr, so hosted log
 * collectors classify them correctly.
 *
 * @dependencies
 * - standard "log"
 * - standard "fmt"
 */

package logger

import (
	"fmt"
	"io"
	"log"
	"os"
)

var (
	// InfoLogger writes to stdout
	InfoLogger *log.Logger
	// ErrorLogger writes to stderr (warnings and actual errors)
	ErrorLogger *log.Logger
)

func init() {
	InfoLogger = log.New(os.Stdout, "", 0)
	ErrorLogger = log.New(os.Stderr, "", 0)
}

// Info logs an info message to stdout
func Info(format string, v ...interface{}) {
	InfoLogger.Println(fmt.Sprintf(format, v...))
}

// Warn logs a recoverable problem to stderr
func Warn(format string, v ...interface{}) {
	ErrorLogger.Println("WARN " + fmt.Sprintf(format, v...))
}

// Error logs an error message to stderr
func Error(format string, v ...interface{}) {
	ErrorLogger.Println(fmt.Sprintf(format, v...))
}

// Fatal logs an error and exits
func Fatal(format string, v ...interface{}) {
	ErrorLogger.Fatalln(fmt.Sprintf(format, v...))
}

// Scoped prefixes every line with a component name.
type Scoped struct {
	prefix string
}

// Named returns a logger for one component, e.g. Named("reconciler").
func Named(component string) *Scoped {
	return &Scoped{prefix: "[" + component + "] "}
}

func (s *Scoped) Info(format string, v ...interface{}) {
	Info(s.prefix+format, v...)
}

func (s *Scoped) Warn(format string, v ...interface{}) {
	Warn(s.prefix+format, v...)
}

func (s *Scoped) Error(format string, v ...interface{}) {
	Error(s.prefix+format, v...)
}

// New creates a new logger that writes to the specified writer
func New(w io.Writer) *log.Logger {
	return log.New(w, "", 0)
}
