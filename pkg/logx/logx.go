// Package logx is the transport's logging facade: a thin wrapper over
// logrus that keeps the teacher's Debug/Info/Warn/Error/Fatal/Section/
// Banner call surface while delegating formatting, level filtering and
// output to a real structured logger.
package logx

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
)

var std = logrus.New()

func init() {
	std.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "15:04:05",
	})
	std.SetLevel(logrus.InfoLevel)
}

// SetLevel sets the minimum log level by name (debug, info, warn, error).
func SetLevel(level string) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return
	}
	std.SetLevel(lvl)
}

// SetOutput redirects log output, primarily for tests.
func SetOutput(w interface{ Write([]byte) (int, error) }) {
	std.SetOutput(w)
}

func Debug(format string, args ...interface{}) { std.Debugf(format, args...) }
func Info(format string, args ...interface{})  { std.Infof(format, args...) }
func Warn(format string, args ...interface{})  { std.Warnf(format, args...) }
func Error(format string, args ...interface{}) { std.Errorf(format, args...) }

// Fatal logs at error level and exits the process, matching the
// teacher's Fatal contract.
func Fatal(format string, args ...interface{}) {
	std.Errorf(format, args...)
	os.Exit(1)
}

// WithFields returns a logrus entry pre-populated with connection/stream
// identifying fields, for call sites that want structured context
// instead of a bare formatted line.
func WithFields(fields map[string]interface{}) *logrus.Entry {
	return std.WithFields(logrus.Fields(fields))
}

// For returns a named sub-logger carrying a "component" field, for
// packages that want every line they emit tagged without repeating the
// tag at each call site.
func For(component string) *logrus.Entry {
	return std.WithField("component", component)
}

// Section prints a section header, used at startup and during manual
// debugging sessions; unlike the per-line loggers above this writes
// directly to stdout since it's decorative, not a log record.
func Section(title string) {
	border := "═══════════════════════════════════════════════════════════"
	fmt.Printf("\n╔%s╗\n", border)
	fmt.Printf("║ %-61s ║\n", title)
	fmt.Printf("╚%s╝\n\n", border)
}

// Banner prints the application startup banner.
func Banner(title, version string) {
	banner := `
╔═══════════════════════════════════════════════════════════╗
║                          S L I Q                         ║
║              %-37s║
║                    Version %-7s                      ║
╚═══════════════════════════════════════════════════════════╝
`
	fmt.Printf(banner, title, version)
}
