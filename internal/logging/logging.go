// ABOUTME: Process-wide logrus setup
// ABOUTME: Logs to a file under the TUI and to stdout plus the file otherwise
package logging

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// Options selects the log destination and verbosity
type Options struct {
	File  string
	Level string
	// TUI sends logs to the file only, so they do not tear the screen
	TUI bool
}

// Setup configures the standard logrus logger and returns a closer for the log file
func Setup(opts Options) (io.Closer, error) {
	level, err := logrus.ParseLevel(opts.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}

	logrus.SetLevel(level)
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "15:04:05.000",
		DisableColors:   opts.TUI,
	})

	if opts.File == "" {
		if opts.TUI {
			logrus.SetOutput(io.Discard)
		} else {
			logrus.SetOutput(os.Stdout)
		}
		return nopCloser{}, nil
	}

	f, err := os.OpenFile(opts.File, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o666)
	if err != nil {
		return nil, fmt.Errorf("error opening log file: %w", err)
	}

	if opts.TUI {
		logrus.SetOutput(f)
	} else {
		logrus.SetOutput(io.MultiWriter(os.Stdout, f))
	}
	return f, nil
}

// For returns a logger tagged with component
func For(component string) *logrus.Entry {
	return logrus.WithField("component", component)
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
