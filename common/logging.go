// Package common provides the shared logging and time-handling infrastructure
// used by every gateway service component.
//
// The logging system is built on logrus with a custom output writer that
// routes error-level lines to stderr while everything else goes to stdout,
// so containerized deployments can treat the two streams differently.
package common

import (
	"bytes"
	"os"

	"github.com/sirupsen/logrus"
)

// OutputSplitter routes formatted log lines to stdout or stderr depending on
// their level. Error lines go to stderr so orchestrators and log collectors
// can alert on that stream alone.
type OutputSplitter struct{}

// Write implements io.Writer. Lines containing the logrus error level marker
// are sent to stderr; everything else goes to stdout.
func (splitter *OutputSplitter) Write(p []byte) (n int, err error) {
	if bytes.Contains(p, []byte(`level=error`)) || bytes.Contains(p, []byte(`"level":"error"`)) {
		return os.Stderr.Write(p)
	}
	return os.Stdout.Write(p)
}

// Logger is the process-wide logger. All gateway components log through it so
// formatting and stream routing stay uniform.
var Logger = logrus.New()

func init() {
	Logger.SetOutput(&OutputSplitter{})
}

// ConfigureLogger applies the configured level and format to the global
// logger. Unknown levels fall back to info.
func ConfigureLogger(level, format string) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	Logger.SetLevel(lvl)

	if format == "json" {
		Logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		Logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
}

// redactedFields are request fields whose values must never reach the logs.
var redactedFields = map[string]bool{
	"password":     true,
	"token":        true,
	"csrf_token":   true,
	"session_id":   true,
	"device_token": true,
}

// RedactFields returns a copy of fields with sensitive values replaced by
// "[redacted]". The input map is not modified.
func RedactFields(fields logrus.Fields) logrus.Fields {
	out := make(logrus.Fields, len(fields))
	for k, v := range fields {
		if redactedFields[k] {
			out[k] = "[redacted]"
		} else {
			out[k] = v
		}
	}
	return out
}
