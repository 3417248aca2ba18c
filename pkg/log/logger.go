package log

import (
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
)

// Timestamp layouts for the two front ends: the crawl CLI logs with milliseconds,
// the MCP server (logging to stderr next to the protocol stream) with seconds.
const (
	TimestampCLI = "15:04:05.000"
	TimestampMCP = "15:04:05"
)

// New builds the root logrus logger used by every component.
// An unknown level is reported as an error and the logger falls back to info.
func New(out io.Writer, level, timestampFormat string) (*logrus.Logger, error) {
	log := logrus.New()
	log.SetOutput(out)
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: timestampFormat})
	log.SetLevel(logrus.InfoLevel)

	if level == "" {
		return log, nil
	}
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		return log, fmt.Errorf("invalid log level '%s': %w", level, err)
	}
	log.SetLevel(parsed)
	return log, nil
}

// Component returns an entry tagged with the component name.
func Component(log *logrus.Logger, name string) *logrus.Entry {
	return log.WithField("component", name)
}
