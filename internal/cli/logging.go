// Package cli holds helpers shared by the command-line programs.
package cli

import (
	"fmt"
	"strings"

	"github.com/pion/logging"
)

var levels = map[string]logging.LogLevel{
	"disabled": logging.LogLevelDisabled,
	"error":    logging.LogLevelError,
	"warn":     logging.LogLevelWarn,
	"info":     logging.LogLevelInfo,
	"debug":    logging.LogLevelDebug,
	"trace":    logging.LogLevelTrace,
}

// LoggerFactory returns a pion logger factory whose default level is
// level. PION_LOG_* environment variables still override single scopes.
func LoggerFactory(level string) (*logging.DefaultLoggerFactory, error) {
	lvl, ok := levels[strings.ToLower(level)]
	if !ok {
		return nil, fmt.Errorf("unknown log level %q", level)
	}
	factory := logging.NewDefaultLoggerFactory()
	factory.DefaultLogLevel = lvl
	return factory, nil
}
