package global

import (
	"os"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
)

// global Log
var Logger log.Logger

func init() {
	w := log.NewSyncWriter(os.Stderr)
	Logger = log.NewLogfmtLogger(w)
	Logger = level.NewFilter(Logger, level.AllowInfo())
}

// SetLogLevel applies the configured server mode to the logger. Debug mode
// keeps everything; any other mode filters debug records out.
func SetLogLevel(mode string) {
	w := log.NewSyncWriter(os.Stderr)
	logger := log.NewLogfmtLogger(w)
	if mode == "debug" {
		Logger = level.NewFilter(logger, level.AllowAll())
		return
	}
	Logger = level.NewFilter(logger, level.AllowInfo())
}
