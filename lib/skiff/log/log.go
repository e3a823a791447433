package log

import (
	"github.com/sirupsen/logrus"
)

// Logger is the shared logger for all skiff packages.
var Logger = logrus.New()

// InitLogger configures the log level. Trace includes every spawned
// command and its captured output.
func InitLogger(verbose bool, trace bool) {
	Logger.SetLevel(logrus.InfoLevel)
	if verbose {
		Logger.SetLevel(logrus.DebugLevel)
	}
	if trace {
		Logger.SetLevel(logrus.TraceLevel)
	}
}
