package telemetry

import (
	"fmt"
	"log"
	"os"
	"time"
)

// CmdLogger is a focused, independently-enabled trace of command/ACK
// lifecycle events (queued, sent, retried, ack'd, expired, discovery).
// It exists so an operator can watch command traffic in isolation from
// the much noisier sensor/HTTP logging on the main Logger, mirroring the
// original system's separate "cmd_debug" logger.
var CmdLogger = &cmdLogger{}

type cmdLogger struct {
	enabled bool
	out     *log.Logger
}

// EnableCmdDebug turns the focused command logger on, writing
// millisecond-timestamped lines to stderr.
func EnableCmdDebug() {
	CmdLogger.enabled = true
	CmdLogger.out = log.New(os.Stderr, "", 0)
}

func (c *cmdLogger) Debugf(format string, args ...any) {
	if !c.enabled {
		return
	}
	c.out.Printf("%s [CMD] %s", time.Now().Format("15:04:05.000"), fmt.Sprintf(format, args...))
}
