package bosbase

import (
	"fmt"

	"github.com/golang/glog"
)

// Logging convention in the `bosbase` package:
// Info:
//     essential events for abnormal behavior. This level should be silent on normal operation.
//     this includes:
//     - connect and handshake failures
//     - dropped outbound envelopes
//     - unexpected stream or socket exits
// Warning:
//     recovered panics from user callbacks
// V(1):
//     connection lifecycle (connect, disconnect, replay)
// V(2):
//     per-frame trace. Frequent, filter by tag.

const LogLevelLifecycle = glog.Level(1)
const LogLevelTrace = glog.Level(2)

type LogFunction func(string, ...any)

func LogFn(level glog.Level, tag string) LogFunction {
	return func(format string, a ...any) {
		if glog.V(level) {
			m := fmt.Sprintf(format, a...)
			glog.InfoDepth(1, fmt.Sprintf("[%s]%s", tag, m))
		}
	}
}

