package logger

import (
	"fmt"
	"time"
)

// LogAndMeasureExecutionTime logs at debug level that the operation
// described by format has started, and returns a function that logs its
// end with the time it took. Operations taking longer than slowThreshold
// end with a warning instead.
func LogAndMeasureExecutionTime(log *Logger, slowThreshold time.Duration,
	format string, args ...interface{}) (onEnd func()) {

	operation := fmt.Sprintf(format, args...)
	start := time.Now()
	log.Debugf("%s started", operation)
	return func() {
		elapsed := time.Since(start)
		if slowThreshold > 0 && elapsed > slowThreshold {
			log.Warnf("%s took %s", operation, elapsed)
			return
		}
		log.Debugf("%s done in %s", operation, elapsed)
	}
}
