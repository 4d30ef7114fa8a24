// Package mstime converts between time.Time and the millisecond unix
// timestamps carried by points.
package mstime

import "time"

const (
	nanosecondsInMillisecond = int64(time.Millisecond / time.Nanosecond)
	millisecondsInSecond     = int64(time.Second / time.Millisecond)
)

// Now returns the current local time reduced to millisecond precision.
func Now() time.Time {
	return ReduceToMillisecondPrecision(time.Now())
}

// NowUnixMilli returns the current time in unix milliseconds.
func NowUnixMilli() int64 {
	return TimeToUnixMilli(time.Now())
}

// UnixMilliToTime converts unix milliseconds to time.Time.
func UnixMilliToTime(ms int64) time.Time {
	seconds := ms / millisecondsInSecond
	nanoseconds := (ms - seconds*millisecondsInSecond) * nanosecondsInMillisecond
	return time.Unix(seconds, nanoseconds)
}

// TimeToUnixMilli converts t to unix milliseconds.
func TimeToUnixMilli(t time.Time) int64 {
	return t.UnixNano() / nanosecondsInMillisecond
}

// ReduceToMillisecondPrecision truncates t to a whole millisecond.
func ReduceToMillisecondPrecision(t time.Time) time.Time {
	nanoseconds := int64(t.Nanosecond())
	millisecondPrecisionNanoSeconds := (nanoseconds / nanosecondsInMillisecond) * nanosecondsInMillisecond
	return time.Unix(t.Unix(), millisecondPrecisionNanoSeconds)
}
