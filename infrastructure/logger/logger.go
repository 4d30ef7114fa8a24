package logger

import (
	"bytes"
	"fmt"
	"runtime"
	"strings"
	"sync/atomic"
	"time"
)

type logEntry struct {
	log   []byte
	level Level
}

// Logger is a subsystem logger that writes through a Backend.
type Logger struct {
	lvl       Level // atomic
	tag       string
	b         *Backend
	writeChan chan<- logEntry
}

// Tracef formats and writes a message at the trace level.
func (l *Logger) Tracef(format string, args ...interface{}) {
	l.Writef(LevelTrace, format, args...)
}

// Debugf formats and writes a message at the debug level.
func (l *Logger) Debugf(format string, args ...interface{}) {
	l.Writef(LevelDebug, format, args...)
}

// Infof formats and writes a message at the info level.
func (l *Logger) Infof(format string, args ...interface{}) {
	l.Writef(LevelInfo, format, args...)
}

// Warnf formats and writes a message at the warn level.
func (l *Logger) Warnf(format string, args ...interface{}) {
	l.Writef(LevelWarn, format, args...)
}

// Errorf formats and writes a message at the error level.
func (l *Logger) Errorf(format string, args ...interface{}) {
	l.Writef(LevelError, format, args...)
}

// Criticalf formats and writes a message at the critical level.
func (l *Logger) Criticalf(format string, args ...interface{}) {
	l.Writef(LevelCritical, format, args...)
}

// Writef formats and writes a message at the given level if the logger's
// level permits it.
func (l *Logger) Writef(logLevel Level, format string, args ...interface{}) {
	if l.Level() > logLevel {
		return
	}
	if !l.b.IsRunning() {
		return
	}
	l.writeChan <- logEntry{log: l.format(logLevel, fmt.Sprintf(format, args...)), level: logLevel}
}

// Level returns the current logging level.
func (l *Logger) Level() Level {
	return Level(atomic.LoadUint32((*uint32)(&l.lvl)))
}

// SetLevel changes the logging level.
func (l *Logger) SetLevel(level Level) {
	atomic.StoreUint32((*uint32)(&l.lvl), uint32(level))
}

// Backend returns the backend this logger writes to.
func (l *Logger) Backend() *Backend {
	return l.b
}

func (l *Logger) format(level Level, message string) []byte {
	buf := bytes.NewBuffer(make([]byte, 0, normalLogSize))
	buf.WriteString(time.Now().Format("2006-01-02 15:04:05.000"))
	buf.WriteString(" [")
	buf.WriteString(level.String())
	buf.WriteString("] ")
	buf.WriteString(l.tag)
	if l.b.flag&(LogFlagShortFile|LogFlagLongFile) != 0 {
		buf.WriteByte(' ')
		buf.WriteString(callsite(l.b.flag))
	}
	buf.WriteString(": ")
	buf.WriteString(message)
	if !strings.HasSuffix(message, "\n") {
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}

// callsite returns file:line of the caller of the exported logging method.
func callsite(flag uint32) string {
	_, file, line, ok := runtime.Caller(4)
	if !ok {
		return "???:0"
	}
	if flag&LogFlagShortFile != 0 {
		if i := strings.LastIndexByte(file, '/'); i >= 0 {
			file = file[i+1:]
		}
	}
	return fmt.Sprintf("%s:%d", file, line)
}
