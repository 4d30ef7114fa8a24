package logger

import "strings"

// Level is the level at which a logger is configured. Messages below the
// level of a logger are filtered.
type Level uint32

// Level constants.
const (
	LevelTrace Level = iota
	LevelDebug
	LevelInfo
	LevelWarn
	LevelError
	LevelCritical
	LevelOff
)

// levelNames holds the tag printed in log lines and the name accepted in
// --loglevel for every level.
var levelNames = [...]struct{ tag, name string }{
	LevelTrace:    {tag: "TRC", name: "trace"},
	LevelDebug:    {tag: "DBG", name: "debug"},
	LevelInfo:     {tag: "INF", name: "info"},
	LevelWarn:     {tag: "WRN", name: "warn"},
	LevelError:    {tag: "ERR", name: "error"},
	LevelCritical: {tag: "CRT", name: "critical"},
	LevelOff:      {tag: "OFF", name: "off"},
}

// LevelFromString parses either the name or the tag of a level, ignoring
// case and surrounding spaces. "warning" is accepted for the warn level.
// Unknown input returns the info level and false.
func LevelFromString(s string) (Level, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "warning" {
		return LevelWarn, true
	}
	for level, names := range levelNames {
		if s == names.name || s == strings.ToLower(names.tag) {
			return Level(level), true
		}
	}
	return LevelInfo, false
}

// String returns the tag of the level used in log lines.
func (l Level) String() string {
	if l >= LevelOff {
		return levelNames[LevelOff].tag
	}
	return levelNames[l].tag
}
