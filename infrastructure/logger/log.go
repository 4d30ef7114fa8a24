package logger

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// BackendLog is the logging backend used by all subsystem loggers.
var BackendLog = NewBackend()

var subsystemLoggers = map[string]*Logger{}

// RegisterSubSystem returns the logger for the given subsystem tag,
// creating it on first use.
func RegisterSubSystem(subsystem string) *Logger {
	logger, exists := subsystemLoggers[subsystem]
	if !exists {
		logger = BackendLog.Logger(subsystem)
		logger.SetLevel(LevelInfo)
		subsystemLoggers[subsystem] = logger
	}
	return logger
}

// InitLog attaches log files to the backend and starts it. logFile receives
// every entry at the trace level and above, errLogFile receives warnings and above.
func InitLog(logFile, errLogFile string) {
	err := BackendLog.AddLogFile(logFile, LevelTrace)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error adding log file %s as log rotator for level %s: %s", logFile, LevelTrace, err)
		os.Exit(1)
	}
	err = BackendLog.AddLogFile(errLogFile, LevelWarn)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error adding log file %s as log rotator for level %s: %s", errLogFile, LevelWarn, err)
		os.Exit(1)
	}
	err = BackendLog.AddLogWriter(os.Stdout, LevelInfo)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error adding stdout to the logger for level %s: %s", LevelInfo, err)
		os.Exit(1)
	}
	err = BackendLog.Run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error starting the logger: %s ", err)
		os.Exit(1)
	}
}

// SetLogLevel sets the level of a single subsystem. Unknown subsystems are ignored.
func SetLogLevel(subsystemID string, logLevel string) {
	logger, ok := subsystemLoggers[subsystemID]
	if !ok {
		return
	}
	level, _ := LevelFromString(logLevel)
	logger.SetLevel(level)
}

// SetLogLevels sets the level of every registered subsystem.
func SetLogLevels(logLevel string) {
	for subsystemID := range subsystemLoggers {
		SetLogLevel(subsystemID, logLevel)
	}
}

// SupportedSubsystems returns a sorted slice of the registered subsystem tags.
func SupportedSubsystems() []string {
	subsystems := make([]string, 0, len(subsystemLoggers))
	for subsysID := range subsystemLoggers {
		subsystems = append(subsystems, subsysID)
	}
	sort.Strings(subsystems)
	return subsystems
}

// ParseAndSetLogLevels parses a level string of the form
// "level" or "SUBSYS=level,SUBSYS2=level" and applies it.
func ParseAndSetLogLevels(logLevelSpec string) error {
	if !strings.Contains(logLevelSpec, ",") && !strings.Contains(logLevelSpec, "=") {
		if _, ok := LevelFromString(logLevelSpec); !ok {
			return errors.Errorf("the specified debug level [%s] is invalid", logLevelSpec)
		}
		SetLogLevels(logLevelSpec)
		return nil
	}

	for _, logLevelPair := range strings.Split(logLevelSpec, ",") {
		if !strings.Contains(logLevelPair, "=") {
			return errors.Errorf("the specified debug level contains an invalid subsystem/level pair [%s]", logLevelPair)
		}
		fields := strings.Split(logLevelPair, "=")
		subsysID, logLevel := fields[0], fields[1]
		if _, exists := subsystemLoggers[subsysID]; !exists {
			return errors.Errorf("the specified subsystem [%s] is invalid -- supported subsystems %s",
				subsysID, strings.Join(SupportedSubsystems(), ", "))
		}
		if _, ok := LevelFromString(logLevel); !ok {
			return errors.Errorf("the specified debug level [%s] is invalid", logLevel)
		}
		SetLogLevel(subsysID, logLevel)
	}
	return nil
}
