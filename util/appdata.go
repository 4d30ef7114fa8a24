package util

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"unicode"
)

// AppDataDir returns an operating system specific directory to be used for
// storing application data for an application.
//
// The appName parameter is the name of the application the data directory is
// being requested for. This function will prepend a period to the appName for
// POSIX style operating systems since that is standard practice. An empty
// appName or one with a single dot is treated as requesting the current
// directory so only "." will be returned.
//
// Example results:
//
//	dir := AppDataDir("pointdagd")
//	POSIX (Linux/BSD): ~/.pointdagd
//	Mac OS: $HOME/Library/Application Support/Pointdagd
//	Windows: %LOCALAPPDATA%\Pointdagd
func AppDataDir(appName string) string {
	if appName == "" || appName == "." {
		return "."
	}

	appName = strings.TrimPrefix(appName, ".")
	appNameUpper := string(unicode.ToUpper(rune(appName[0]))) + appName[1:]
	appNameLower := string(unicode.ToLower(rune(appName[0]))) + appName[1:]

	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = os.Getenv("HOME")
	}

	switch runtime.GOOS {
	case "windows":
		appData := os.Getenv("LOCALAPPDATA")
		if appData == "" {
			appData = os.Getenv("APPDATA")
		}
		if appData != "" {
			return filepath.Join(appData, appNameUpper)
		}
	case "darwin":
		if homeDir != "" {
			return filepath.Join(homeDir, "Library", "Application Support", appNameUpper)
		}
	}

	if homeDir != "" {
		return filepath.Join(homeDir, "."+appNameLower)
	}
	return "."
}
