package app

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

const currentDatabaseVersion = 1

// checkDatabaseVersion verifies the version of the database in dbPath,
// marking a new database with the current version.
func checkDatabaseVersion(dbPath string) error {
	versionBytes, err := os.ReadFile(versionFilePath(dbPath))
	if os.IsNotExist(err) {
		return createDatabaseVersionFile(dbPath)
	}
	if err != nil {
		return err
	}

	databaseVersion, err := strconv.Atoi(strings.TrimSpace(string(versionBytes)))
	if err != nil {
		return errors.Wrapf(err, "malformed database version file in %s", dbPath)
	}

	if databaseVersion != currentDatabaseVersion {
		return errors.Errorf("Invalid database version %d. Expected version: %d", databaseVersion, currentDatabaseVersion)
	}

	return nil
}

func createDatabaseVersionFile(dbPath string) error {
	versionString := strconv.Itoa(currentDatabaseVersion)
	return os.WriteFile(versionFilePath(dbPath), []byte(versionString), 0600)
}

func versionFilePath(dbPath string) string {
	return filepath.Join(dbPath, "version")
}
