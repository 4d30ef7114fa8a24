package app

import (
	"os"
	"testing"
)

func TestCheckDatabaseVersion(t *testing.T) {
	dbPath := t.TempDir()

	err := checkDatabaseVersion(dbPath)
	if err != nil {
		t.Fatalf("checkDatabaseVersion on a new database: %+v", err)
	}
	if _, err := os.Stat(versionFilePath(dbPath)); err != nil {
		t.Fatalf("expected the version file to be created: %+v", err)
	}

	err = checkDatabaseVersion(dbPath)
	if err != nil {
		t.Fatalf("checkDatabaseVersion on an existing database: %+v", err)
	}

	err = os.WriteFile(versionFilePath(dbPath), []byte("2"), 0600)
	if err != nil {
		t.Fatalf("WriteFile: %+v", err)
	}
	err = checkDatabaseVersion(dbPath)
	if err == nil {
		t.Fatalf("expected an error for an unknown database version")
	}
}
