package api

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/banshee-data/carm/internal/db"
	"github.com/banshee-data/carm/internal/monitoring"
)

var apiTestTemplatePath string

func TestMain(m *testing.M) {
	os.Exit(runAPITestMain(m))
}

// runAPITestMain migrates one template database that each test copies.
func runAPITestMain(m *testing.M) int {
	tmpDir, err := os.MkdirTemp("", "carm-api-template-*")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create API test template directory: %v\n", err)
		return 1
	}
	defer os.RemoveAll(tmpDir)

	monitoring.SetLogger(nil)
	apiTestTemplatePath = filepath.Join(tmpDir, "template.db")
	templateDB, err := db.NewDB(apiTestTemplatePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize API test template DB: %v\n", err)
		return 1
	}
	if err := templateDB.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to close API test template DB: %v\n", err)
		return 1
	}
	return m.Run()
}

func cloneAPITestDB(t *testing.T) string {
	t.Helper()
	if apiTestTemplatePath == "" {
		t.Fatal("API test template DB not initialized")
	}
	dbPath := filepath.Join(t.TempDir(), "test.db")
	if err := copyFile(apiTestTemplatePath, dbPath); err != nil {
		t.Fatalf("failed to clone API test DB template: %v", err)
	}
	return dbPath
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
