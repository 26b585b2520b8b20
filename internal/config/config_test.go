// ABOUTME: Tests for configuration loading and parsing
// ABOUTME: Covers YAML loading, env var expansion, duration parsing, and defaults

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return configPath
}

func TestLoad_ValidConfig(t *testing.T) {
	configPath := writeConfig(t, `
server:
  http_addr: "0.0.0.0:8080"

database:
  path: "./test.db"

locator:
  timeout: "500ms"
  control_channel: "strand:locate-test"

session:
  workspace_root: "/tmp/workspaces"

logging:
  level: "debug"
  format: "json"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.HTTPAddr != "0.0.0.0:8080" {
		t.Errorf("Server.HTTPAddr = %q, want %q", cfg.Server.HTTPAddr, "0.0.0.0:8080")
	}
	if cfg.Database.Path != "./test.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "./test.db")
	}
	if cfg.Locator.Timeout != 500*time.Millisecond {
		t.Errorf("Locator.Timeout = %v, want %v", cfg.Locator.Timeout, 500*time.Millisecond)
	}
	if cfg.Locator.ControlChannel != "strand:locate-test" {
		t.Errorf("Locator.ControlChannel = %q, want %q", cfg.Locator.ControlChannel, "strand:locate-test")
	}
	if cfg.Session.WorkspaceRoot != "/tmp/workspaces" {
		t.Errorf("Session.WorkspaceRoot = %q, want %q", cfg.Session.WorkspaceRoot, "/tmp/workspaces")
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want %q", cfg.Logging.Level, "debug")
	}
}

func TestLoad_Defaults(t *testing.T) {
	configPath := writeConfig(t, `
server:
  http_addr: "127.0.0.1:8080"

database:
  path: ":memory:"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Locator.Timeout != DefaultLocatorTimeout {
		t.Errorf("Locator.Timeout = %v, want default %v", cfg.Locator.Timeout, DefaultLocatorTimeout)
	}
	if cfg.Locator.ControlChannel != DefaultControlChannel {
		t.Errorf("Locator.ControlChannel = %q, want default %q", cfg.Locator.ControlChannel, DefaultControlChannel)
	}
}

func TestLoad_EnvVarExpansion(t *testing.T) {
	t.Setenv("STRAND_TEST_DB_PATH", "/tmp/strand-test.db")

	configPath := writeConfig(t, `
server:
  http_addr: "127.0.0.1:8080"

database:
  path: "${STRAND_TEST_DB_PATH}"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Database.Path != "/tmp/strand-test.db" {
		t.Errorf("Database.Path = %q, want expanded env value", cfg.Database.Path)
	}
}

func TestLoad_UnsetEnvVarExpandsToEmpty(t *testing.T) {
	configPath := writeConfig(t, `
server:
  http_addr: "127.0.0.1:8080"

database:
  path: "${STRAND_DEFINITELY_UNSET_VAR}"
`)

	_, err := Load(configPath)
	if err == nil {
		t.Fatal("expected validation error for empty database path")
	}
	if !strings.Contains(err.Error(), "database.path") {
		t.Errorf("error = %v, want mention of database.path", err)
	}
}

func TestLoad_InvalidDuration(t *testing.T) {
	configPath := writeConfig(t, `
server:
  http_addr: "127.0.0.1:8080"

database:
  path: ":memory:"

locator:
  timeout: "not-a-duration"
`)

	_, err := Load(configPath)
	if err == nil {
		t.Fatal("expected error for invalid duration")
	}
	if !strings.Contains(err.Error(), "timeout") {
		t.Errorf("error = %v, want mention of timeout", err)
	}
}

func TestLoad_MissingHTTPAddr(t *testing.T) {
	configPath := writeConfig(t, `
database:
  path: ":memory:"
`)

	_, err := Load(configPath)
	if err == nil {
		t.Fatal("expected validation error for missing http_addr")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Fatal("expected error for missing config file")
	}
}
