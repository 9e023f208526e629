package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// parse writes yaml to a temp file and loads it.
func parse(t *testing.T, yaml string) (*Config, error) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return Load(path)
}

func TestLoad(t *testing.T) {
	t.Parallel()

	cfg, err := parse(t, `
version: "1"
storage:
  backend: sqlite
  path: /var/lib/memgraph/graph.db
gateway:
  listen: ":8347"
importance:
  goal: 0.98
`)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Storage.Path != "/var/lib/memgraph/graph.db" {
		t.Errorf("path = %q", cfg.Storage.Path)
	}
	if cfg.Gateway.Listen != ":8347" {
		t.Errorf("listen = %q", cfg.Gateway.Listen)
	}
	if cfg.Importance["goal"] != 0.98 {
		t.Errorf("importance override = %v, want 0.98", cfg.Importance["goal"])
	}
}

func TestLoad_EnvExpansion(t *testing.T) {
	t.Setenv("MEMGRAPH_TEST_TOKEN", "sekrit")

	cfg, err := parse(t, `
version: "1"
storage:
  backend: memory
gateway:
  listen: "${MEMGRAPH_TEST_LISTEN:-:8347}"
  auth_token: "${MEMGRAPH_TEST_TOKEN}"
`)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Gateway.AuthToken != "sekrit" {
		t.Errorf("auth_token = %q, want env value", cfg.Gateway.AuthToken)
	}
	if cfg.Gateway.Listen != ":8347" {
		t.Errorf("listen = %q, want default", cfg.Gateway.Listen)
	}
}

func TestLoad_UnresolvedVariable(t *testing.T) {
	t.Parallel()

	_, err := parse(t, "version: \"1\"\ngateway:\n  auth_token: \"${MEMGRAPH_NO_SUCH_VAR}\"\n")
	if err == nil {
		t.Fatal("expected error for unresolved variable")
	}
	if !strings.Contains(err.Error(), "MEMGRAPH_NO_SUCH_VAR") {
		t.Errorf("error should name the variable: %v", err)
	}
}

func TestLoad_UnknownFieldRejected(t *testing.T) {
	t.Parallel()

	_, err := parse(t, "version: \"1\"\nstorge:\n  backend: memory\n")
	if err == nil {
		t.Fatal("expected error for misspelled top-level key")
	}
}

func TestLoad_EscapedDefault(t *testing.T) {
	t.Parallel()

	cfg, err := parse(t, `
version: "1"
storage:
  backend: memory
gateway:
  auth_token: "${MEMGRAPH_NO_SUCH_VAR:-a\}b}"
`)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Gateway.AuthToken != "a}b" {
		t.Errorf("auth_token = %q, want escaped brace unwrapped", cfg.Gateway.AuthToken)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	t.Parallel()

	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
