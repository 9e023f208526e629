package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
)

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Interactively generate a configuration file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runInit(cmd.OutOrStdout())
		},
	}
}

func runInit(out io.Writer) error {
	dataDir := defaultDataDir()

	var (
		backend   = "sqlite"
		dbPath    = filepath.Join(dataDir, "memgraph.db")
		listen    = ""
		authToken = ""
		provider  = "local"
		enableGW  bool
	)

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Storage backend").
				Description("sqlite persists across restarts; memory is ephemeral").
				Options(huh.NewOptions("sqlite", "memory")...).
				Value(&backend),
			huh.NewInput().
				Title("Database path").
				Value(&dbPath),
			huh.NewSelect[string]().
				Title("Embedding provider").
				Description("local ranks retrieval by semantic similarity; none by importance and recency only").
				Options(huh.NewOptions("local", "none")...).
				Value(&provider),
		),
		huh.NewGroup(
			huh.NewConfirm().
				Title("Enable the admin HTTP gateway?").
				Value(&enableGW),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Gateway listen address").
				Placeholder("127.0.0.1:8347").
				Value(&listen),
			huh.NewInput().
				Title("Gateway auth token").
				Description("Leave empty to serve the API without authentication").
				EchoMode(huh.EchoModePassword).
				Value(&authToken),
		).WithHideFunc(func() bool { return !enableGW }),
	)
	if err := form.Run(); err != nil {
		return err
	}

	if enableGW && listen == "" {
		listen = "127.0.0.1:8347"
	}

	cfgPath, err := resolveWriteConfigPath()
	if err != nil {
		return err
	}
	if _, err := os.Stat(cfgPath); err == nil {
		return fmt.Errorf("config already exists at %s, remove it first", cfgPath)
	}
	if err := os.MkdirAll(filepath.Dir(cfgPath), 0o700); err != nil {
		return err
	}

	content := renderConfig(backend, dbPath, provider, listen, authToken)
	if err := os.WriteFile(cfgPath, []byte(content), 0o600); err != nil {
		return err
	}

	fmt.Fprintf(out, "Wrote %s\n", cfgPath)
	fmt.Fprintf(out, "Start the server with: memgraph start\n")
	return nil
}

// renderConfig emits a commented starter config rather than a marshaled
// struct, so defaults stay visible to whoever edits it next.
func renderConfig(backend, dbPath, provider, listen, authToken string) string {
	cfg := `version: "1"

storage:
  backend: ` + strconv.Quote(backend) + `
  path: ` + strconv.Quote(dbPath) + `

session:
  state_max_idle: "2h"
  cleanup_schedule: "*/5 * * * *"
  rebuild_scan_limit: 50

retrieval:
  half_life: "168h"
  similarity_timeout: "200ms"
  default_limit: 10

consolidation:
  schedule: "0 * * * *"
  min_nodes: 5
  staleness_window: "24h"
  decay_factor: 0.95
  similarity_threshold: 0.92
  embed_schedule: "*/10 * * * *"
  embed_batch: 64

embedding:
  provider: ` + strconv.Quote(provider) + `

log:
  level: "info"
  format: "text"
`
	if listen != "" {
		gw := `
gateway:
  listen: ` + strconv.Quote(listen) + "\n"
		if authToken != "" {
			gw += `  auth_token: ` + strconv.Quote(authToken) + "\n"
		}
		cfg += gw
	}
	return cfg
}

// resolveWriteConfigPath picks where init writes the config, mirroring the
// read-side resolution order.
func resolveWriteConfigPath() (string, error) {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, "memgraph", "memgraph.yaml"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "memgraph", "memgraph.yaml"), nil
}
