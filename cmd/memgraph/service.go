package main

import (
	"fmt"
	"os"

	"github.com/kardianos/service"
	"github.com/spf13/cobra"
)

func serviceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "service",
		Short: "Manage memgraph as a system service",
	}

	var configPath string
	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to configuration file")

	for _, action := range []string{"install", "uninstall", "start", "stop", "restart"} {
		cmd.AddCommand(serviceActionCmd(action, &configPath))
	}
	cmd.AddCommand(&cobra.Command{
		Use:    "run",
		Short:  "Run under service manager control",
		Hidden: true,
		RunE: func(_ *cobra.Command, _ []string) error {
			svc, err := newService(configPath)
			if err != nil {
				return err
			}
			return svc.Run()
		},
	})
	return cmd
}

func serviceActionCmd(action string, configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   action,
		Short: fmt.Sprintf("%s the system service", action),
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := newService(*configPath)
			if err != nil {
				return err
			}
			if err := service.Control(svc, action); err != nil {
				return fmt.Errorf("service %s: %w", action, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "service %s: done\n", action)
			return nil
		},
	}
}

func newService(configPath string) (service.Service, error) {
	args := []string{"service", "run"}
	if configPath != "" {
		args = append(args, "--config", configPath)
	}
	return service.New(&program{configPath: configPath}, &service.Config{
		Name:        "memgraph",
		DisplayName: "memgraph",
		Description: "Session memory graph server",
		Arguments:   args,
	})
}

// program adapts the server loop to the service manager lifecycle. Start
// must not block, so the server runs on its own goroutine and Stop waits
// for it to wind down through the signal path.
type program struct {
	configPath string
	done       chan struct{}
}

var _ service.Interface = (*program)(nil)

func (p *program) Start(_ service.Service) error {
	p.done = make(chan struct{})
	go func() {
		defer close(p.done)
		if err := runServer(p.configPath); err != nil {
			fmt.Fprintln(os.Stderr, "memgraph:", err)
		}
	}()
	return nil
}

func (p *program) Stop(_ service.Service) error {
	// The service manager signals the process; runServer exits through its
	// NotifyContext. Nothing to do but wait.
	if p.done != nil {
		<-p.done
	}
	return nil
}
