package cli

// Package cli builds the vlab command tree: the interactive lab commands
// (login, sessions, upload, results, export, fleet, status) and the service
// management commands for the watch daemon.

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"vlab/internal/api"
	"vlab/internal/config"
	"vlab/internal/store"

	"github.com/kardianos/service"
	"github.com/spf13/cobra"
)

// Env carries the shared dependencies of the CLI commands.
type Env struct {
	Cfg     *config.Config
	CfgPath string
	LogPath string
	Logger  *slog.Logger
}

// openStore opens the local database on demand so that commands which never
// touch it don't create one.
func (e *Env) openStore() (*store.Store, error) {
	s, err := store.NewStore(e.Cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open local store at %s: %w", e.Cfg.DBPath, err)
	}
	return s, nil
}

// newClient builds the API client with the persisted token attached.
func (e *Env) newClient(s *store.Store) *api.Client {
	c := api.NewClient(e.Cfg.APIBaseURL, e.Cfg.RequestTimeout)
	c.Tokens = s
	return c
}

// NewRootCmd creates the root command and all subcommands for the CLI.
func NewRootCmd(s service.Service, env *Env) *cobra.Command {
	var rootCmd = &cobra.Command{
		Use:   "vlab",
		Short: "Passenger-counting validation lab client",
	}

	var installCmd = &cobra.Command{
		Use:   "install",
		Short: "Install the watch daemon as a system service",
		Run: func(cmd *cobra.Command, args []string) {
			if err := s.Install(); err != nil {
				fmt.Printf("Failed to install service: %s\n", err)
				return
			}
			fmt.Println("Service installed.")
		},
	}

	var uninstallCmd = &cobra.Command{
		Use:   "uninstall",
		Short: "Uninstall the watch daemon service",
		Run: func(cmd *cobra.Command, args []string) {
			if err := s.Uninstall(); err != nil {
				fmt.Printf("Failed to uninstall service: %s\n", err)
				return
			}
			fmt.Println("Service uninstalled.")
		},
	}

	var startCmd = &cobra.Command{
		Use:   "start",
		Short: "Start the watch daemon",
		Run: func(cmd *cobra.Command, args []string) {
			if err := s.Start(); err != nil {
				fmt.Printf("Failed to start: %s\n", err)
				return
			}
			fmt.Println("Service started.")
		},
	}

	var stopCmd = &cobra.Command{
		Use:   "stop",
		Short: "Stop the watch daemon",
		Run: func(cmd *cobra.Command, args []string) {
			if err := s.Stop(); err != nil {
				fmt.Printf("Failed to stop: %s\n", err)
				return
			}
			fmt.Println("Service stopped.")
		},
	}

	var restartCmd = &cobra.Command{
		Use:   "restart",
		Short: "Restart the watch daemon",
		Run: func(cmd *cobra.Command, args []string) {
			if err := s.Restart(); err != nil {
				fmt.Printf("Failed to restart: %s\n", err)
				return
			}
			fmt.Println("Service restarted.")
		},
	}

	var runCmd = &cobra.Command{
		Use:   "run",
		Short: "Run the watch daemon in the foreground",
		Run: func(cmd *cobra.Command, args []string) {
			if err := s.Run(); err != nil {
				env.Logger.Error("Run error", "error", err)
			}
		},
	}

	var logsCmd = &cobra.Command{
		Use:   "logs",
		Short: "Show daemon logs",
		Run: func(cmd *cobra.Command, args []string) {
			f, err := os.Open(env.LogPath)
			if err != nil {
				if os.IsNotExist(err) {
					fmt.Println("No logs found.")
					return
				}
				fmt.Printf("Error opening log file: %v\n", err)
				return
			}
			defer f.Close()
			if _, err := io.Copy(os.Stdout, f); err != nil {
				fmt.Printf("Error reading logs: %v\n", err)
			}
		},
	}

	rootCmd.AddCommand(
		installCmd,
		uninstallCmd,
		startCmd,
		stopCmd,
		restartCmd,
		runCmd,
		logsCmd,
		LoginCmd(env),
		LogoutCmd(env),
		WhoamiCmd(env),
		SessionsCmd(env),
		FleetCmd(env),
		UploadCmd(env),
		ResultsCmd(env),
		ExportCmd(env),
		StatusCmd(env),
	)
	return rootCmd
}
