package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/fx"

	"chatrelay/pkg/admin"
	"chatrelay/pkg/config"
	"chatrelay/pkg/forum"
	"chatrelay/pkg/logger"
	"chatrelay/pkg/provider"
	"chatrelay/pkg/queue"
	"chatrelay/pkg/relay"
	"chatrelay/pkg/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the relay server",
	Long: `Start the chatrelay server.

The server receives post-created webhooks from the forum, routes them
through the subscription rules and delivers notifications to the
configured chat platforms. It can run in foreground mode or be
installed as a system service.

Examples:
  # Run in foreground (default)
  chatrelay serve

  # Install as system service (requires sudo/admin privileges)
  sudo chatrelay serve install

  # Control the service
  sudo chatrelay serve start
  sudo chatrelay serve stop
  sudo chatrelay serve restart
  sudo chatrelay serve status

  # Uninstall the service
  sudo chatrelay serve uninstall`,
	Run: runServeDefault,
}

var serveRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the server in foreground or as service",
	Long:  `Run the server. When installed as a service, this is called automatically.`,
	Run:   runServeRun,
}

var serveInstallCmd = &cobra.Command{
	Use:   "install",
	Short: "Install the relay server as a system service",
	Run:   runServeInstall,
}

var serveUninstallCmd = &cobra.Command{
	Use:   "uninstall",
	Short: "Uninstall the relay service",
	Run:   runServeUninstall,
}

var serveStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the relay service",
	Run:   runServeStart,
}

var serveStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the relay service",
	Run:   runServeStop,
}

var serveRestartCmd = &cobra.Command{
	Use:   "restart",
	Short: "Restart the relay service",
	Run:   runServeRestart,
}

var serveStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check the relay service status",
	Run:   runServeStatus,
}

func init() {
	serveCmd.AddCommand(serveRunCmd)
	serveCmd.AddCommand(serveInstallCmd)
	serveCmd.AddCommand(serveUninstallCmd)
	serveCmd.AddCommand(serveStartCmd)
	serveCmd.AddCommand(serveStopCmd)
	serveCmd.AddCommand(serveRestartCmd)
	serveCmd.AddCommand(serveStatusCmd)
}

// appModules assembles the full application graph, honoring -c.
func appModules() fx.Option {
	opts := []fx.Option{
		fx.Provide(config.ProvideLoader),
	}
	if configPath != "" {
		opts = append(opts, fx.Provide(config.ProvideConfigWithPath(configPath)))
	} else {
		opts = append(opts, fx.Provide(config.ProvideConfig))
	}
	opts = append(opts,
		logger.Module,
		forum.Module,
		provider.Module,
		store.Module,
		relay.Module,
		queue.Module,
		admin.Module,
	)
	return fx.Options(opts...)
}

func runServeDefault(cmd *cobra.Command, args []string) {
	fmt.Println("Starting chatrelay in foreground mode...")
	fmt.Println("To install as a system service, use: chatrelay serve install")
	fmt.Println()

	runServeForeground()
}

func runServeForeground() {
	app := fx.New(
		appModules(),
		fx.NopLogger,
	)
	app.Run()
}

func runServeRun(cmd *cobra.Command, args []string) {
	// Check if running as a service
	isService := os.Getenv("INVOCATION_ID") != "" || // systemd
		os.Getenv("_") == "/bin/launchd" || // launchd
		os.Getenv("SERVICE_NAME") != "" // Windows service

	if isService {
		if err := RunService(); err != nil {
			fmt.Fprintf(os.Stderr, "Error running service: %v\n", err)
			os.Exit(1)
		}
	} else {
		runServeForeground()
	}
}

func runServeInstall(cmd *cobra.Command, args []string) {
	if err := InstallService(); err != nil {
		fmt.Fprintf(os.Stderr, "Error installing service: %v\n", err)
		fmt.Fprintln(os.Stderr, "\nNote: Installing system services requires administrator privileges.")
		os.Exit(1)
	}
}

func runServeUninstall(cmd *cobra.Command, args []string) {
	if err := UninstallService(); err != nil {
		fmt.Fprintf(os.Stderr, "Error uninstalling service: %v\n", err)
		fmt.Fprintln(os.Stderr, "\nNote: Uninstalling system services requires administrator privileges.")
		os.Exit(1)
	}
}

func runServeStart(cmd *cobra.Command, args []string) {
	if err := StartService(); err != nil {
		fmt.Fprintf(os.Stderr, "Error starting service: %v\n", err)
		fmt.Fprintln(os.Stderr, "\nNote: Starting system services requires administrator privileges.")
		os.Exit(1)
	}
}

func runServeStop(cmd *cobra.Command, args []string) {
	if err := StopService(); err != nil {
		fmt.Fprintf(os.Stderr, "Error stopping service: %v\n", err)
		fmt.Fprintln(os.Stderr, "\nNote: Stopping system services requires administrator privileges.")
		os.Exit(1)
	}
}

func runServeRestart(cmd *cobra.Command, args []string) {
	if err := RestartService(); err != nil {
		fmt.Fprintf(os.Stderr, "Error restarting service: %v\n", err)
		fmt.Fprintln(os.Stderr, "\nNote: Restarting system services requires administrator privileges.")
		os.Exit(1)
	}
}

func runServeStatus(cmd *cobra.Command, args []string) {
	if err := StatusService(); err != nil {
		fmt.Fprintf(os.Stderr, "Error checking service status: %v\n", err)
		os.Exit(1)
	}
}
