package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/yigbench/yig/pkg/client"
	"github.com/yigbench/yig/pkg/version"
)

var (
	logLevel       = "info"
	unixSocketPath = "/var/run/yig.sock"
	configPath     = "/etc/yig.json"
)

var (
	gBench        = "Bench:"
	gCalibration  = "Calibration:"
	gAdvanced     = "Advanced:"
	commandGroups = []string{
		gBench,
		gCalibration,
		gAdvanced,
	}
)

var apiClient *client.Client

func setupLogger() error {
	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		return fmt.Errorf("failed to parse log level: %v", err)
	}
	logrus.SetLevel(level)
	logrus.SetFormatter(&logrus.TextFormatter{})
	if term.IsTerminal(int(os.Stderr.Fd())) {
		logrus.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: time.DateTime,
		})
	}

	return nil
}

func handleCmdError(err error) {
	if errors.Is(err, client.ErrDaemonNotRunning) {
		fmt.Fprintln(os.Stderr, "\nError: yig daemon is not running")
		fmt.Fprintln(os.Stderr, "Start it with 'yig daemon' or check --daemon-socket.")
	} else if errors.Is(err, client.ErrPermissionDenied) {
		fmt.Fprintln(os.Stderr, "\nError: Permission Denied")
		fmt.Fprintln(os.Stderr, "  - Try running the command again with 'sudo'")
		fmt.Fprintln(os.Stderr, "  - Or start the daemon with '--always-allow-non-root-access'")
	} else if errors.Is(err, client.ErrBusy) {
		fmt.Fprintln(os.Stderr, "\nHint: see 'yig status' for the active run")
	}
}

func main() {
	cmd := NewCommand()
	if err := cmd.Execute(); err != nil {
		handleCmdError(err)
		os.Exit(1)
	}
}

func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "yig",
		Short: "yig drives the YIG filter bench: IF power sweeps and tuner calibration",
		Long: `yig drives the YIG filter test bench.

A long running daemon owns the instruments and runs one sweep at a time:
measurements of IF power across the tuned frequency range (optionally with a
hot/cold chopper), and calibrations of the tuning current to frequency law.
The other commands talk to the daemon over its unix socket.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			err := setupLogger()
			if err != nil {
				return err
			}

			apiClient = client.NewClient(unixSocketPath)

			switch cmd.Name() {
			case "daemon", "install", "uninstall":
				return nil
			}
			if info, err := apiClient.GetVersion(); err == nil {
				if info.Version != version.Version {
					logrus.WithFields(logrus.Fields{
						"clientVersion": version.Version,
						"daemonVersion": info.Version,
					}).Warn("Version mismatch between client and daemon. Restart the daemon after upgrading.")
				}
			}

			return nil
		},
	}

	globalFlags := cmd.PersistentFlags()
	globalFlags.StringVarP(&logLevel, "log-level", "l", "info", "log level (trace, debug, info, warn, error, fatal, panic)")
	globalFlags.StringVar(&configPath, "config", configPath, "config file path")
	globalFlags.StringVar(&unixSocketPath, "daemon-socket", unixSocketPath, "yig daemon unix socket path")

	for _, i := range commandGroups {
		cmd.AddGroup(&cobra.Group{
			ID:    i,
			Title: i,
		})
	}

	cmd.AddCommand(
		NewDaemonCommand(),
		NewVersionCommand(),
		NewMeasureCommand(),
		NewMeasurementsCommand(),
		NewStatusCommand(),
		NewStopCommand(),
		NewWatchCommand(),
		NewCalibrateCommand(),
		NewCalibrationCommand(),
		NewInstallCommand(),
		NewUninstallCommand(),
	)

	return cmd
}
