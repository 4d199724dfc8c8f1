// Package daemon installs the yig daemon as a systemd service.
package daemon

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
)

const (
	serviceName = "yig.service"

	unitTemplate = `[Unit]
Description=yig YIG filter bench daemon
After=network-online.target
Wants=network-online.target

[Service]
Type=simple
ExecStart=/path/to/yig daemon --config /path/to/config --daemon-socket /path/to/socket
Restart=on-failure
RestartSec=5

[Install]
WantedBy=multi-user.target
`
)

// Service describes the unit to install.
type Service struct {
	// UnitDir is where the unit file goes, /etc/systemd/system by default.
	UnitDir    string
	Executable string
	ConfigPath string
	SocketPath string
	// Systemctl runs systemctl with args.
	Systemctl func(args ...string) error
}

func NewService(configPath, socketPath string) *Service {
	return &Service{
		UnitDir:    "/etc/systemd/system",
		ConfigPath: configPath,
		SocketPath: socketPath,
		Systemctl: func(args ...string) error {
			out, err := exec.Command("systemctl", args...).CombinedOutput()
			if err != nil {
				return fmt.Errorf("systemctl %s: %w: %s", strings.Join(args, " "), err, strings.TrimSpace(string(out)))
			}
			return nil
		},
	}
}

func (s *Service) unitPath() string {
	return filepath.Join(s.UnitDir, serviceName)
}

// Unit renders the unit file.
func (s *Service) Unit() string {
	return strings.NewReplacer(
		"/path/to/yig", s.Executable,
		"/path/to/config", s.ConfigPath,
		"/path/to/socket", s.SocketPath,
	).Replace(unitTemplate)
}

func (s *Service) Install() error {
	if s.Executable == "" {
		// Get the path to the current executable
		exePath, err := os.Executable()
		if err != nil {
			return fmt.Errorf("failed to get the path to the current executable: %w", err)
		}
		exePath, err = filepath.Abs(exePath)
		if err != nil {
			return fmt.Errorf("failed to get the absolute path to the current executable: %w", err)
		}
		s.Executable = exePath
	}

	logrus.Infof("current executable path: %s", s.Executable)
	logrus.Infof("writing systemd unit to %s", s.UnitDir)

	err := os.MkdirAll(s.UnitDir, 0755)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", s.UnitDir, err)
	}

	// warn if the file already exists
	_, err = os.Stat(s.unitPath())
	if err == nil {
		logrus.Warnf("%s already exists, overwriting", s.unitPath())
	}

	err = os.WriteFile(s.unitPath(), []byte(s.Unit()), 0644)
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", s.unitPath(), err)
	}

	logrus.Infof("starting yig")

	if err := s.Systemctl("daemon-reload"); err != nil {
		return err
	}
	return s.Systemctl("enable", "--now", serviceName)
}
