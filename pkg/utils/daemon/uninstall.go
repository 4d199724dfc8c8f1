package daemon

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
)

func (s *Service) Uninstall() error {
	logrus.Infof("stopping yig")

	err := s.Systemctl("disable", "--now", serviceName)
	if err != nil {
		return fmt.Errorf("failed to disable %s: %w. Are you root?", serviceName, err)
	}

	logrus.Infof("removing systemd unit")

	// if the file doesn't exist, we don't need to remove it
	_, err = os.Stat(s.unitPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to stat %s: %w", s.unitPath(), err)
	}

	err = os.Remove(s.unitPath())
	if err != nil {
		return fmt.Errorf("failed to remove %s: %w. Are you root?", s.unitPath(), err)
	}

	return s.Systemctl("daemon-reload")
}
