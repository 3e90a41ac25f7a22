// Package daemon installs cnocal as a systemd service so calibration runs
// survive logouts and reboots.
package daemon

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
)

var (
	unitPath = "/etc/systemd/system/cnocal.service"
)

const unitTemplate = `[Unit]
Description=cnocal C/No calibration daemon
After=network.target

[Service]
Type=simple
ExecStart=/path/to/cnocal daemon
Restart=on-failure
RestartSec=5

[Install]
WantedBy=multi-user.target
`

func Install() error {
	// Get the path to the current executable
	exePath, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to get the path to the current executable: %w", err)
	}
	exePath, err = filepath.Abs(exePath)
	if err != nil {
		return fmt.Errorf("failed to get the absolute path to the current executable: %w", err)
	}

	err = os.Chmod(exePath, 0755)
	if err != nil {
		return fmt.Errorf("failed to chmod the current executable to 0755: %w", err)
	}

	logrus.Infof("current executable path: %s", exePath)

	tmpl := strings.ReplaceAll(unitTemplate, "/path/to/cnocal", exePath)

	logrus.Infof("writing systemd unit to %s", unitPath)

	// warn if the file already exists
	_, err = os.Stat(unitPath)
	if err == nil {
		logrus.Errorf("%s already exists", unitPath)
	}

	err = os.WriteFile(unitPath, []byte(tmpl), 0644)
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", unitPath, err)
	}

	logrus.Infof("starting cnocal")

	for _, args := range [][]string{
		{"daemon-reload"},
		{"enable", "cnocal.service"},
		{"start", "cnocal.service"},
	} {
		err = exec.Command("systemctl", args...).Run()
		if err != nil {
			return fmt.Errorf("systemctl %s failed: %w", strings.Join(args, " "), err)
		}
	}

	return nil
}
