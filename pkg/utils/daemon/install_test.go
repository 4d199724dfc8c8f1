package daemon

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testService(t *testing.T) (*Service, *[][]string) {
	t.Helper()
	var calls [][]string
	s := NewService("/etc/yig.json", "/var/run/yig.sock")
	s.UnitDir = filepath.Join(t.TempDir(), "system")
	s.Executable = "/usr/local/bin/yig"
	s.Systemctl = func(args ...string) error {
		calls = append(calls, args)
		return nil
	}
	return s, &calls
}

func TestInstallUninstall(t *testing.T) {
	s, calls := testService(t)

	require.NoError(t, s.Install())
	b, err := os.ReadFile(filepath.Join(s.UnitDir, serviceName))
	require.NoError(t, err)
	assert.Contains(t, string(b), "ExecStart=/usr/local/bin/yig daemon --config /etc/yig.json --daemon-socket /var/run/yig.sock")
	assert.Equal(t, [][]string{{"daemon-reload"}, {"enable", "--now", serviceName}}, *calls)

	*calls = nil
	require.NoError(t, s.Uninstall())
	assert.NoFileExists(t, filepath.Join(s.UnitDir, serviceName))
	assert.Equal(t, [][]string{{"disable", "--now", serviceName}, {"daemon-reload"}}, *calls)
}

func TestUninstallMissingUnit(t *testing.T) {
	s, _ := testService(t)
	assert.NoError(t, s.Uninstall())
}
