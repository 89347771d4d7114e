package conf

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadConfig_Defaults(t *testing.T) {
	config, err := LoadConfig(writeConfig(t, "server:\n  port: 9090\n"))
	require.NoError(t, err)

	assert.Equal(t, 9090, config.Server.Port)
	assert.Equal(t, "fs", config.Store.Backend)
	assert.Equal(t, int64(15<<20), config.Attachment.MaxSize)
	assert.Equal(t, 14, config.Attachment.DeadlineDays)
}

func TestLoadConfig_ZeroDeadlineDaysDisablesCheck(t *testing.T) {
	config, err := LoadConfig(writeConfig(t, "attachment:\n  deadline_days: 0\n"))
	require.NoError(t, err)

	// Zero means no deadline; the default must not overwrite it.
	assert.Equal(t, 0, config.Attachment.DeadlineDays)
}
