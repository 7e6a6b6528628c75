package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	chdir(t, t.TempDir())

	c, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, DefaultDataPath, c.DataPath)
	assert.Equal(t, 6, c.MaxStations)
	assert.Equal(t, ":8080", c.ListenAddr)
	assert.Equal(t, "0 * * * *", c.Schedule)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "waterdash.yaml")
	require.NoError(t, Save(&Config{DataPath: "from-file.csv", MaxStations: 4, ListenAddr: ":9000"}, path))

	t.Setenv("WATERDASH_LISTEN_ADDR", ":7000")

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-file.csv", c.DataPath)
	assert.Equal(t, 4, c.MaxStations)
	assert.Equal(t, ":7000", c.ListenAddr)
}

func TestLoadLegacyTokenVariables(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("TELEGRAM_BOT_TOKEN", "tg-token")
	t.Setenv("OPENAI_API_KEY", "sk-test")

	c, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "tg-token", c.TelegramBotToken)
	assert.Equal(t, "sk-test", c.OpenAIAPIKey)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

// chdir changes the working directory for the duration of the test
// (equivalent of testing.T.Chdir, which requires Go 1.24).
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chdir(prev) })
}
