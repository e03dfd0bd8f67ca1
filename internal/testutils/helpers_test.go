package testutils

import (
	"bytes"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateTempProject(t *testing.T) {
	projectDir := CreateTempProject(t)

	for name, content := range StandardSources {
		assert.Equal(t, content, ReadFile(t, projectDir, name))
	}
	assert.FileExists(t, filepath.Join(projectDir, "public", "images", "logo.png"))
	assert.NoDirExists(t, filepath.Join(projectDir, "build"))
}

func TestCreateTestConfig(t *testing.T) {
	cfg := CreateTestConfig()
	assert.Equal(t, 50*time.Millisecond, cfg.Build.Debounce)
	assert.Equal(t, 2, cfg.Build.Workers)

	table, err := cfg.PathTable()
	require.NoError(t, err)
	assert.Equal(t, "build", table.BuildRoot())
}

func TestTestPNGDecodes(t *testing.T) {
	img, err := png.Decode(bytes.NewReader(TestPNG(t)))
	require.NoError(t, err)
	assert.Equal(t, 32, img.Bounds().Dx())
}

func TestWaitForFileChange(t *testing.T) {
	file := filepath.Join(t.TempDir(), "watched.txt")
	require.NoError(t, os.WriteFile(file, []byte("a"), 0o644))
	before := time.Now().Add(-time.Second)

	go func() {
		time.Sleep(20 * time.Millisecond)
		_ = os.WriteFile(file, []byte("b"), 0o644)
	}()

	WaitForFileChange(t, file, before, time.Second)
}
