package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"

	"Gin_postgres_redis_library/config"
)

func Test_LoadEnv_ReadsFileWithoutOverriding(t *testing.T) {
	file := filepath.Join(t.TempDir(), "test.env")
	assert.NoError(t, os.WriteFile(file, []byte("LIB_TEST_FROM_FILE=file\nLIB_TEST_PRESET=file\n"), 0o600))

	t.Setenv("ENV_FILE", file)
	t.Setenv("LIB_TEST_PRESET", "process")
	t.Cleanup(func() { os.Unsetenv("LIB_TEST_FROM_FILE") })

	config.LoadEnv()

	assert.Equal(t, "file", os.Getenv("LIB_TEST_FROM_FILE"))
	assert.Equal(t, "process", os.Getenv("LIB_TEST_PRESET"))
}

func Test_LoadEnv_MissingFile(t *testing.T) {
	t.Setenv("ENV_FILE", filepath.Join(t.TempDir(), "absent.env"))
	assert.NotPanics(t, config.LoadEnv)
}
