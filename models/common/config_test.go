package common_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/op/go-logging"
	"github.com/sheetbridge/persistence/constants"
	"github.com/sheetbridge/persistence/models/common"
	"github.com/sheetbridge/persistence/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfig(t *testing.T) {
	t.Setenv("PO_CONFIG_DIR", util.ProjectRoot())
	t.Setenv("PO_ENV", "test")
	config := common.NewConfig()
	assert.Equal(t, "test", config.ConfigName)
	assert.Equal(t, logging.ERROR, config.LogLevel)
	assert.Equal(t, 25*time.Second, config.PutTimeout)
	assert.Equal(t, 7*24*time.Hour, config.CacheTTL)
	assert.EqualValues(t, 52428800, config.CacheQuota)
	assert.Equal(t, 128, config.MappingMemoSize)
	assert.False(t, config.S3UseSSL)
	assert.Equal(t, "", config.CacheDBPath)
}

func TestNewConfigMissingEnv(t *testing.T) {
	t.Setenv("PO_CONFIG_DIR", "")
	assert.Panics(t, func() { common.NewConfig() })
}

func writeEnvFile(t *testing.T, name, contents string) string {
	dir := t.TempDir()
	require.Nil(t, os.WriteFile(filepath.Join(dir, ".env."+name), []byte(contents), 0644))
	return dir
}

func TestLoadConfigDefaults(t *testing.T) {
	dir := writeEnvFile(t, "staging", "S3_HOST=s3.example.com\nREDIS_URL=redis.example.com:6379\n")
	config, err := common.LoadConfig(dir, "staging")
	require.Nil(t, err)
	assert.Equal(t, constants.DefaultPutAttempts, config.PutAttempts)
	assert.Equal(t, constants.DefaultGetAttempts, config.GetAttempts)
	assert.Equal(t, constants.DefaultListAttempts, config.ListAttempts)
	assert.Equal(t, constants.DefaultGetTimeout, config.GetTimeout)
	assert.Equal(t, constants.DefaultCacheQuota, config.CacheQuota)
	assert.Equal(t, constants.DefaultCacheMaxEntry, config.CacheMaxEntrySize)
	assert.Equal(t, time.Hour, config.CacheSweepInterval)
	assert.Equal(t, logging.INFO, config.LogLevel)
	assert.True(t, config.S3UseSSL)
}

func TestLoadConfigRejectsExternalHostsInTest(t *testing.T) {
	dir := writeEnvFile(t, "test", "S3_HOST=s3.amazonaws.com\n")
	_, err := common.LoadConfig(dir, "test")
	require.NotNil(t, err)
	assert.Contains(t, err.Error(), "S3_HOST")
	assert.Contains(t, err.Error(), "s3.amazonaws.com")

	dir = writeEnvFile(t, "dev", "REDIS_URL=redis.example.com:6379\n")
	_, err = common.LoadConfig(dir, "dev")
	require.NotNil(t, err)
	assert.Equal(t, "dev config may not point REDIS_URL to external host redis.example.com:6379", err.Error())

	dir = writeEnvFile(t, "test", "S3_HOST=localhost:9000\nPUBLIC_BASE_URL=http://127.0.0.1:9000\n")
	_, err = common.LoadConfig(dir, "test")
	assert.Nil(t, err)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := common.LoadConfig(t.TempDir(), "nope")
	assert.NotNil(t, err)
}

func TestLoadConfigExpandsPaths(t *testing.T) {
	dir := writeEnvFile(t, "prod", "CACHE_DB_PATH=~/sheetbridge/cache.db\n")
	config, err := common.LoadConfig(dir, "prod")
	require.Nil(t, err)
	home, err := os.UserHomeDir()
	require.Nil(t, err)
	assert.Equal(t, filepath.Join(home, "sheetbridge", "cache.db"), config.CacheDBPath)
}
