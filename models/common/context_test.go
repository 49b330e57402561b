package common_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/sheetbridge/persistence/constants"
	"github.com/sheetbridge/persistence/models/common"
	"github.com/sheetbridge/persistence/util"
	"github.com/sheetbridge/persistence/util/logger"
	"github.com/sheetbridge/persistence/util/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func getTestContext(t *testing.T) *common.Context {
	redisServer := testutil.NewRedisServer()
	s3Server := testutil.NewS3Server()
	t.Cleanup(func() {
		redisServer.Close()
		s3Server.Close()
	})
	config, err := common.LoadConfig(util.ProjectRoot(), "test")
	require.Nil(t, err)
	config.RedisURL = redisServer.Addr()
	config.S3Host = s3Server.Host()
	config.CacheDBPath = filepath.Join(t.TempDir(), "cache", "cache.db")
	ctx, err := common.NewContextFromConfig(config, logger.DiscardLogger("context_test"))
	require.Nil(t, err)
	t.Cleanup(ctx.Close)
	return ctx
}

func TestNewContextFromConfig(t *testing.T) {
	ctx := getTestContext(t)
	assert.NotNil(t, ctx.BlobClient)
	assert.NotNil(t, ctx.CacheManager)
	assert.NotNil(t, ctx.Files)
	assert.NotNil(t, ctx.Metrics)
	assert.NotNil(t, ctx.Resolver)
	assert.NotNil(t, ctx.Store)
	assert.Equal(t, 5, ctx.Store.PutPolicy.MaxAttempts)

	pong, err := ctx.RedisClient.Ping()
	require.Nil(t, err)
	assert.Equal(t, "PONG", pong)

	// Init already ran with the configured version.
	assert.False(t, ctx.CacheManager.Init(ctx.Config.CacheVersion))
}

func TestContextUploadAndFetch(t *testing.T) {
	ctx := getTestContext(t)
	background := context.Background()
	f := testutil.GetFileContent(testutil.OrderFileName, 10000)

	upload := ctx.Files.Upload(background, f, constants.PurposeOrder, constants.BucketUploads)
	require.True(t, upload.OK(), upload.Error)

	// Skip the cache to exercise resolve and get against S3 and redis.
	ctx.CacheManager.Cache.Remove(upload.Reference)
	fetch := ctx.Files.Fetch(background, upload.Reference, constants.PurposeOrder, constants.BucketUploads, constants.PurposeOrder)
	require.True(t, fetch.OK(), fetch.Error)
	assert.Equal(t, f.Data, fetch.File.Data)
	assert.Equal(t, upload.Key, fetch.Key)
	assert.Equal(t, constants.StrategyMapping, fetch.Strategy)

	stats := ctx.CacheManager.Cache.Stats()
	assert.Equal(t, 1, stats.EntryCount)
}
