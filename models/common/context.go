package common

import (
	"fmt"
	"net/url"

	"github.com/op/go-logging"
	"github.com/sheetbridge/persistence/cache"
	"github.com/sheetbridge/persistence/files"
	"github.com/sheetbridge/persistence/metrics"
	"github.com/sheetbridge/persistence/network"
	"github.com/sheetbridge/persistence/resolver"
	"github.com/sheetbridge/persistence/util/logger"
)

// Context holds every client the persistence layer needs, built from
// one Config. Apps create one Context at startup and share it.
type Context struct {
	BlobClient   *network.MinioBlobClient
	CacheManager *cache.Manager
	Config       *Config
	Files        *files.Manager
	Logger       *logging.Logger
	Metrics      *metrics.Set
	RedisClient  *network.RedisClient
	Resolver     *resolver.Resolver
	Store        *network.RemoteObjectStore
}

// NewContext builds a Context from the config named by the environment.
// It panics on error, as the apps cannot do anything without it.
func NewContext() *Context {
	context, err := NewContextFromConfig(NewConfig(), nil)
	if err != nil {
		panic(err)
	}
	return context
}

// NewContextFromConfig builds a Context from config. If log is nil,
// the logger is created from the config's log settings.
func NewContextFromConfig(config *Config, log *logging.Logger) (*Context, error) {
	if err := config.MakeDirs(); err != nil {
		return nil, err
	}
	if log == nil {
		log = getLogger(config)
	}
	metricSet := metrics.NewSet()

	blobClient, err := network.NewMinioBlobClient(config.S3Host, config.S3KeyID, config.S3SecretKey, config.S3UseSSL, log)
	if err != nil {
		return nil, err
	}
	store := network.NewRemoteObjectStore(blobClient, getPublicFetcher(config, blobClient), log)
	store.PutPolicy = network.RetryPolicy{MaxAttempts: config.PutAttempts, Timeout: config.PutTimeout}
	store.GetPolicy = network.RetryPolicy{MaxAttempts: config.GetAttempts, Timeout: config.GetTimeout}
	store.ListPolicy = network.RetryPolicy{MaxAttempts: config.ListAttempts, Timeout: config.GetTimeout}
	store.DeleteTimeout = config.DeleteTimeout
	store.SetObserver(metricSet.Storage)

	redisClient := getRedisClient(config)
	mappings, err := resolver.NewCachedMappingStore(redisClient, config.MappingMemoSize)
	if err != nil {
		return nil, fmt.Errorf("Could not initialize mapping store: %v", err)
	}
	fileResolver := resolver.NewResolver(store, mappings, log)
	fileResolver.SetObserver(metricSet.Resolver)

	cacheManager, err := getCacheManager(config, log)
	if err != nil {
		return nil, err
	}
	cacheManager.Cache.SetObserver(metricSet.Cache)
	cacheManager.Init(config.CacheVersion)

	return &Context{
		BlobClient:   blobClient,
		CacheManager: cacheManager,
		Config:       config,
		Files:        files.NewManager(store, fileResolver, cacheManager.Cache, log),
		Logger:       log,
		Metrics:      metricSet,
		RedisClient:  redisClient,
		Resolver:     fileResolver,
		Store:        store,
	}, nil
}

// Close releases the cache database and the redis connection pool.
func (context *Context) Close() {
	if err := context.CacheManager.Close(); err != nil {
		context.Logger.Warningf("Error closing cache: %v", err)
	}
	if err := context.RedisClient.Close(); err != nil {
		context.Logger.Warningf("Error closing redis client: %v", err)
	}
}

func getLogger(config *Config) *logging.Logger {
	if config.LogDir == "" {
		return logger.InitConsoleLogger("sheetbridge", config.LogLevel)
	}
	log, _ := logger.InitLogger(config.LogDir, config.LogLevel)
	return log
}

func getRedisClient(config *Config) *network.RedisClient {
	return network.NewRedisClient(
		config.RedisURL,
		config.RedisPassword,
		config.RedisDefaultDB)
}

// Objects are public at <base>/<bucket>/<key>. Without an explicit base
// URL, that is the S3 endpoint itself.
func getPublicFetcher(config *Config, blobClient *network.MinioBlobClient) *network.PublicFetcher {
	baseURL := config.PublicBaseURL
	if baseURL == "" {
		endpoint := blobClient.EndpointURL()
		baseURL = (&url.URL{Scheme: endpoint.Scheme, Host: endpoint.Host}).String()
	}
	return network.NewPublicFetcher(baseURL, config.PublicFetchTimeout)
}

func getCacheManager(config *Config, log *logging.Logger) (*cache.Manager, error) {
	var backend cache.Backend = cache.NewMemoryBackend()
	if config.CacheDBPath != "" {
		sqliteBackend, err := cache.OpenSQLiteBackend(config.CacheDBPath)
		if err != nil {
			return nil, fmt.Errorf("Could not open cache db: %v", err)
		}
		backend = sqliteBackend
	}
	localCache := cache.NewLocalCache(backend, log)
	localCache.MaxEntrySize = config.CacheMaxEntrySize
	localCache.Quota = config.CacheQuota
	localCache.TTL = config.CacheTTL
	return cache.NewManager(localCache, log), nil
}
