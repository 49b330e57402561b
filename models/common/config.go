package common

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/op/go-logging"
	"github.com/sheetbridge/persistence/constants"
	"github.com/sheetbridge/persistence/util"
	"github.com/spf13/viper"
)

type Config struct {
	CacheDBPath        string
	CacheMaxEntrySize  int64
	CacheQuota         int64
	CacheSweepInterval time.Duration
	CacheTTL           time.Duration
	CacheVersion       string
	ConfigName         string
	DeleteTimeout      time.Duration
	GetAttempts        int
	GetTimeout         time.Duration
	ListAttempts       int
	LogDir             string
	LogLevel           logging.Level
	MappingMemoSize    int
	MetricsAddr        string
	PublicBaseURL      string
	PublicFetchTimeout time.Duration
	PutAttempts        int
	PutTimeout         time.Duration
	RedisDefaultDB     int
	RedisPassword      string
	RedisURL           string
	S3Host             string
	S3KeyID            string
	S3SecretKey        string
	S3UseSSL           bool
}

var logLevels = map[string]logging.Level{
	"CRITICAL": logging.CRITICAL,
	"ERROR":    logging.ERROR,
	"WARNING":  logging.WARNING,
	"NOTICE":   logging.NOTICE,
	"INFO":     logging.INFO,
	"DEBUG":    logging.DEBUG,
}

// Returns a new config based on ENV vars PO_CONFIG_DIR and PO_ENV.
// Panics if the config cannot be loaded, since nothing can run
// without it.
func NewConfig() *Config {
	configDir, envName := getEnvVars()
	config, err := LoadConfig(configDir, envName)
	if err != nil {
		panic(err)
	}
	return config
}

// LoadConfig reads .env.<envName> from configDir. Settings missing from
// the file fall back to the built-in defaults.
func LoadConfig(configDir, envName string) (*Config, error) {
	v := viper.New()
	v.AddConfigPath(configDir)
	v.SetConfigName(".env." + envName)
	v.SetConfigType("env")
	setDefaults(v)
	err := v.ReadInConfig()
	if err != nil {
		return nil, fmt.Errorf("Fatal error config file: %s", err)
	}
	config := &Config{
		CacheDBPath:        v.GetString("CACHE_DB_PATH"),
		CacheMaxEntrySize:  v.GetInt64("CACHE_MAX_ENTRY_SIZE"),
		CacheQuota:         v.GetInt64("CACHE_QUOTA"),
		CacheSweepInterval: v.GetDuration("CACHE_SWEEP_INTERVAL"),
		CacheTTL:           v.GetDuration("CACHE_TTL"),
		CacheVersion:       v.GetString("CACHE_VERSION"),
		ConfigName:         envName,
		DeleteTimeout:      v.GetDuration("DELETE_TIMEOUT"),
		GetAttempts:        v.GetInt("GET_ATTEMPTS"),
		GetTimeout:         v.GetDuration("GET_TIMEOUT"),
		ListAttempts:       v.GetInt("LIST_ATTEMPTS"),
		LogDir:             v.GetString("LOG_DIR"),
		LogLevel:           logLevel(v.GetString("LOG_LEVEL")),
		MappingMemoSize:    v.GetInt("MAPPING_MEMO_SIZE"),
		MetricsAddr:        v.GetString("METRICS_ADDR"),
		PublicBaseURL:      v.GetString("PUBLIC_BASE_URL"),
		PublicFetchTimeout: v.GetDuration("PUBLIC_FETCH_TIMEOUT"),
		PutAttempts:        v.GetInt("PUT_ATTEMPTS"),
		PutTimeout:         v.GetDuration("PUT_TIMEOUT"),
		RedisDefaultDB:     v.GetInt("REDIS_DEFAULT_DB"),
		RedisPassword:      v.GetString("REDIS_PASSWORD"),
		RedisURL:           v.GetString("REDIS_URL"),
		S3Host:             v.GetString("S3_HOST"),
		S3KeyID:            v.GetString("S3_KEY"),
		S3SecretKey:        v.GetString("S3_SECRET"),
		S3UseSSL:           v.GetBool("S3_USE_SSL"),
	}
	config.expandPaths()
	if err := config.sanityCheck(); err != nil {
		return nil, err
	}
	return config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("CACHE_MAX_ENTRY_SIZE", constants.DefaultCacheMaxEntry)
	v.SetDefault("CACHE_QUOTA", constants.DefaultCacheQuota)
	v.SetDefault("CACHE_SWEEP_INTERVAL", "1h")
	v.SetDefault("CACHE_TTL", constants.DefaultCacheTTL)
	v.SetDefault("CACHE_VERSION", "1")
	v.SetDefault("DELETE_TIMEOUT", constants.DefaultDeleteTimeout)
	v.SetDefault("GET_ATTEMPTS", constants.DefaultGetAttempts)
	v.SetDefault("GET_TIMEOUT", constants.DefaultGetTimeout)
	v.SetDefault("LIST_ATTEMPTS", constants.DefaultListAttempts)
	v.SetDefault("LOG_LEVEL", "INFO")
	v.SetDefault("MAPPING_MEMO_SIZE", constants.DefaultMappingMemo)
	v.SetDefault("PUBLIC_FETCH_TIMEOUT", constants.DefaultGetTimeout)
	v.SetDefault("PUT_ATTEMPTS", constants.DefaultPutAttempts)
	v.SetDefault("PUT_TIMEOUT", constants.DefaultPutTimeout)
	v.SetDefault("S3_USE_SSL", true)
}

func logLevel(name string) logging.Level {
	level, ok := logLevels[strings.ToUpper(name)]
	if !ok {
		return logging.INFO
	}
	return level
}

func getEnvVars() (string, string) {
	configDir := getRequiredEnvVar("PO_CONFIG_DIR")
	envName := getRequiredEnvVar("PO_ENV")
	return configDir, envName
}

func getRequiredEnvVar(varName string) string {
	value := os.Getenv(varName)
	if value == "" {
		panic(fmt.Sprintf("Required env var %s not set", varName))
	}
	return value
}

// Expand ~ to home dir in path settings.
func (c *Config) expandPaths() {
	c.CacheDBPath = expandPath(c.CacheDBPath)
	c.LogDir = expandPath(c.LogDir)
}

func expandPath(dirName string) string {
	if dirName == "" {
		return ""
	}
	dir, err := util.ExpandTilde(dirName)
	if err != nil {
		panic(err)
	}
	return filepath.Clean(dir)
}

// If this is dev or test env, don't let config point to any external
// services. This keeps a dev/test installation from touching data in
// production buckets.
func (c *Config) sanityCheck() error {
	if c.ConfigName != "dev" && c.ConfigName != "test" {
		return nil
	}
	for name, value := range map[string]string{
		"S3_HOST":         c.S3Host,
		"REDIS_URL":       c.RedisURL,
		"PUBLIC_BASE_URL": c.PublicBaseURL,
	} {
		if value != "" && !isLocal(value) {
			return fmt.Errorf("%s config may not point %s to external host %s", c.ConfigName, name, value)
		}
	}
	return nil
}

func isLocal(address string) bool {
	host := address
	if u, err := url.Parse(address); err == nil && u.Host != "" {
		host = u.Host
	}
	if i := strings.LastIndex(host, ":"); i >= 0 {
		host = host[:i]
	}
	return host == "localhost" || host == "127.0.0.1" || host == "[::1]" || host == ""
}

// MakeDirs creates the log directory and the cache db's directory.
func (c *Config) MakeDirs() error {
	dirs := make([]string, 0)
	if c.LogDir != "" {
		dirs = append(dirs, c.LogDir)
	}
	if c.CacheDBPath != "" {
		dirs = append(dirs, filepath.Dir(c.CacheDBPath))
	}
	for _, dir := range dirs {
		err := os.MkdirAll(dir, 0755)
		if err != nil {
			return err
		}
	}
	return nil
}
