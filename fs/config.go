package fs

import (
	"context"
	"strings"
	"time"
)

// Global
var (
	// globalConfig for sharepkg
	globalConfig = NewConfig()

	// ConfigPrefix is put in front of config names to make
	// environment variables
	ConfigPrefix = "SHAREPKG_"
)

// ConfigInfo is the global config for logging, HTTP and retries
type ConfigInfo struct {
	LogLevel           LogLevel
	UseJSONLog         bool
	ConnectTimeout     time.Duration // Connect timeout
	Timeout            time.Duration // Data channel timeout
	Dump               DumpFlags
	InsecureSkipVerify bool // Skip server certificate verification
	LowLevelRetries    int           // extra tries for a failed portal call
	RetrySleep         time.Duration // fixed backoff between low level retries
	UserAgent          string
	TPSLimit           float64
	TPSLimitBurst      int
	Progress           bool
}

// NewConfig creates a new config with everything set to the default
// value.  These are the ultimate defaults and are overridden by the
// config module.
func NewConfig() *ConfigInfo {
	c := new(ConfigInfo)

	// Set any values which aren't the zero for the type
	c.LogLevel = LogLevelNotice
	c.ConnectTimeout = 60 * time.Second
	c.Timeout = 5 * 60 * time.Second
	c.LowLevelRetries = 0
	c.RetrySleep = 2 * time.Second
	c.UserAgent = "sharepkg/" + Version
	c.TPSLimitBurst = 1

	return c
}

type configContextKeyType struct{}

// Context key for config
var configContextKey = configContextKeyType{}

// GetConfig returns the global or context sensitive context
func GetConfig(ctx context.Context) *ConfigInfo {
	if ctx == nil {
		return globalConfig
	}
	c := ctx.Value(configContextKey)
	if c == nil {
		return globalConfig
	}
	return c.(*ConfigInfo)
}

// AddConfig returns a mutable config structure based on a shallow
// copy of that found in ctx and returns a new context with that added
// to it.
func AddConfig(ctx context.Context) (context.Context, *ConfigInfo) {
	c := GetConfig(ctx)
	cCopy := new(ConfigInfo)
	*cCopy = *c
	newCtx := context.WithValue(ctx, configContextKey, cCopy)
	return newCtx, cCopy
}

// OptionToEnv converts an option name, e.g. "chunk-size" into an
// environment variable name, e.g. "SHAREPKG_CHUNK_SIZE"
func OptionToEnv(name string) string {
	name = strings.ToUpper(strings.Replace(name, "-", "_", -1))
	return ConfigPrefix + name
}
