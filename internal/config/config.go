// Package config loads CoreConfiguration from the process environment, per
// spec.md §6.3. Loading never fails outright: a malformed variable is
// recorded as a non-fatal error (the caller logs it) and the corresponding
// default applies, matching spec.md §6.1's "errors are logged, not fatal;
// defaults apply."
//
// Grounded on the teacher's config.Config (struct-of-tunables, a
// LoadConfig/DefaultConfig pair), generalized from a JSON config file to
// environment variables since spec.md §6.3 is itself an environment table.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	envCacheDuration     = "ONESDK_CONFIG_CACHE_DURATION"
	envDevDumpBufferSize = "ONESDK_CONFIG_DEV_DUMP_BUFFER_SIZE"
	envLog               = "ONESDK_LOG"
	envRegistryURL       = "ONESDK_REGISTRY_URL"
	envDevLog            = "ONESDK_DEV_LOG"
)

const (
	defaultCacheDuration     = 3600 * time.Second
	defaultDevDumpBufferSize = 1 << 20 // 1 MiB
	defaultRegistryURL       = "http://localhost:8321"
	defaultDevLogDirective   = "off"
)

// CoreConfiguration holds every tunable spec.md §6.3 names.
type CoreConfiguration struct {
	// CacheDuration is the TTL for DocumentCache entries.
	CacheDuration time.Duration

	// DevDumpBufferSize sizes the developer-dump ring buffer, in bytes.
	DevDumpBufferSize int

	// LogHTTPTransactions makes mapstd wrap each HTTP response body in a
	// PeekableStream and peek its first bytes when the head is taken. No
	// request or response line is written to the @user sink.
	LogHTTPTransactions bool

	// RegistryURL is the base URL registry-relative document references
	// resolve against.
	RegistryURL *url.URL

	// DevLogDirective is the ONESDK_DEV_LOG directive string, a second
	// (core-level) developer-log filter independent of SF_DEV_LOG, which
	// the observability package reads directly from the environment.
	DevLogDirective string
}

// Load reads CoreConfiguration from the environment. It always returns a
// usable configuration; parseErrs lists any variables that were present but
// malformed, each paired with the default that was substituted.
func Load() (cfg CoreConfiguration, parseErrs []error) {
	cfg.CacheDuration = defaultCacheDuration
	if v, ok := os.LookupEnv(envCacheDuration); ok {
		secs, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			parseErrs = append(parseErrs, fmt.Errorf("config: %s=%q: %w (using default %s)", envCacheDuration, v, err, defaultCacheDuration))
		} else {
			cfg.CacheDuration = time.Duration(secs) * time.Second
		}
	}

	cfg.DevDumpBufferSize = defaultDevDumpBufferSize
	if v, ok := os.LookupEnv(envDevDumpBufferSize); ok {
		size, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			parseErrs = append(parseErrs, fmt.Errorf("config: %s=%q: %w (using default %d)", envDevDumpBufferSize, v, err, defaultDevDumpBufferSize))
		} else {
			cfg.DevDumpBufferSize = int(size)
		}
	}

	cfg.LogHTTPTransactions = parseBool(os.Getenv(envLog))

	registry, err := url.Parse(defaultRegistryURL)
	if err != nil {
		// Unreachable: defaultRegistryURL is a constant literal.
		panic(err)
	}
	cfg.RegistryURL = registry
	if v, ok := os.LookupEnv(envRegistryURL); ok {
		parsed, err := url.Parse(v)
		if err != nil {
			parseErrs = append(parseErrs, fmt.Errorf("config: %s=%q: %w (using default %s)", envRegistryURL, v, err, defaultRegistryURL))
		} else {
			cfg.RegistryURL = parsed
		}
	}

	cfg.DevLogDirective = defaultDevLogDirective
	if v, ok := os.LookupEnv(envDevLog); ok {
		cfg.DevLogDirective = v
	}

	return cfg, parseErrs
}

// parseBool matches spec.md §6.3's bool grammar ("on/yes/true/1"), case
// insensitive; anything else (including unset/empty) is false.
func parseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "on", "yes", "true", "1":
		return true
	default:
		return false
	}
}
