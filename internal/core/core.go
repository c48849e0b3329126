// Package core implements the OneClientCore global singleton: the
// process-wide, mutex-guarded instance spec.md §5 describes ("a global
// mutex-guarded singleton holds the OneClientCore instance... setup must
// precede perform; a second setup without teardown is a programming
// error"). It owns configuration, observability sinks, and the three
// document caches (profile/provider/map); the actual 11-step perform
// pipeline lives in internal/perform and is wired in via PerformFunc so
// this package never needs to import it.
//
// Grounded on the teacher's session.Session/session.SessionManager
// lifecycle (idle/active/closed state field under a mutex, Close()
// releasing resources), generalized from "2000 independent sessions" down
// to "one global instance with explicit setup/teardown," using
// PoisonableMutex in place of the teacher's plain sync.RWMutex to carry the
// poison-on-panic semantics spec.md §5 requires.
package core

import (
	"errors"
	"fmt"
	"net/http"
	"os"

	"github.com/oneclientcore/runtime/internal/cache"
	"github.com/oneclientcore/runtime/internal/config"
	"github.com/oneclientcore/runtime/internal/observability"
)

// State is the singleton's lifecycle state.
type State int

const (
	StateClosed State = iota
	StateIdle
	StateActive
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateActive:
		return "active"
	default:
		return "closed"
	}
}

// PerformFunc runs one perform's worth of work against requestJSON (the
// host-to-core exchange envelope, spec.md §4.2) and returns the
// core-to-host response envelope. Supplied at Setup time by the caller
// (typically cmd/core), keeping internal/perform's dependency on this
// package one-directional.
type PerformFunc func(c *OneClientCore, requestJSON []byte) (responseJSON []byte, err error)

// OneClientCore is the single process-wide instance. Every field is only
// ever touched while c.mu (the package-level singleton's PoisonableMutex)
// is held, except Router/MetricsBuffer/DumpBuffer, which spec.md §5 calls
// out as separately Arc-shared with their own short-lived locks.
type OneClientCore struct {
	state State

	Config config.CoreConfiguration

	Router        *observability.Router
	MetricsBuffer *observability.SharedEventBuffer
	DumpBuffer    *observability.SharedEventBuffer

	ProfileCache  *cache.DocumentCache[cache.ProfileCacheEntry]
	ProviderCache *cache.DocumentCache[cache.ProviderJsonCacheEntry]
	MapCache      *cache.DocumentCache[cache.MapCacheEntry]

	HTTPClient *http.Client

	orchestrate PerformFunc
}

var (
	globalMu       PoisonableMutex
	globalInstance *OneClientCore
)

// ErrNotSetUp is panicked by Perform/Teardown when no instance exists.
var ErrNotSetUp = errors.New("core: not set up")

// ErrAlreadySetUp is panicked by Setup when an instance already exists.
var ErrAlreadySetUp = errors.New("core: already set up")

// Setup is oneclient_core_setup (spec.md §6.1): idempotent-failing
// bootstrap. It loads CoreConfiguration from the environment (logging, not
// failing, on malformed variables), initializes observability, builds the
// three document caches, and installs the singleton. httpClient and
// readFile back the caches' network/file fetch paths; readFile defaults to
// os.ReadFile when nil. Panics if already set up.
func Setup(httpClient *http.Client, readFile cache.FileReader, orchestrate PerformFunc) {
	Guarded(&globalMu, func() {
		if globalInstance != nil {
			panic(ErrAlreadySetUp)
		}

		cfg, parseErrs := config.Load()

		metricsBuf := observability.NewSharedEventBuffer(observability.NewLinearEventBuffer())
		dumpBuf := observability.NewSharedEventBuffer(observability.NewRingEventBuffer(cfg.DevDumpBufferSize))
		router := observability.NewRouter(metricsBuf, dumpBuf)

		for _, e := range parseErrs {
			router.For("@user/config").Warn(e.Error())
		}

		if httpClient == nil {
			httpClient = http.DefaultClient
		}
		if readFile == nil {
			readFile = os.ReadFile
		}

		c := &OneClientCore{
			state:         StateIdle,
			Config:        cfg,
			Router:        router,
			MetricsBuffer: metricsBuf,
			DumpBuffer:    dumpBuf,
			HTTPClient:    httpClient,
			orchestrate:   orchestrate,
		}
		c.ProfileCache = cache.New[cache.ProfileCacheEntry](cfg.CacheDuration, cfg.RegistryURL, userAgent, httpClient, readFile)
		c.ProviderCache = cache.New[cache.ProviderJsonCacheEntry](cfg.CacheDuration, cfg.RegistryURL, userAgent, httpClient, readFile)
		c.MapCache = cache.New[cache.MapCacheEntry](cfg.CacheDuration, cfg.RegistryURL, userAgent, httpClient, readFile)

		globalInstance = c
		router.LogMetric(mustMarshal(observability.NewSdkInitEvent(nil)))
	})
}

const userAgent = "oneclient-core/1"

func mustMarshal(event any) []byte {
	data, err := observability.MarshalMetric(event)
	if err != nil {
		// Unreachable: every event type here is a plain, marshalable struct.
		panic(err)
	}
	return data
}

// Perform is oneclient_core_perform (spec.md §6.1): runs a single perform.
// Must be preceded by Setup. Delegates to the PerformFunc installed at
// Setup; on panic inside that function, the global lock is poisoned and the
// panic continues to unwind to the caller (cmd/core's export wrapper
// recovers it and reports an InternalError exception). No Panic metric
// event is written for it.
func Perform(requestJSON []byte) (responseJSON []byte, err error) {
	Guarded(&globalMu, func() {
		if globalInstance == nil {
			panic(ErrNotSetUp)
		}
		c := globalInstance
		c.state = StateActive
		responseJSON, err = c.orchestrate(c, requestJSON)
		c.state = StateIdle
	})
	return responseJSON, err
}

// Teardown is oneclient_core_teardown: tears down the singleton. Panics if
// not set up or if a prior perform poisoned the lock.
func Teardown() {
	Guarded(&globalMu, func() {
		if globalInstance == nil {
			panic(ErrNotSetUp)
		}
		globalInstance.state = StateClosed
		globalInstance = nil
	})
}

// GetMetrics returns the currently buffered metric events, each a UTF-8
// JSON string with its null separator stripped, oldest first (spec.md
// §6.1).
func GetMetrics() [][]byte {
	c, err := instance()
	if err != nil {
		panic(err)
	}
	return c.MetricsBuffer.Events()
}

// ClearMetrics discards all buffered metric events.
func ClearMetrics() {
	c, err := instance()
	if err != nil {
		panic(err)
	}
	c.MetricsBuffer.Clear()
}

// GetDeveloperDump returns the currently buffered developer-dump events.
func GetDeveloperDump() [][]byte {
	c, err := instance()
	if err != nil {
		panic(err)
	}
	return c.DumpBuffer.Events()
}

func instance() (*OneClientCore, error) {
	wasPoisoned := globalMu.Lock()
	defer globalMu.Unlock()
	if wasPoisoned {
		return nil, ErrPoisoned
	}
	if globalInstance == nil {
		return nil, fmt.Errorf("core: %w", ErrNotSetUp)
	}
	return globalInstance, nil
}
