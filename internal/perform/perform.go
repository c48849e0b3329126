// Package perform implements the 11-step perform orchestrator spec.md
// §4.4 describes: the single operation a running core exposes, wired into
// internal/core as its PerformFunc (core.Setup's third argument) so
// internal/core never needs to import this package.
//
// Grounded on core/src/sf_core.rs's perform() driver (original_source):
// take input, load the three document caches, validate/merge parameters,
// build the security and services maps, run the map's named use case
// through the interpreter, take its output, and emit a metrics event
// regardless of how the run ended.
package perform

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"github.com/oneclientcore/runtime/internal/cache"
	"github.com/oneclientcore/runtime/internal/core"
	"github.com/oneclientcore/runtime/internal/exchange"
	"github.com/oneclientcore/runtime/internal/hostvalue"
	"github.com/oneclientcore/runtime/internal/interpreter"
	"github.com/oneclientcore/runtime/internal/mapstd"
	"github.com/oneclientcore/runtime/internal/observability"
	"github.com/oneclientcore/runtime/internal/provider"
	"github.com/oneclientcore/runtime/internal/security"
	"github.com/oneclientcore/runtime/internal/services"
)

// defaultTransactionLogBodyMaxSize bounds how many response-body bytes
// mapstd peeks when Config.LogHTTPTransactions is set.
const defaultTransactionLogBodyMaxSize = 2048

// Request is this module's decode of the perform-input the host supplies
// (spec.md §4.4). Unlike internal/exchange.PerformInputOk — which types
// map_security as a map[string]CallerSecurityValue purely for host-wire
// fidelity/documentation — MapSecurity here stays a generic hostvalue.Value,
// matching the shape internal/security.PrepareSecurityMap and this
// package's own JSON-schema validation already consume directly.
type Request struct {
	ProfileURL    string          `json:"profile_url"`
	ProviderURL   string          `json:"provider_url"`
	MapURL        string          `json:"map_url"`
	Usecase       string          `json:"usecase"`
	MapInput      hostvalue.Value `json:"map_input"`
	MapParameters hostvalue.Value `json:"map_parameters"`
	MapSecurity   hostvalue.Value `json:"map_security"`
}

// Run is core.PerformFunc's implementation: decode requestJSON as a
// Request, run the pipeline, and return the perform-output (or
// perform-output-exception) envelope bytes. The returned error is
// reserved for conditions the pipeline itself cannot represent as an
// envelope (there are none today — every expected failure mode, mapped
// or exceptional, is encoded in responseJSON); Run always returns a nil
// error in normal operation.
func Run(c *core.OneClientCore, requestJSON []byte) (responseJSON []byte, err error) {
	performID := uuid.NewString()
	log := c.Router.For("@developer/perform")
	log.Debugf("[%s] perform started", performID)

	metrics := observability.PerformMetricsInput{}
	responseJSON = runSteps(c, requestJSON, performID, log, &metrics)

	log.Debugf("[%s] perform finished: success=%v profile=%s provider=%s", performID, metrics.Success, metrics.Profile, metrics.Provider)
	c.Router.LogMetric(mustMarshalMetric(observability.NewPerformEvent(metrics)))

	return responseJSON, nil
}

func mustMarshalMetric(event any) []byte {
	data, err := observability.MarshalMetric(event)
	if err != nil {
		// Unreachable: PerformEvent is a plain, always-marshalable struct.
		panic(err)
	}
	return data
}

func exceptionBytes(code exchange.ExceptionCode, message string) []byte {
	return exchange.MustMarshal(exchange.NewPerformOutputExceptionRequest(code, message))
}

// runSteps implements the pipeline's 11 steps. metrics is filled in as
// far as the run progresses (spec.md §4.4: "partial metrics are
// acceptable" when a run ends in an exception before every field is
// known).
func runSteps(c *core.OneClientCore, requestJSON []byte, performID string, log *observability.Logger, metrics *observability.PerformMetricsInput) []byte {
	// Step 1: take input.
	var req Request
	if err := json.Unmarshal(requestJSON, &req); err != nil {
		return exceptionBytes(exchange.ExceptionInputError, fmt.Sprintf("decode perform input: %v", err))
	}

	metrics.Profile = profileIDFromURL(req.ProfileURL)
	metrics.Provider = providerIDFromURL(req.ProviderURL)

	// Step 2: cache profile, provider, map.
	if err := c.ProfileCache.Cache(req.ProfileURL, cache.NewProfileCacheEntry); err != nil {
		return exceptionBytes(exchange.ExceptionCacheLoadError, err.Error())
	}
	profileEntry, _ := c.ProfileCache.Get(req.ProfileURL)
	metrics.ProfileContentHash = profileEntry.ContentHash

	if err := c.ProviderCache.Cache(req.ProviderURL, cache.NewProviderJsonCacheEntry); err != nil {
		return exceptionBytes(exchange.ExceptionCacheLoadError, err.Error())
	}
	providerEntry, _ := c.ProviderCache.Get(req.ProviderURL)
	metrics.ProviderContentHash = providerEntry.ContentHash
	providerJSON := providerEntry.ProviderJSON

	mapFileName := basename(req.MapURL)
	if err := c.MapCache.Cache(req.MapURL, func(data []byte) (cache.MapCacheEntry, error) {
		return cache.NewMapCacheEntry(data, mapFileName)
	}); err != nil {
		return exceptionBytes(exchange.ExceptionCacheLoadError, err.Error())
	}
	mapEntry, _ := c.MapCache.Get(req.MapURL)
	metrics.MapContentHash = mapEntry.ContentHash

	// Step 3: map_input is already in the Value domain and is passed to the
	// map as decoded. No conversion or check is made: a
	// {"$HostValue::Stream": n} object in it decodes to a Stream-kind value
	// and reaches the map context as such.

	// Step 4: validate map_parameters.
	switch req.MapParameters.Kind() {
	case hostvalue.KindObject, hostvalue.KindNone:
	default:
		return exceptionBytes(exchange.ExceptionParametersFormatError, "map_parameters must be an object or absent")
	}
	if err := validateParameters(req.MapParameters); err != nil {
		return exceptionBytes(exchange.ExceptionJsonSchemaValidation, err.Error())
	}

	// Step 5: validate map_security.
	if err := validateSecurity(req.MapSecurity); err != nil {
		return exceptionBytes(exchange.ExceptionJsonSchemaValidation, err.Error())
	}

	// Step 6: merge parameters, caller wins per key.
	mergedParams := mergeParameters(providerJSON, req.MapParameters)

	// Step 7: build the security map.
	securityMap, err := security.PrepareSecurityMap(providerJSON, req.MapSecurity)
	if err != nil {
		return exceptionBytes(exchange.ExceptionPrepareSecurityMapError, err.Error())
	}

	// Step 8: build the services map.
	servicesValue, err := services.PrepareServicesMap(providerJSON, mergedParams)
	if err != nil {
		return exceptionBytes(exchange.ExceptionPrepareServicesMapError, err.Error())
	}

	// Step 9: construct the interpreter, install the map stdlib and
	// context, run the named use case.
	ms := mapstd.New(newFetcher(c.HTTPClient), mapstd.Config{
		LogHTTPTransactions:            c.Config.LogHTTPTransactions,
		LogHTTPTransactionsBodyMaxSize: defaultTransactionLogBodyMaxSize,
	})
	defer ms.CloseAllLeaked()

	contextValue := hostvalue.Object(map[string]hostvalue.Value{
		"input":      req.MapInput,
		"parameters": hostvalue.Object(mergedParams),
		"services":   servicesValue,
	})
	ms.SetContext(contextValue, &securityMap)

	interp := interpreter.New()
	handler := newMapExchangeHandler(ms)
	userLog := c.Router.For("@user/map")
	installErr := interpreter.InstallStdlib(interp, ms, handler.handle,
		func(message string) { userLog.Info(message) },
		func(args []string) { log.Debugf("[%s] printDebug: %v", performID, args) },
	)
	if installErr != nil {
		return exceptionBytes(exchange.ExceptionReplacementStdlibError, installErr.Error())
	}

	if err := interp.Evaluate(stdlibScriptName, stdlibSource); err != nil {
		return exceptionBytes(exchange.ExceptionReplacementStdlibError, err.Error())
	}

	if err := interp.Evaluate(mapEntry.FileName, mapEntry.Map); err != nil {
		return exceptionBytes(exchange.ExceptionMapInterpreterError, err.Error())
	}

	if _, err := interp.InvokeFunction("_start", req.Usecase); err != nil {
		return exceptionBytes(exchange.ExceptionMapInterpreterError, err.Error())
	}

	// Step 10: take the map's output.
	value, success, ok := ms.TakeOutput()
	if !ok {
		return exceptionBytes(exchange.ExceptionMissingOutputError, "map did not call set-output-success or set-output-failure")
	}
	// spec.md §7: "Mapped errors... Metric success = true (perform
	// completed cleanly; application-level failure)" — success here tracks
	// whether the perform pipeline itself completed, not whether the map's
	// own result was Ok or Err, so a mapped error (set-output-failure)
	// still reports Success = true. This reads as the opposite of what
	// sf_core.rs's `Send map_result.is_ok()` does; the spec's explicit
	// wording wins over the original's code.
	metrics.Success = true

	// Step 11 (emitting the metrics event itself happens in Run, after
	// runSteps returns, so it always fires exactly once regardless of
	// which return path above was taken).
	return exchange.MustMarshal(exchange.NewPerformOutputRequest(value, success))
}

// mergeParameters starts from the provider's defaulted parameters, then
// overlays the caller's map_parameters object, caller winning per key
// (spec.md §4.4 step 6).
func mergeParameters(p *provider.JSON, callerParams hostvalue.Value) map[string]hostvalue.Value {
	merged := make(map[string]hostvalue.Value, len(p.Parameters))
	for _, param := range p.Parameters {
		if param.Default != "" {
			merged[param.Name] = hostvalue.String(param.Default)
		}
	}
	if obj, ok := callerParams.Object(); ok {
		for k, v := range obj {
			merged[k] = v
		}
	}
	return merged
}

// httpClientFetcher adapts *http.Client to mapstd.Fetcher.
type httpClientFetcher struct {
	client *http.Client
}

func (f httpClientFetcher) Fetch(req *http.Request) (*http.Response, error) {
	return f.client.Do(req)
}

func newFetcher(client *http.Client) mapstd.Fetcher {
	if client == nil {
		client = http.DefaultClient
	}
	return httpClientFetcher{client: client}
}
