package perform_test

import (
	"encoding/base64"
	"encoding/json"
	"testing"

	"github.com/oneclientcore/runtime/internal/cache"
	"github.com/oneclientcore/runtime/internal/config"
	"github.com/oneclientcore/runtime/internal/core"
	"github.com/oneclientcore/runtime/internal/exchange"
	"github.com/oneclientcore/runtime/internal/observability"
	"github.com/oneclientcore/runtime/internal/perform"
)

func dataURL(body string) string {
	return "data:;base64," + base64.StdEncoding.EncodeToString([]byte(body))
}

const providerJSON = `{
	"name": "weather",
	"services": [{"id": "default", "baseUrl": "https://weather.example.com"}],
	"parameters": [{"name": "region", "default": "eu"}]
}`

func newTestCore() *core.OneClientCore {
	metricsBuf := observability.NewSharedEventBuffer(observability.NewLinearEventBuffer())
	dumpBuf := observability.NewSharedEventBuffer(observability.NewRingEventBuffer(64))
	router := observability.NewRouter(metricsBuf, dumpBuf)

	noFile := func(path string) ([]byte, error) { return nil, nil }

	return &core.OneClientCore{
		Config:        config.CoreConfiguration{},
		Router:        router,
		MetricsBuffer: metricsBuf,
		DumpBuffer:    dumpBuf,
		ProfileCache:  cache.New[cache.ProfileCacheEntry](0, nil, "test", nil, noFile),
		ProviderCache: cache.New[cache.ProviderJsonCacheEntry](0, nil, "test", nil, noFile),
		MapCache:      cache.New[cache.MapCacheEntry](0, nil, "test", nil, noFile),
		HTTPClient:    nil,
	}
}

func request(t *testing.T, mapSource string) []byte {
	t.Helper()
	req := perform.Request{
		ProfileURL:  dataURL("name = weather\nusecase Lookup safe { }"),
		ProviderURL: dataURL(providerJSON),
		MapURL:      dataURL(mapSource),
		Usecase:     "Lookup",
	}
	data, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	return data
}

func decodeOutput(t *testing.T, responseJSON []byte) exchange.PerformOutputRequest {
	t.Helper()
	var out exchange.PerformOutputRequest
	if err := json.Unmarshal(responseJSON, &out); err != nil {
		t.Fatalf("decode perform-output: %v (body: %s)", err, responseJSON)
	}
	if out.Kind != "perform-output" {
		t.Fatalf("kind = %q, want perform-output (body: %s)", out.Kind, responseJSON)
	}
	return out
}

func decodeException(t *testing.T, responseJSON []byte) exchange.PerformOutputExceptionRequest {
	t.Helper()
	var out exchange.PerformOutputExceptionRequest
	if err := json.Unmarshal(responseJSON, &out); err != nil {
		t.Fatalf("decode perform-output-exception: %v (body: %s)", err, responseJSON)
	}
	if out.Kind != "perform-output-exception" {
		t.Fatalf("kind = %q, want perform-output-exception (body: %s)", out.Kind, responseJSON)
	}
	return out
}

func TestRunSuccessPath(t *testing.T) {
	c := newTestCore()
	mapSource := `
		function Lookup() {
			var ctx = std.unstable.takeContext().context;
			std.unstable.setOutputSuccess({region: ctx.parameters.region});
		}
	`

	responseJSON, err := perform.Run(c, request(t, mapSource))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	out := decodeOutput(t, responseJSON)
	if out.MapResult.Err != nil {
		t.Fatalf("got mapped error: %+v", out.MapResult.Err)
	}
	if out.MapResult.Ok == nil {
		t.Fatal("MapResult.Ok is nil")
	}
	obj, ok := out.MapResult.Ok.Object()
	if !ok {
		t.Fatalf("Ok value is not an object: %+v", out.MapResult.Ok)
	}
	region, _ := obj["region"].String()
	if region != "eu" {
		t.Errorf("region = %q, want %q (provider default should flow through parameters)", region, "eu")
	}
}

func TestRunMappedFailureIsNotAnException(t *testing.T) {
	c := newTestCore()
	mapSource := `
		function Lookup() {
			std.unstable.setOutputFailure({reason: "not found"});
		}
	`

	responseJSON, err := perform.Run(c, request(t, mapSource))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	out := decodeOutput(t, responseJSON)
	if out.MapResult.Ok != nil {
		t.Fatalf("got Ok, want Err: %+v", out.MapResult.Ok)
	}
	if out.MapResult.Err == nil {
		t.Fatal("MapResult.Err is nil")
	}
	obj, _ := out.MapResult.Err.Object()
	reason, _ := obj["reason"].String()
	if reason != "not found" {
		t.Errorf("reason = %q, want %q", reason, "not found")
	}
}

func TestRunInputErrorException(t *testing.T) {
	c := newTestCore()

	responseJSON, err := perform.Run(c, []byte(`not json`))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	out := decodeException(t, responseJSON)
	if out.ErrorCode != exchange.ExceptionInputError {
		t.Errorf("ErrorCode = %q, want %q", out.ErrorCode, exchange.ExceptionInputError)
	}
}

func TestRunMapInterpreterErrorException(t *testing.T) {
	c := newTestCore()
	mapSource := `
		function Lookup() {
			throw new Error("boom");
		}
	`

	responseJSON, err := perform.Run(c, request(t, mapSource))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	out := decodeException(t, responseJSON)
	if out.ErrorCode != exchange.ExceptionMapInterpreterError {
		t.Errorf("ErrorCode = %q, want %q", out.ErrorCode, exchange.ExceptionMapInterpreterError)
	}
}

func TestRunMissingOutputException(t *testing.T) {
	c := newTestCore()
	mapSource := `
		function Lookup() {
			// never calls setOutputSuccess/setOutputFailure
		}
	`

	responseJSON, err := perform.Run(c, request(t, mapSource))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	out := decodeException(t, responseJSON)
	if out.ErrorCode != exchange.ExceptionMissingOutputError {
		t.Errorf("ErrorCode = %q, want %q", out.ErrorCode, exchange.ExceptionMissingOutputError)
	}
}

func TestRunParametersFormatErrorException(t *testing.T) {
	c := newTestCore()
	mapSource := `function Lookup() { std.unstable.setOutputSuccess(1); }`

	req := perform.Request{
		ProfileURL:  dataURL("name = weather"),
		ProviderURL: dataURL(providerJSON),
		MapURL:      dataURL(mapSource),
		Usecase:     "Lookup",
	}
	// map_parameters must decode to an object or be absent; an array
	// violates that shape before JSON Schema is even consulted.
	data, err := json.Marshal(map[string]any{
		"profile_url":    req.ProfileURL,
		"provider_url":   req.ProviderURL,
		"map_url":        req.MapURL,
		"usecase":        req.Usecase,
		"map_parameters": []int{1, 2, 3},
	})
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}

	responseJSON, runErr := perform.Run(c, data)
	if runErr != nil {
		t.Fatalf("Run: %v", runErr)
	}

	out := decodeException(t, responseJSON)
	if out.ErrorCode != exchange.ExceptionParametersFormatError {
		t.Errorf("ErrorCode = %q, want %q", out.ErrorCode, exchange.ExceptionParametersFormatError)
	}
}

func TestRunEmitsMetricsRegardlessOfOutcome(t *testing.T) {
	c := newTestCore()
	mapSource := `function Lookup() { std.unstable.setOutputSuccess(1); }`

	if _, err := perform.Run(c, request(t, mapSource)); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if _, err := perform.Run(c, []byte(`not json`)); err != nil {
		t.Fatalf("Run: %v", err)
	}

	events := c.MetricsBuffer.Events()
	if len(events) != 2 {
		t.Fatalf("got %d metric events, want 2 (one per perform, success and exception alike)", len(events))
	}
}
