package main

import (
	"encoding/base64"
	"encoding/json"
	"testing"

	"github.com/oneclientcore/runtime/internal/core"
	"github.com/oneclientcore/runtime/internal/exchange"
	"github.com/oneclientcore/runtime/internal/hostvalue"
	"github.com/oneclientcore/runtime/internal/perform"
)

func dataURL(body string) string {
	return "data:;base64," + base64.StdEncoding.EncodeToString([]byte(body))
}

const testProviderJSON = `{
	"name": "weather",
	"services": [{"id": "default", "baseUrl": "https://weather.example.com"}],
	"parameters": [{"name": "region", "default": "eu"}]
}`

const testMapSource = `
	function Lookup() {
		var ctx = std.unstable.takeContext().context;
		std.unstable.setOutputSuccess({region: ctx.parameters.region});
	}
`

func testRequestJSON(t *testing.T) []byte {
	t.Helper()
	req := perform.Request{
		ProfileURL:  dataURL("name = weather\nusecase Lookup safe { }"),
		ProviderURL: dataURL(testProviderJSON),
		MapURL:      dataURL(testMapSource),
		Usecase:     "Lookup",
	}
	data, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	return data
}

func decodeOkRegion(t *testing.T, responseJSON []byte) string {
	t.Helper()
	var out exchange.PerformOutputRequest
	if err := json.Unmarshal(responseJSON, &out); err != nil {
		t.Fatalf("decode perform-output: %v (body: %s)", err, responseJSON)
	}
	if out.Kind != "perform-output" {
		t.Fatalf("kind = %q, want perform-output (body: %s)", out.Kind, responseJSON)
	}
	if out.MapResult.Ok == nil {
		t.Fatalf("MapResult.Ok is nil (body: %s)", responseJSON)
	}
	obj, ok := out.MapResult.Ok.Object()
	if !ok {
		t.Fatalf("Ok value is not an object: %+v", out.MapResult.Ok)
	}
	region, _ := obj["region"].String()
	return region
}

func TestDirectRunnerAndSimulatedExchangeRunnerAgree(t *testing.T) {
	core.Setup(nil, func(string) ([]byte, error) { return nil, nil }, perform.Run)
	defer core.Teardown()

	reqJSON := testRequestJSON(t)

	directResp, err := directRunner(reqJSON)
	if err != nil {
		t.Fatalf("directRunner: %v", err)
	}
	if region := decodeOkRegion(t, directResp); region != "eu" {
		t.Errorf("directRunner region = %q, want %q", region, "eu")
	}

	simResp, err := simulatedExchangeRunner(reqJSON)
	if err != nil {
		t.Fatalf("simulatedExchangeRunner: %v", err)
	}
	if region := decodeOkRegion(t, simResp); region != "eu" {
		t.Errorf("simulatedExchangeRunner region = %q, want %q", region, "eu")
	}
}

func TestSimulatedExchangeRunnerPropagatesMappedFailure(t *testing.T) {
	core.Setup(nil, func(string) ([]byte, error) { return nil, nil }, perform.Run)
	defer core.Teardown()

	req := perform.Request{
		ProfileURL:  dataURL("name = weather\nusecase Lookup safe { }"),
		ProviderURL: dataURL(testProviderJSON),
		MapURL: dataURL(`
			function Lookup() {
				std.unstable.setOutputFailure({reason: "not found"});
			}
		`),
		Usecase: "Lookup",
	}
	reqJSON, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}

	respJSON, err := simulatedExchangeRunner(reqJSON)
	if err != nil {
		t.Fatalf("simulatedExchangeRunner: %v", err)
	}

	var out exchange.PerformOutputRequest
	if err := json.Unmarshal(respJSON, &out); err != nil {
		t.Fatalf("decode perform-output: %v (body: %s)", err, respJSON)
	}
	if out.MapResult.Err == nil {
		t.Fatalf("MapResult.Err is nil (body: %s)", respJSON)
	}
	obj, _ := out.MapResult.Err.Object()
	reason, _ := obj["reason"].String()
	if reason != "not found" {
		t.Errorf("reason = %q, want %q", reason, "not found")
	}
}

func TestDecodeCallerSecurity(t *testing.T) {
	apikey := "secret123"
	value := hostvalue.Object(map[string]hostvalue.Value{
		"basic": hostvalue.Object(map[string]hostvalue.Value{
			"apikey": hostvalue.String(apikey),
		}),
	})

	got, err := decodeCallerSecurity(value)
	if err != nil {
		t.Fatalf("decodeCallerSecurity: %v", err)
	}
	entry, ok := got["basic"]
	if !ok {
		t.Fatalf("missing %q entry: %+v", "basic", got)
	}
	if entry.ApiKey == nil || *entry.ApiKey != apikey {
		t.Errorf("ApiKey = %v, want %q", entry.ApiKey, apikey)
	}
}

func TestDecodeCallerSecurityNone(t *testing.T) {
	got, err := decodeCallerSecurity(hostvalue.None)
	if err != nil {
		t.Fatalf("decodeCallerSecurity: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("got %d entries, want 0: %+v", len(got), got)
	}
}
