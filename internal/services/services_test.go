package services_test

import (
	"testing"

	"github.com/oneclientcore/runtime/internal/hostvalue"
	"github.com/oneclientcore/runtime/internal/provider"
	"github.com/oneclientcore/runtime/internal/services"
)

func strParams(pairs ...string) map[string]hostvalue.Value {
	m := make(map[string]hostvalue.Value, len(pairs)/2)
	for i := 0; i < len(pairs); i += 2 {
		m[pairs[i]] = hostvalue.String(pairs[i+1])
	}
	return m
}

// TestParamsReplacing mirrors original_source's services::test::test_params_replacing.
func TestParamsReplacing(t *testing.T) {
	p := &provider.JSON{
		Services: []provider.Service{
			{ID: "svc", BaseURL: "http://{ONE}.localhost/{ TWO}/{THREE }/{ FOUR }"},
		},
	}
	params := strParams("ONE", "first", "TWO", "second", "THREE", "third", "FOUR", "fourth")

	got, err := services.PrepareServicesMap(p, params)
	if err != nil {
		t.Fatalf("PrepareServicesMap: %v", err)
	}
	obj, _ := got.Object()
	url, _ := obj["svc"].String()
	want := "http://first.localhost/second/third/fourth"
	if url != want {
		t.Errorf("url = %q, want %q", url, want)
	}
}

// TestParamsReplacingWrongParams mirrors
// original_source's services::test::test_params_replacing_wrong_params.
func TestParamsReplacingWrongParams(t *testing.T) {
	p := &provider.JSON{
		Services: []provider.Service{
			{ID: "svc", BaseURL: "http://{ONE}.localhost/{ TWO}/{THREE }/{ FOUR }"},
		},
	}
	params := map[string]hostvalue.Value{
		"ONE":   hostvalue.String("first"),
		"TWO":   hostvalue.String("second"),
		"THREE": hostvalue.None,
	}

	_, err := services.PrepareServicesMap(p, params)
	if err == nil {
		t.Fatal("PrepareServicesMap: expected error")
	}
	misconfigured, ok := err.(*services.PrepareServicesMapError)
	if !ok {
		t.Fatalf("error type = %T, want *services.PrepareServicesMapError", err)
	}
	if len(misconfigured.Errors) != 2 {
		t.Fatalf("len(Errors) = %d, want 2: %v", len(misconfigured.Errors), misconfigured.Errors)
	}
	if misconfigured.Errors[0].ID != "svc" || misconfigured.Errors[1].ID != "svc" {
		t.Errorf("Errors = %+v, want both ID=svc", misconfigured.Errors)
	}
}
