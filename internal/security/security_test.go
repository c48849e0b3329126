package security_test

import (
	"encoding/base64"
	"testing"

	"github.com/oneclientcore/runtime/internal/hostvalue"
	"github.com/oneclientcore/runtime/internal/provider"
	"github.com/oneclientcore/runtime/internal/security"
)

func apiKeyProvider(in provider.ApiKeyPlacement, name string, bodyType provider.ApiKeyBodyType) *provider.JSON {
	return &provider.JSON{
		SecuritySchemes: []provider.SecurityScheme{
			{Kind: provider.SecuritySchemeApiKey, ID: "key", In: in, Name: name, BodyType: bodyType},
		},
	}
}

func TestResolveApiKeyHeader(t *testing.T) {
	p := apiKeyProvider(provider.ApiKeyHeader, "X-API-KEY", "")
	mapSecurity := hostvalue.Object(map[string]hostvalue.Value{
		"key": hostvalue.Object(map[string]hostvalue.Value{"apikey": hostvalue.String("secret")}),
	})

	sm, err := security.PrepareSecurityMap(p, mapSecurity)
	if err != nil {
		t.Fatalf("PrepareSecurityMap: %v", err)
	}

	req := &security.HTTPRequest{URL: "http://example.com"}
	err = security.ResolveSecurity(sm, req, security.RequestSecurity{Strategy: security.StrategyFirstValid, IDs: []string{"key"}})
	if err != nil {
		t.Fatalf("ResolveSecurity: %v", err)
	}
	if got := req.Headers["X-API-KEY"]; len(got) != 1 || got[0] != "secret" {
		t.Errorf("Headers[X-API-KEY] = %v", got)
	}
}

func TestResolveApiKeyPath(t *testing.T) {
	p := apiKeyProvider(provider.ApiKeyPath, "token", "")
	mapSecurity := hostvalue.Object(map[string]hostvalue.Value{
		"key": hostvalue.Object(map[string]hostvalue.Value{"apikey": hostvalue.String("abc123")}),
	})
	sm, err := security.PrepareSecurityMap(p, mapSecurity)
	if err != nil {
		t.Fatalf("PrepareSecurityMap: %v", err)
	}

	req := &security.HTTPRequest{URL: "http://example.com/{token}/resource"}
	if err := security.ResolveSecurity(sm, req, security.RequestSecurity{Strategy: security.StrategyAll, IDs: []string{"key"}}); err != nil {
		t.Fatalf("ResolveSecurity: %v", err)
	}
	want := "http://example.com/abc123/resource"
	if req.URL != want {
		t.Errorf("URL = %q, want %q", req.URL, want)
	}
}

func TestResolveApiKeyBodyJSON(t *testing.T) {
	p := apiKeyProvider(provider.ApiKeyBody, "/credentials/key", provider.ApiKeyBodyTypeJSON)
	mapSecurity := hostvalue.Object(map[string]hostvalue.Value{
		"key": hostvalue.Object(map[string]hostvalue.Value{"apikey": hostvalue.String("zzz")}),
	})
	sm, err := security.PrepareSecurityMap(p, mapSecurity)
	if err != nil {
		t.Fatalf("PrepareSecurityMap: %v", err)
	}

	req := &security.HTTPRequest{URL: "http://example.com", Body: []byte(`{"credentials":{"key":"placeholder"}}`)}
	if err := security.ResolveSecurity(sm, req, security.RequestSecurity{Strategy: security.StrategyFirstValid, IDs: []string{"key"}}); err != nil {
		t.Fatalf("ResolveSecurity: %v", err)
	}
	want := `{"credentials":{"key":"zzz"}}`
	if string(req.Body) != want {
		t.Errorf("Body = %s, want %s", req.Body, want)
	}
}

func TestResolveHttpBasic(t *testing.T) {
	p := &provider.JSON{
		SecuritySchemes: []provider.SecurityScheme{
			{Kind: provider.SecuritySchemeHttp, ID: "basic", Scheme: provider.HttpSchemeBasic},
		},
	}
	mapSecurity := hostvalue.Object(map[string]hostvalue.Value{
		"basic": hostvalue.Object(map[string]hostvalue.Value{
			"username": hostvalue.String("user"),
			"password": hostvalue.String("pass"),
		}),
	})
	sm, err := security.PrepareSecurityMap(p, mapSecurity)
	if err != nil {
		t.Fatalf("PrepareSecurityMap: %v", err)
	}

	req := &security.HTTPRequest{URL: "http://example.com"}
	if err := security.ResolveSecurity(sm, req, security.RequestSecurity{Strategy: security.StrategyFirstValid, IDs: []string{"basic"}}); err != nil {
		t.Fatalf("ResolveSecurity: %v", err)
	}
	want := "Basic " + base64.StdEncoding.EncodeToString([]byte("user:pass"))
	if got := req.Headers["Authorization"]; len(got) != 1 || got[0] != want {
		t.Errorf("Headers[Authorization] = %v, want [%q]", got, want)
	}
}

func TestPrepareSecurityMapMissingValueRecordedInline(t *testing.T) {
	p := apiKeyProvider(provider.ApiKeyHeader, "X-API-KEY", "")
	sm, err := security.PrepareSecurityMap(p, hostvalue.Object(nil))
	if err != nil {
		t.Fatalf("PrepareSecurityMap should not fail outright on a missing value: %v", err)
	}

	req := &security.HTTPRequest{URL: "http://example.com"}
	err = security.ResolveSecurity(sm, req, security.RequestSecurity{Strategy: security.StrategyFirstValid, IDs: []string{"key"}})
	if err == nil {
		t.Fatal("ResolveSecurity: expected error for unresolved scheme")
	}
}

func TestPrepareSecurityMapMisconfiguredValue(t *testing.T) {
	p := apiKeyProvider(provider.ApiKeyHeader, "X-API-KEY", "")
	mapSecurity := hostvalue.Object(map[string]hostvalue.Value{
		"key": hostvalue.Object(map[string]hostvalue.Value{"token": hostvalue.String("wrong-shape")}),
	})
	_, err := security.PrepareSecurityMap(p, mapSecurity)
	if err == nil {
		t.Fatal("PrepareSecurityMap: expected error for wrong credential shape")
	}
}

func TestResolveSecurityFirstValidFallsThrough(t *testing.T) {
	p := &provider.JSON{
		SecuritySchemes: []provider.SecurityScheme{
			{Kind: provider.SecuritySchemeApiKey, ID: "primary", In: provider.ApiKeyHeader, Name: "X-PRIMARY"},
			{Kind: provider.SecuritySchemeApiKey, ID: "fallback", In: provider.ApiKeyHeader, Name: "X-FALLBACK"},
		},
	}
	mapSecurity := hostvalue.Object(map[string]hostvalue.Value{
		"fallback": hostvalue.Object(map[string]hostvalue.Value{"apikey": hostvalue.String("v")}),
	})
	sm, err := security.PrepareSecurityMap(p, mapSecurity)
	if err != nil {
		t.Fatalf("PrepareSecurityMap: %v", err)
	}

	req := &security.HTTPRequest{URL: "http://example.com"}
	err = security.ResolveSecurity(sm, req, security.RequestSecurity{
		Strategy: security.StrategyFirstValid,
		IDs:      []string{"primary", "fallback"},
	})
	if err != nil {
		t.Fatalf("ResolveSecurity: %v", err)
	}
	if got := req.Headers["X-FALLBACK"]; len(got) != 1 || got[0] != "v" {
		t.Errorf("Headers[X-FALLBACK] = %v", got)
	}
}
