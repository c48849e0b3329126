package exchange_test

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/oneclientcore/runtime/internal/exchange"
	"github.com/oneclientcore/runtime/internal/hostvalue"
)

func TestDecodePerformInputResponseOk(t *testing.T) {
	resp := exchange.PerformInputOk{
		Kind:        "ok",
		ProfileURL:  "file://quz.profile",
		ProviderURL: "file://quz.provider.json",
		MapURL:      "registry://quz.usecase",
		Usecase:     "TestCase",
		MapInput:    hostvalue.String("hello"),
		MapParameters: hostvalue.Object(map[string]hostvalue.Value{
			"token": hostvalue.String("abc"),
		}),
		MapSecurity: map[string]exchange.CallerSecurityValue{},
	}
	data, err := json.Marshal(resp)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	decoded, err := exchange.DecodePerformInputResponse(data)
	if err != nil {
		t.Fatalf("DecodePerformInputResponse: %v", err)
	}
	if decoded.Usecase != "TestCase" || decoded.ProfileURL != "file://quz.profile" {
		t.Errorf("decoded = %+v", decoded)
	}
}

func TestDecodePerformInputResponseErr(t *testing.T) {
	data := []byte(`{"kind":"err","error":"no active perform"}`)
	_, err := exchange.DecodePerformInputResponse(data)
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestDecodePerformInputResponseUnknownKind(t *testing.T) {
	data := []byte(`{"kind":"weird"}`)
	_, err := exchange.DecodePerformInputResponse(data)
	if err == nil {
		t.Fatal("expected error for unknown kind")
	}
}

func TestNewPerformOutputRequestExactlyOneSet(t *testing.T) {
	ok := exchange.NewPerformOutputRequest(hostvalue.String("done"), true)
	if ok.MapResult.Ok == nil || ok.MapResult.Err != nil {
		t.Errorf("success case should set Ok only, got %+v", ok.MapResult)
	}

	failed := exchange.NewPerformOutputRequest(hostvalue.String("bad"), false)
	if failed.MapResult.Err == nil || failed.MapResult.Ok != nil {
		t.Errorf("failure case should set Err only, got %+v", failed.MapResult)
	}
}

func TestDecodePerformOutputAck(t *testing.T) {
	if err := exchange.DecodePerformOutputAck([]byte(`{"kind":"ok"}`)); err != nil {
		t.Errorf("expected nil error for ok ack, got %v", err)
	}
	if err := exchange.DecodePerformOutputAck([]byte(`{"kind":"err","error":"bad shape"}`)); err == nil {
		t.Error("expected error for err ack")
	}
}

func TestMapNetworkErrorCode(t *testing.T) {
	cases := map[string]exchange.HttpCallErrorCode{
		"NetworkInvalidUrl":        exchange.HttpCallErrorInvalidURL,
		"NetworkConnectionRefused": exchange.HttpCallErrorConnectionRefused,
		"NetworkHostNotFound":      exchange.HttpCallErrorHostNotFound,
		"NetworkError":             exchange.HttpCallErrorUnknown,
		"NetworkInvalidHandle":     exchange.HttpCallErrorUnknown,
		"SomethingElse":            exchange.HttpCallErrorUnknown,
	}
	for wire, want := range cases {
		if got := exchange.MapNetworkErrorCode(wire); got != want {
			t.Errorf("MapNetworkErrorCode(%q) = %v, want %v", wire, got, want)
		}
	}
}

func TestDispatcherUnknownKindFallback(t *testing.T) {
	d := exchange.NewDispatcher()
	d.Register("perform-input", func(requestJSON []byte) ([]byte, error) {
		return exchange.MustMarshal(exchange.PerformInputOk{Kind: "ok"}), nil
	})

	resp := d.Dispatch([]byte(`{"kind":"nonexistent"}`))
	kind, err := exchange.PeekKind(resp)
	if err != nil {
		t.Fatalf("PeekKind: %v", err)
	}
	if kind != "err" {
		t.Errorf("kind = %q, want err", kind)
	}
}

func TestDispatcherRoutesRegisteredHandler(t *testing.T) {
	d := exchange.NewDispatcher()
	d.Register("perform-input", func(requestJSON []byte) ([]byte, error) {
		return exchange.MustMarshal(exchange.PerformInputOk{Kind: "ok", Usecase: "Foo"}), nil
	})

	resp := d.Dispatch([]byte(`{"kind":"perform-input"}`))
	decoded, err := exchange.DecodePerformInputResponse(resp)
	if err != nil {
		t.Fatalf("DecodePerformInputResponse: %v", err)
	}
	if decoded.Usecase != "Foo" {
		t.Errorf("Usecase = %q, want Foo", decoded.Usecase)
	}
}

func TestDispatcherHandlerErrorFoldsToErrResponse(t *testing.T) {
	d := exchange.NewDispatcher()
	d.Register("perform-input", func(requestJSON []byte) ([]byte, error) {
		return nil, errors.New("backing store unavailable")
	})

	resp := d.Dispatch([]byte(`{"kind":"perform-input"}`))
	kind, err := exchange.PeekKind(resp)
	if err != nil {
		t.Fatalf("PeekKind: %v", err)
	}
	if kind != "err" {
		t.Errorf("kind = %q, want err", kind)
	}
}
