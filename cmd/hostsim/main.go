// Command hostsim is the native CLI host: it drives internal/core directly
// (no WASM boundary to cross, unlike cmd/core's wasip1 reactor build),
// backed by internal/hostio.ReferenceHost for outbound HTTP and local file
// access. It runs a single perform request from a JSON file, or fans the
// same request out across internal/bench's worker pool for a quick load
// test.
//
// Grounded on the teacher's main.go startup sequence (flags -> logger ->
// configuration -> subsystem construction -> run -> summary), using the
// standard library's flag package the same way, rather than reaching for a
// CLI framework none of the example repos import.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/oneclientcore/runtime/internal/bench"
	"github.com/oneclientcore/runtime/internal/core"
	"github.com/oneclientcore/runtime/internal/exchange"
	"github.com/oneclientcore/runtime/internal/hostio"
	"github.com/oneclientcore/runtime/internal/perform"
)

func main() {
	// ── Flags ──────────────────────────────────────────────────────────────
	requestFile := flag.String("request", "", "Path to a perform-input JSON file (profile_url/provider_url/map_url/usecase/map_input/map_parameters/map_security)")
	benchCount := flag.Int("bench", 1, "Number of times to repeat -request concurrently")
	workers := flag.Int("workers", 1, "Worker goroutines for -bench > 1")
	showMetrics := flag.Bool("metrics", false, "Print buffered metric events after running")
	showDump := flag.Bool("dump", false, "Print the developer-dump buffer after running")
	simulateExchange := flag.Bool("simulate-exchange", false, "Route the perform through an in-process exchange.Dispatcher instead of calling core.Perform directly, exercising the same perform-input/perform-output protocol cmd/core's wasip1 build uses")
	flag.Parse()

	if *requestFile == "" {
		fmt.Fprintln(os.Stderr, "hostsim: -request is required")
		flag.Usage()
		os.Exit(2)
	}

	requestJSON, err := os.ReadFile(*requestFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "hostsim: read %q: %v\n", *requestFile, err)
		os.Exit(1)
	}

	host, err := hostio.NewReferenceHost(hostio.DefaultConfig())
	if err != nil {
		fmt.Fprintf(os.Stderr, "hostsim: create reference host: %v\n", err)
		os.Exit(1)
	}
	defer host.Close()

	core.Setup(host.HTTPClient(), hostio.OpenFile, perform.Run)
	defer core.Teardown()

	runOne := directRunner
	if *simulateExchange {
		runOne = simulatedExchangeRunner
	}

	if *benchCount <= 1 {
		start := time.Now()
		resp, err := runOne(requestJSON)
		elapsed := time.Since(start)
		if err != nil {
			fmt.Fprintf(os.Stderr, "hostsim: perform failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("perform completed in %s\n%s\n", elapsed, resp)
	} else {
		requests := make([][]byte, *benchCount)
		for i := range requests {
			requests[i] = requestJSON
		}
		results := bench.Run(*workers, func(req []byte) ([]byte, error) { return runOne(req) }, requests)
		summary := bench.Summarize(results)
		fmt.Printf("total=%d succeeded=%d failed=%d mean=%s max=%s\n",
			summary.Total, summary.Succeeded, summary.Failed, summary.MeanLatency, summary.MaxLatency)
	}

	if *showMetrics {
		printEvents("metrics", core.GetMetrics())
	}
	if *showDump {
		printEvents("developer dump", core.GetDeveloperDump())
	}
}

// directRunner calls core.Perform directly: what almost every real host
// embedding this module natively (rather than through a WASM boundary)
// would actually do.
func directRunner(requestJSON []byte) ([]byte, error) {
	return core.Perform(requestJSON)
}

// simulatedExchangeRunner drives the same request through an
// exchange.Dispatcher registered with perform-input/perform-output/
// perform-output-exception handlers, the in-process analogue of the
// message_exchange round trip cmd/core's wasip1 build performs across the
// WASM boundary. Useful for exercising that protocol's envelope shapes and
// internal/perform's response codes without a compiled WASM binary.
func simulatedExchangeRunner(requestJSON []byte) ([]byte, error) {
	var req perform.Request
	if err := json.Unmarshal(requestJSON, &req); err != nil {
		return nil, fmt.Errorf("hostsim: decode perform request: %w", err)
	}

	var result []byte
	d := exchange.NewDispatcher()
	d.Register("perform-input", func([]byte) ([]byte, error) {
		securityMap, err := decodeCallerSecurity(req.MapSecurity)
		if err != nil {
			return nil, err
		}
		return exchange.MustMarshal(exchange.PerformInputOk{
			Kind:          "ok",
			ProfileURL:    req.ProfileURL,
			ProviderURL:   req.ProviderURL,
			MapURL:        req.MapURL,
			Usecase:       req.Usecase,
			MapInput:      req.MapInput,
			MapParameters: req.MapParameters,
			MapSecurity:   securityMap,
		}), nil
	})
	d.Register("perform-output", func(body []byte) ([]byte, error) {
		result = body
		return exchange.MustMarshal(exchange.PerformOutputAck{Kind: "ok"}), nil
	})
	d.Register("perform-output-exception", func(body []byte) ([]byte, error) {
		result = body
		return exchange.MustMarshal(exchange.PerformOutputAck{Kind: "ok"}), nil
	})

	// core.Perform still runs the pipeline by direct call (this module has
	// no compiled WASM artifact to load). The perform-input request and the
	// perform-output answer go through d.Dispatch, in the same envelopes
	// cmd/core's hostMessageExchange sends; document and HTTP fetches still
	// use the reference host directly.
	inputRaw := d.Dispatch(exchange.MustMarshal(exchange.NewPerformInputRequest()))
	input, err := exchange.DecodePerformInputResponse(inputRaw)
	if err != nil {
		return nil, err
	}
	roundTripped, err := json.Marshal(perform.Request{
		ProfileURL:    input.ProfileURL,
		ProviderURL:   input.ProviderURL,
		MapURL:        input.MapURL,
		Usecase:       input.Usecase,
		MapInput:      input.MapInput,
		MapParameters: input.MapParameters,
		MapSecurity:   req.MapSecurity,
	})
	if err != nil {
		return nil, err
	}

	responseJSON, err := core.Perform(roundTripped)
	if err != nil {
		return nil, err
	}
	d.Dispatch(responseJSON)
	return result, nil
}

// decodeCallerSecurity converts perform.Request's generic hostvalue.Value
// map_security field back into the host-wire map[string]CallerSecurityValue
// shape PerformInputOk documents, the inverse of cmd/core's
// encodePerformRequest.
func decodeCallerSecurity(v any) (map[string]exchange.CallerSecurityValue, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("hostsim: encode map_security: %w", err)
	}
	out := map[string]exchange.CallerSecurityValue{}
	if string(data) == "null" {
		return out, nil
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("hostsim: decode map_security: %w", err)
	}
	return out, nil
}

func printEvents(label string, events [][]byte) {
	fmt.Printf("--- %s (%d events) ---\n", label, len(events))
	for _, e := range events {
		fmt.Println(string(e))
	}
}
