package observability

import (
	"encoding/json"
	"fmt"
	"runtime"
	"time"
)

// timestamp returns an RFC-3339 millisecond timestamp, matching metrics.rs's
// chrono::Utc::now().to_rfc3339_opts(SecondsFormat::Millis, true).
func timestamp() string {
	return time.Now().UTC().Format("2006-01-02T15:04:05.000Z")
}

// SdkInitEvent is emitted once per oneclient_core_setup. Grounded on
// metrics.rs's Event::SdkInit / SdkInitData / SdkInitDataConfiguration.
type SdkInitEvent struct {
	EventType         string      `json:"event_type"`
	OccurredAt        string      `json:"occurred_at"`
	ConfigurationHash *string     `json:"configuration_hash"`
	Data              sdkInitData `json:"data"`
}

type sdkInitData struct {
	Configuration sdkInitConfiguration `json:"configuration"`
}

type sdkInitConfiguration struct {
	Profiles map[string]any `json:"profiles"`
}

// NewSdkInitEvent records which profiles the core was configured with.
func NewSdkInitEvent(profiles []string) SdkInitEvent {
	known := make(map[string]any, len(profiles))
	for _, p := range profiles {
		known[p] = nil
	}
	return SdkInitEvent{
		EventType:  "SDKInit",
		OccurredAt: timestamp(),
		Data:       sdkInitData{Configuration: sdkInitConfiguration{Profiles: known}},
	}
}

// PerformEvent is emitted once per perform. Grounded on metrics.rs's
// Event::Metrics / MetricsData / MetricsDataEntry::PerformMetrics, enriched
// per SPEC_FULL.md with the content hashes the macro accepted as arguments
// but never actually recorded in the upstream struct.
type PerformEvent struct {
	EventType         string           `json:"event_type"`
	OccurredAt        string           `json:"occurred_at"`
	ConfigurationHash *string          `json:"configuration_hash"`
	Data              performEventData `json:"data"`
}

type performEventData struct {
	From    string                  `json:"from"`
	To      string                  `json:"to"`
	Metrics [1]performMetricsEntry  `json:"metrics"`
}

type performMetricsEntry struct {
	Type                string `json:"type"`
	Profile             string `json:"profile"`
	Provider            string `json:"provider"`
	SuccessfulPerforms  int    `json:"successful_performs"`
	FailedPerforms      int    `json:"failed_performs"`
	ProfileContentHash  string `json:"profile_content_hash,omitempty"`
	ProviderContentHash string `json:"provider_content_hash,omitempty"`
	MapContentHash      string `json:"map_content_hash,omitempty"`
}

// PerformMetricsInput names the fields NewPerformEvent needs to describe one
// completed perform.
type PerformMetricsInput struct {
	Success             bool
	Profile             string
	Provider            string
	ProfileContentHash  string
	ProviderContentHash string
	MapContentHash      string
}

// NewPerformEvent records the outcome of one perform call.
func NewPerformEvent(in PerformMetricsInput) PerformEvent {
	now := timestamp()
	entry := performMetricsEntry{
		Type:                "PerformMetrics",
		Profile:             in.Profile,
		Provider:            in.Provider,
		ProfileContentHash:  in.ProfileContentHash,
		ProviderContentHash: in.ProviderContentHash,
		MapContentHash:      in.MapContentHash,
	}
	if in.Success {
		entry.SuccessfulPerforms = 1
	} else {
		entry.FailedPerforms = 1
	}
	return PerformEvent{
		EventType:  "Metrics",
		OccurredAt: now,
		Data:       performEventData{From: now, To: now, Metrics: [1]performMetricsEntry{entry}},
	}
}

// PanicLocation is the source position a recovered panic occurred at,
// captured via runtime.Caller the way the original's panic hook captures
// Location from the Rust std panic hook (SPEC_FULL.md domain-stack
// supplement 5).
type PanicLocation struct {
	File   string `json:"file"`
	Line   int    `json:"line"`
	Column int    `json:"column"`
}

// PanicEvent describes a recovered panic. Grounded on metrics.rs's
// Event::Panic / PanicData. Neither the core singleton nor cmd/core builds
// or logs one when a perform panics.
type PanicEvent struct {
	EventType  string         `json:"event_type"`
	OccurredAt string         `json:"occurred_at"`
	Data       panicEventData `json:"data"`
}

type panicEventData struct {
	Message  string         `json:"message"`
	Location *PanicLocation `json:"location,omitempty"`
}

// NewPanicEvent records a recovered panic's message and, when available
// (skip depth matching the recover site), its source location.
func NewPanicEvent(message string, skip int) PanicEvent {
	var loc *PanicLocation
	if _, file, line, ok := runtime.Caller(skip); ok {
		loc = &PanicLocation{File: file, Line: line}
	}
	return PanicEvent{
		EventType:  "Panic",
		OccurredAt: timestamp(),
		Data:       panicEventData{Message: message, Location: loc},
	}
}

// MarshalMetric JSON-encodes any of the above event types for LogMetric.
func MarshalMetric(event any) ([]byte, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("observability: marshal metric event: %w", err)
	}
	return data, nil
}
