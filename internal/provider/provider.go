// Package provider decodes provider.json descriptor documents: the set of
// services (base URLs), security schemes, and integration parameters a
// provider exposes, as consumed by internal/security and internal/services
// during perform setup (spec.md §4.2, §4.3).
package provider

import (
	"encoding/json"
	"fmt"
)

// JSON is the top-level provider descriptor, grounded on
// host_to_core_std/src/unstable/provider.rs's ProviderJson.
type JSON struct {
	Name            string               `json:"name"`
	Services        []Service            `json:"services"`
	SecuritySchemes []SecurityScheme     `json:"securitySchemes,omitempty"`
	Parameters      []IntegrationParameter `json:"parameters,omitempty"`
	DefaultService  string               `json:"defaultService,omitempty"`
}

// Service is a named base URL a map can address via ServiceId in its
// perform input (spec.md §4.3, internal/services).
type Service struct {
	ID      string `json:"id"`
	BaseURL string `json:"baseUrl"`
}

// IntegrationParameter describes a caller-suppliable named value with an
// optional default, used for URL templating (internal/services).
type IntegrationParameter struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Default     string `json:"default,omitempty"`
}

// ApiKeyPlacement is where an API key security value is inserted.
type ApiKeyPlacement string

const (
	ApiKeyHeader ApiKeyPlacement = "header"
	ApiKeyBody   ApiKeyPlacement = "body"
	ApiKeyPath   ApiKeyPlacement = "path"
	ApiKeyQuery  ApiKeyPlacement = "query"
)

// ApiKeyBodyType names the serialization of a body-placed API key. Only
// "json" is defined today.
type ApiKeyBodyType string

const ApiKeyBodyTypeJSON ApiKeyBodyType = "json"

// HttpScheme is the "scheme" discriminant of an http-type security scheme.
type HttpScheme string

const (
	HttpSchemeBasic  HttpScheme = "basic"
	HttpSchemeBearer HttpScheme = "bearer"
	HttpSchemeDigest HttpScheme = "digest"
)

// SecuritySchemeKind discriminates the SecurityScheme tagged union.
type SecuritySchemeKind uint8

const (
	SecuritySchemeApiKey SecuritySchemeKind = iota
	SecuritySchemeHttp
)

// SecurityScheme is the tagged union { "type": "apikey" | "http", ... },
// grounded on provider.rs's SecurityScheme/HttpSecurity enums. Go has no
// native tagged unions, so unlike a direct translation we flatten both
// variants' fields into one struct and discriminate on Kind, in the same
// style the teacher's jschallenge package uses plain structs with a
// state field rather than attempting an enum simulation.
type SecurityScheme struct {
	Kind SecuritySchemeKind

	// Common to both ApiKey and Http (Basic/Bearer).
	ID string

	// ApiKey fields.
	In       ApiKeyPlacement
	Name     string
	BodyType ApiKeyBodyType

	// Http fields.
	Scheme       HttpScheme
	BearerFormat string
}

type securitySchemeWire struct {
	Type         string          `json:"type"`
	ID           string          `json:"id"`
	In           ApiKeyPlacement `json:"in,omitempty"`
	Name         string          `json:"name,omitempty"`
	BodyType     ApiKeyBodyType  `json:"bodyType,omitempty"`
	Scheme       HttpScheme      `json:"scheme,omitempty"`
	BearerFormat string          `json:"bearerFormat,omitempty"`
}

// UnmarshalJSON decodes the {"type": "apikey"|"http", ...} tagged union.
func (s *SecurityScheme) UnmarshalJSON(data []byte) error {
	var wire securitySchemeWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return fmt.Errorf("provider: decode security scheme: %w", err)
	}

	switch wire.Type {
	case "apikey":
		*s = SecurityScheme{
			Kind:     SecuritySchemeApiKey,
			ID:       wire.ID,
			In:       wire.In,
			Name:     wire.Name,
			BodyType: wire.BodyType,
		}
	case "http":
		*s = SecurityScheme{
			Kind:         SecuritySchemeHttp,
			ID:           wire.ID,
			Scheme:       wire.Scheme,
			BearerFormat: wire.BearerFormat,
		}
	default:
		return fmt.Errorf("provider: unknown security scheme type %q", wire.Type)
	}
	return nil
}

// MarshalJSON encodes back into the tagged union shape.
func (s SecurityScheme) MarshalJSON() ([]byte, error) {
	switch s.Kind {
	case SecuritySchemeApiKey:
		return json.Marshal(securitySchemeWire{
			Type:     "apikey",
			ID:       s.ID,
			In:       s.In,
			Name:     s.Name,
			BodyType: s.BodyType,
		})
	case SecuritySchemeHttp:
		return json.Marshal(securitySchemeWire{
			Type:         "http",
			ID:           s.ID,
			Scheme:       s.Scheme,
			BearerFormat: s.BearerFormat,
		})
	default:
		return nil, fmt.Errorf("provider: unknown security scheme kind %d", s.Kind)
	}
}

// Parse decodes a provider.json document.
func Parse(data []byte) (*JSON, error) {
	var p JSON
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("provider: parse: %w", err)
	}
	return &p, nil
}

// ServiceByID returns the service with the given id, or the default
// service when id is empty, per spec.md §4.3's ServiceId resolution rule.
func (p *JSON) ServiceByID(id string) (Service, bool) {
	if id == "" {
		id = p.DefaultService
	}
	for _, s := range p.Services {
		if s.ID == id {
			return s, true
		}
	}
	return Service{}, false
}

// SecuritySchemeByID returns the named security scheme, used by
// internal/security when resolving a map's requested security ids.
func (p *JSON) SecuritySchemeByID(id string) (SecurityScheme, bool) {
	for _, s := range p.SecuritySchemes {
		if s.ID == id {
			return s, true
		}
	}
	return SecurityScheme{}, false
}
