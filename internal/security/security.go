// Package security prepares and resolves provider security schemes
// against caller-supplied credential values, grounded on
// core_to_map_std/src/unstable/security.rs.
package security

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/oneclientcore/runtime/internal/hostvalue"
	"github.com/oneclientcore/runtime/internal/provider"
)

// SecurityMisconfiguredError records that the caller-supplied value for a
// named security scheme didn't match the shape the scheme requires.
type SecurityMisconfiguredError struct {
	ID       string
	Expected string
}

func (e *SecurityMisconfiguredError) Error() string {
	return fmt.Sprintf("Value for %s is misconfigured. Expected %s", e.ID, e.Expected)
}

// PrepareSecurityMapError aggregates every misconfigured scheme found
// while building a SecurityMap; unlike a missing scheme (recorded inline
// in the map so only the schemes actually used at perform time fail),
// this is returned outright because malformed caller input is always
// wrong regardless of which scheme ends up being used.
type PrepareSecurityMapError struct {
	Errors []SecurityMisconfiguredError
}

func (e *PrepareSecurityMapError) Error() string {
	var b strings.Builder
	for _, err := range e.Errors {
		b.WriteString(err.Error())
		b.WriteByte('\n')
	}
	return b.String()
}

// resolved is one scheme resolved to its concrete credential shape.
type resolved struct {
	kind provider.SecuritySchemeKind

	// ApiKey
	in       provider.ApiKeyPlacement
	name     string
	apikey   string
	bodyType provider.ApiKeyBodyType

	// Http Basic
	username string
	password string

	// Http Bearer
	token string
}

// mapValue is one entry of a SecurityMap: either a resolved scheme, or an
// error recorded for later (a scheme the map never actually uses at
// request time is allowed to stay broken).
type mapValue struct {
	resolved *resolved
	err      *SecurityMisconfiguredError
}

// SecurityMap is the per-perform resolution of every provider security
// scheme id to either its usable credential or the reason it can't be
// used.
type SecurityMap map[string]mapValue

// callerValue is the caller-supplied {apikey}|{username,password}|{token}
// shape for one security scheme id.
type callerValue struct {
	apikey   string
	username string
	password string
	token    string
	kind     string // "apikey", "basic", "bearer"
}

// PrepareSecurityMap builds a SecurityMap from the provider's declared
// schemes and the map's supplied security values (a HostValue object of
// {id: {apikey: "..."} | {username, password} | {token: "..."}}).
func PrepareSecurityMap(p *provider.JSON, mapSecurity hostvalue.Value) (SecurityMap, error) {
	if len(p.SecuritySchemes) == 0 {
		return SecurityMap{}, nil
	}

	callerValues := extractCallerValues(mapSecurity)

	securityMap := make(SecurityMap, len(p.SecuritySchemes))
	var errs []SecurityMisconfiguredError

	for _, scheme := range p.SecuritySchemes {
		switch scheme.Kind {
		case provider.SecuritySchemeApiKey:
			cv, ok := callerValues[scheme.ID]
			if !ok {
				securityMap[scheme.ID] = mapValue{err: &SecurityMisconfiguredError{ID: scheme.ID, Expected: "not empty value"}}
				continue
			}
			if cv.kind != "apikey" {
				errs = append(errs, SecurityMisconfiguredError{ID: scheme.ID, Expected: "{ apikey: String }"})
				continue
			}
			securityMap[scheme.ID] = mapValue{resolved: &resolved{
				kind: provider.SecuritySchemeApiKey, in: scheme.In, name: scheme.Name,
				apikey: cv.apikey, bodyType: scheme.BodyType,
			}}

		case provider.SecuritySchemeHttp:
			switch scheme.Scheme {
			case provider.HttpSchemeBasic:
				cv, ok := callerValues[scheme.ID]
				if !ok {
					securityMap[scheme.ID] = mapValue{err: &SecurityMisconfiguredError{ID: scheme.ID, Expected: "not empty value"}}
					continue
				}
				if cv.kind != "basic" {
					errs = append(errs, SecurityMisconfiguredError{ID: scheme.ID, Expected: "{ username: String, password: String }"})
					continue
				}
				securityMap[scheme.ID] = mapValue{resolved: &resolved{
					kind: provider.SecuritySchemeHttp, username: cv.username, password: cv.password,
				}}

			case provider.HttpSchemeBearer:
				cv, ok := callerValues[scheme.ID]
				if !ok {
					securityMap[scheme.ID] = mapValue{err: &SecurityMisconfiguredError{ID: scheme.ID, Expected: "not None"}}
					continue
				}
				if cv.kind != "bearer" {
					errs = append(errs, SecurityMisconfiguredError{ID: scheme.ID, Expected: "{ token: String }"})
					continue
				}
				securityMap[scheme.ID] = mapValue{resolved: &resolved{
					kind: provider.SecuritySchemeHttp, token: cv.token,
				}}

			default:
				errs = append(errs, SecurityMisconfiguredError{ID: scheme.ID, Expected: "a supported http scheme"})
			}
		}
	}

	if len(errs) > 0 {
		return nil, &PrepareSecurityMapError{Errors: errs}
	}
	return securityMap, nil
}

func extractCallerValues(mapSecurity hostvalue.Value) map[string]callerValue {
	obj, ok := mapSecurity.Object()
	if !ok {
		return nil
	}
	result := make(map[string]callerValue, len(obj))
	for id, v := range obj {
		fields, ok := v.Object()
		if !ok {
			continue
		}
		switch {
		case has(fields, "apikey"):
			result[id] = callerValue{kind: "apikey", apikey: fields["apikey"].AsStringOrEmpty()}
		case has(fields, "username"):
			result[id] = callerValue{kind: "basic", username: fields["username"].AsStringOrEmpty(), password: fields["password"].AsStringOrEmpty()}
		case has(fields, "token"):
			result[id] = callerValue{kind: "bearer", token: fields["token"].AsStringOrEmpty()}
		}
	}
	return result
}

func has(m map[string]hostvalue.Value, key string) bool {
	_, ok := m[key]
	return ok
}

// RequestSecurity names the strategy for applying one or more security
// scheme ids to an outbound HTTP request.
type RequestSecurity struct {
	// Strategy is "first-valid" or "all".
	Strategy string
	IDs      []string
}

const (
	StrategyFirstValid = "first-valid"
	StrategyAll        = "all"
)

// HTTPRequest is the mutable subset of an outbound request that security
// resolution may rewrite: headers, query parameters, URL, and body.
type HTTPRequest struct {
	URL     string
	Headers map[string][]string
	Query   map[string][]string
	Body    []byte
}

// ResolveSecurity applies security to req according to strategy.
func ResolveSecurity(securityMap SecurityMap, req *HTTPRequest, security RequestSecurity) error {
	switch security.Strategy {
	case StrategyFirstValid:
		var firstErr error
		for _, id := range security.IDs {
			if err := tryResolveSecurity(securityMap, req, id); err == nil {
				return nil
			} else if firstErr == nil {
				firstErr = err
			}
		}
		return firstErr

	case StrategyAll:
		var msgs []string
		for _, id := range security.IDs {
			if err := tryResolveSecurity(securityMap, req, id); err != nil {
				msgs = append(msgs, err.Error())
			}
		}
		if len(msgs) > 0 {
			return fmt.Errorf("%s", strings.Join(msgs, "\n"))
		}
		return nil

	default:
		return fmt.Errorf("security: unknown strategy %q", security.Strategy)
	}
}

func tryResolveSecurity(securityMap SecurityMap, req *HTTPRequest, id string) error {
	entry, ok := securityMap[id]
	if !ok {
		return fmt.Errorf("Security configuration for %s is missing", id)
	}
	if entry.err != nil {
		return entry.err
	}

	r := entry.resolved
	switch {
	case r.kind == provider.SecuritySchemeHttp && r.username != "":
		creds := base64.StdEncoding.EncodeToString([]byte(r.username + ":" + r.password))
		setHeader(req, "Authorization", "Basic "+creds)
		return nil

	case r.kind == provider.SecuritySchemeHttp && r.token != "":
		setHeader(req, "Authorization", "Bearer "+r.token)
		return nil

	case r.kind == provider.SecuritySchemeApiKey:
		return resolveApiKey(req, r)

	default:
		return fmt.Errorf("security: id %s resolved to an unrecognized credential shape", id)
	}
}

// setHeader appends value to name rather than replacing it: spec.md §4.5
// treats ApiKey.Header/Basic/Bearer placement as additive, so a request
// whose template already set the same header (or a strategy resolving
// more than one id against the same header name) keeps every value.
func setHeader(req *HTTPRequest, name, value string) {
	if req.Headers == nil {
		req.Headers = make(map[string][]string)
	}
	req.Headers[name] = append(req.Headers[name], value)
}

func resolveApiKey(req *HTTPRequest, r *resolved) error {
	switch r.in {
	case provider.ApiKeyHeader:
		setHeader(req, r.name, r.apikey)
		return nil

	case provider.ApiKeyPath:
		req.URL = strings.ReplaceAll(req.URL, "{"+r.name+"}", r.apikey)
		return nil

	case provider.ApiKeyQuery:
		if req.Query == nil {
			req.Query = make(map[string][]string)
		}
		req.Query[r.name] = []string{r.apikey}
		return nil

	case provider.ApiKeyBody:
		if r.bodyType != provider.ApiKeyBodyTypeJSON {
			return fmt.Errorf("Missing body type")
		}
		return setJSONBodyField(req, r.name, r.apikey)

	default:
		return fmt.Errorf("security: unknown api key placement %q", r.in)
	}
}

// setJSONBodyField writes value at the "/"-separated path in req.Body's
// JSON document, walking object keys and numeric array indices, matching
// security.rs's try_resolve_security body-placement logic.
func setJSONBodyField(req *HTTPRequest, name, value string) error {
	if len(req.Body) == 0 {
		return fmt.Errorf("Api key placement is set to body but the body is empty")
	}

	var body any
	if err := json.Unmarshal(req.Body, &body); err != nil {
		return fmt.Errorf("Failed to parse body: %w", err)
	}

	var keys []string
	if strings.HasPrefix(name, "/") {
		for _, k := range strings.Split(name, "/") {
			if k != "" {
				keys = append(keys, k)
			}
		}
	} else {
		keys = []string{name}
	}
	if len(keys) == 0 {
		return fmt.Errorf("Invalid field name '%s'", name)
	}

	if err := setNestedJSON(&body, keys, value); err != nil {
		return err
	}

	out, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("Failed to serialize body: %w", err)
	}
	req.Body = out
	return nil
}

func setNestedJSON(node *any, keys []string, value string) error {
	if len(keys) == 1 {
		return assignAtKey(node, keys[0], value)
	}

	switch cur := (*node).(type) {
	case map[string]any:
		child, ok := cur[keys[0]]
		if !ok {
			child = map[string]any{}
			cur[keys[0]] = child
		}
		return descend(cur, keys[0], keys[1:], value)
	case []any:
		idx, err := strconv.Atoi(keys[0])
		if err != nil {
			return fmt.Errorf("Field value on path '/%s' is an array but provided key cannot be parsed as a number", strings.Join(keys, "/"))
		}
		if idx < 0 || idx >= len(cur) {
			return fmt.Errorf("Field value on path '/%s' index out of range", strings.Join(keys, "/"))
		}
		child := cur[idx]
		if err := setNestedJSON(&child, keys[1:], value); err != nil {
			return err
		}
		cur[idx] = child
		return nil
	default:
		return fmt.Errorf("Field value on path '/%s' must be an object or an array", strings.Join(keys, "/"))
	}
}

func descend(obj map[string]any, key string, rest []string, value string) error {
	child := obj[key]
	if err := setNestedJSON(&child, rest, value); err != nil {
		return err
	}
	obj[key] = child
	return nil
}

func assignAtKey(node *any, key string, value string) error {
	switch cur := (*node).(type) {
	case map[string]any:
		cur[key] = value
		return nil
	case []any:
		idx, err := strconv.Atoi(key)
		if err != nil {
			return fmt.Errorf("Field value on path '/%s' is an array but provided key cannot be parsed as a number", key)
		}
		if idx < 0 || idx >= len(cur) {
			return fmt.Errorf("Field value on path '/%s' index out of range", key)
		}
		cur[idx] = value
		return nil
	default:
		return fmt.Errorf("Field value on path '/%s' must be an object or an array", key)
	}
}

// PrepareProviderParameters builds the MapValue object of default
// parameter values declared in provider.json, used to seed per-perform
// template parameters before caller-supplied overrides are layered on.
func PrepareProviderParameters(p *provider.JSON) map[string]hostvalue.Value {
	result := make(map[string]hostvalue.Value)
	for _, param := range p.Parameters {
		if param.Default != "" {
			result[param.Name] = hostvalue.String(param.Default)
		}
	}
	return result
}
