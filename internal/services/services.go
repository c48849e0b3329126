// Package services builds the per-perform "services" map the map sees:
// each provider service id resolved to a base URL with integration
// parameters substituted in, grounded on
// core_to_map_std/src/unstable/services.rs.
package services

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/oneclientcore/runtime/internal/hostvalue"
	"github.com/oneclientcore/runtime/internal/provider"
)

// ServiceMisconfiguredError records one service whose base URL references
// a parameter that wasn't supplied.
type ServiceMisconfiguredError struct {
	ID       string
	Expected string
}

// PrepareServicesMapError aggregates every service misconfiguration found,
// rather than failing on the first one, so a caller sees every problem in
// one pass.
type PrepareServicesMapError struct {
	Errors []ServiceMisconfiguredError
}

func (e *PrepareServicesMapError) Error() string {
	var b strings.Builder
	for _, err := range e.Errors {
		fmt.Fprintf(&b, "Service %s is misconfigured. Expected %s\n", err.ID, err.Expected)
	}
	return b.String()
}

var paramPattern = regexp.MustCompile(`\{\s*([^}\s]*)\s*\}`)

// PrepareServicesMap builds the {serviceId: baseURL} object the map
// receives as its "services" input, substituting every {PARAM} (and the
// whitespace-tolerant "{ PARAM }", "{PARAM }", "{ PARAM}" spellings) with
// the matching string from parameters.
func PrepareServicesMap(p *provider.JSON, parameters map[string]hostvalue.Value) (hostvalue.Value, error) {
	servicesMap := make(map[string]hostvalue.Value, len(p.Services))
	var errs []ServiceMisconfiguredError

	for _, svc := range p.Services {
		url, missing := replaceParameters(svc.BaseURL, parameters)
		if len(missing) > 0 {
			for _, expected := range missing {
				errs = append(errs, ServiceMisconfiguredError{ID: svc.ID, Expected: expected})
			}
			continue
		}
		servicesMap[svc.ID] = hostvalue.String(url)
	}

	if len(errs) > 0 {
		return hostvalue.Value{}, &PrepareServicesMapError{Errors: errs}
	}
	return hostvalue.Object(servicesMap), nil
}

// replaceParameters substitutes every {NAME} placeholder in url with the
// string value of parameters[NAME]. It never short-circuits: every
// missing or non-string parameter is collected so the caller can report
// all of them at once.
func replaceParameters(url string, parameters map[string]hostvalue.Value) (string, []string) {
	var missing []string

	result := paramPattern.ReplaceAllStringFunc(url, func(match string) string {
		name := paramPattern.FindStringSubmatch(match)[1]
		val, ok := parameters[name]
		if !ok {
			missing = append(missing, fmt.Sprintf("String parameter %s is missing", name))
			return ""
		}
		str, ok := val.String()
		if !ok {
			missing = append(missing, fmt.Sprintf("String parameter %s is missing", name))
			return ""
		}
		return str
	})

	if len(missing) > 0 {
		return "", missing
	}
	return result, nil
}
