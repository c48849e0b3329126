package perform

import (
	"regexp"
	"strings"
)

var (
	profileExtPattern  = regexp.MustCompile(`\.profile.*$`)
	providerExtPattern = regexp.MustCompile(`\.provider.*$`)
)

// basename returns the final path segment of a URL or file path.
func basename(url string) string {
	if i := strings.LastIndexAny(url, "/\\"); i >= 0 {
		return url[i+1:]
	}
	return url
}

// profileIDFromURL derives a fallback profile id from its URL per
// spec.md §4.4's "strip the basename and trim any trailing .profile*
// extension, replacing . with /."
func profileIDFromURL(url string) string {
	name := profileExtPattern.ReplaceAllString(basename(url), "")
	return strings.ReplaceAll(name, ".", "/")
}

// providerIDFromURL derives a fallback provider id the same way, trimming
// a trailing .provider* extension instead.
func providerIDFromURL(url string) string {
	name := providerExtPattern.ReplaceAllString(basename(url), "")
	return strings.ReplaceAll(name, ".", "/")
}
