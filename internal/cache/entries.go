package cache

import (
	"fmt"
	"unicode/utf8"

	"github.com/oneclientcore/runtime/internal/provider"
)

// ProfileCacheEntry holds a fetched profile document. The profile text
// itself is opaque to the core beyond its content hash; nothing validates
// map input or output against it.
type ProfileCacheEntry struct {
	Profile     string
	ContentHash string
}

// NewProfileCacheEntry post-processes raw profile bytes.
func NewProfileCacheEntry(data []byte) (ProfileCacheEntry, error) {
	if !utf8.Valid(data) {
		return ProfileCacheEntry{}, fmt.Errorf("cache: profile is not valid utf8")
	}
	return ProfileCacheEntry{
		ContentHash: contentHash(data),
		Profile:     string(data),
	}, nil
}

// ProviderJsonCacheEntry holds a parsed provider.json descriptor.
type ProviderJsonCacheEntry struct {
	ProviderJSON *provider.JSON
	ContentHash  string
}

// NewProviderJsonCacheEntry post-processes raw provider.json bytes.
func NewProviderJsonCacheEntry(data []byte) (ProviderJsonCacheEntry, error) {
	p, err := provider.Parse(data)
	if err != nil {
		return ProviderJsonCacheEntry{}, err
	}
	return ProviderJsonCacheEntry{
		ContentHash:  contentHash(data),
		ProviderJSON: p,
	}, nil
}

// MapCacheEntry holds a fetched map's JS source plus the synthetic file
// name used for interpreter stack traces (SPEC_FULL.md supplement 3).
type MapCacheEntry struct {
	Map         string
	ContentHash string
	FileName    string
}

// NewMapCacheEntry post-processes raw map source bytes. fileName is
// typically derived from the map's logical URL (e.g. "provider.usecase.js").
func NewMapCacheEntry(data []byte, fileName string) (MapCacheEntry, error) {
	if !utf8.Valid(data) {
		return MapCacheEntry{}, fmt.Errorf("cache: map source is not valid utf8")
	}
	return MapCacheEntry{
		ContentHash: contentHash(data),
		Map:         string(data),
		FileName:    fileName,
	}, nil
}
