package cache

import (
	"net/http"
	"strings"
	"time"

	"github.com/dunglas/httpsfv"
)

// TTLFromHeader derives a cache TTL from a response's Cache-Control header.
// The header grammar is compatible with an RFC 8941 dictionary
// (e.g. "public, max-age=300"), so it is parsed as one.
//
// Returns 0 when no usable directive is present, meaning "use the default".
// no-store and no-cache return NoStore: those responses must not be served
// from memory at all. The server can only shorten the cache's default TTL
// via max-age, never extend it; the cap is enforced by the cache itself.
func TTLFromHeader(h http.Header) time.Duration {
	header := strings.TrimSpace(h.Get("Cache-Control"))
	if header == "" {
		return 0
	}

	dict, err := httpsfv.UnmarshalDictionary([]string{header})
	if err != nil {
		return 0
	}

	if _, ok := dict.Get("no-store"); ok {
		return NoStore
	}
	if _, ok := dict.Get("no-cache"); ok {
		return NoStore
	}

	member, ok := dict.Get("max-age")
	if !ok {
		return 0
	}
	item, ok := member.(httpsfv.Item)
	if !ok {
		return 0
	}
	secs, ok := item.Value.(int64)
	if !ok {
		return 0
	}
	if secs <= 0 {
		// max-age=0 demands revalidation on every use; same outcome as
		// no-cache for a cache that cannot revalidate.
		return NoStore
	}
	return time.Duration(secs) * time.Second
}
