package cache

import (
	"fmt"
	"net/http"
	"strings"
)

// IsNotModified reports whether the request's If-None-Match header matches
// the entry's ETag.
func IsNotModified(r *http.Request, entry *Entry) bool {
	if r == nil || entry == nil || entry.ETag == "" {
		return false
	}

	header := r.Header.Get("If-None-Match")
	if header == "" {
		return false
	}
	if strings.TrimSpace(header) == "*" {
		return true
	}

	for _, tag := range strings.Split(header, ",") {
		tag = strings.TrimSpace(tag)
		tag = strings.TrimPrefix(tag, "W/")
		if tag == entry.ETag {
			return true
		}
	}
	return false
}

// WriteEntry writes entry as a JSON response with ETag and Cache-Control
// headers, or a bare 304 when the client already holds this version.
func WriteEntry(w http.ResponseWriter, r *http.Request, entry *Entry) {
	w.Header().Set("ETag", entry.ETag)
	w.Header().Set("Cache-Control", fmt.Sprintf("public, max-age=%d", int(entry.TTL().Seconds())))
	w.Header().Set("Last-Modified", entry.CachedAt.UTC().Format(http.TimeFormat))

	if IsNotModified(r, entry) {
		NotModified.Inc()
		w.WriteHeader(http.StatusNotModified)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(entry.Data)
}
