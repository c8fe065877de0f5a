package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/hatebu-galaxy/pkg/cache"
	"github.com/Sternrassler/hatebu-galaxy/pkg/hatena"
	"github.com/Sternrassler/hatebu-galaxy/pkg/storage"
)

type errorResponse struct {
	Error string `json:"error"`
}

type healthResponse struct {
	Status        string  `json:"status"`
	UptimeSeconds float64 `json:"uptime_seconds"`
	Version       string  `json:"version,omitempty"`
}

type stateResponse struct {
	Username string `json:"username"`
	State    string `json:"state"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// username reads and validates the username query parameter.
func username(w http.ResponseWriter, r *http.Request) (string, bool) {
	name := strings.TrimSpace(r.URL.Query().Get("username"))
	if !hatena.ValidUsername(name) {
		writeError(w, http.StatusBadRequest, "invalid username")
		return "", false
	}
	return name, true
}

// intParam reads a positive integer query parameter, def when absent.
func intParam(r *http.Request, key string, def int) (int, bool) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, false
	}
	return n, true
}

func Health(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store")
		writeJSON(w, http.StatusOK, healthResponse{
			Status:        "ok",
			UptimeSeconds: time.Since(d.StartTime).Seconds(),
			Version:       d.Version,
		})
	}
}

// Gather runs one pass and returns {bookmarks, hasNextPage, conclusive}.
func Gather(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name, ok := username(w, r)
		if !ok {
			return
		}
		startPage, ok := intParam(r, "startPage", 1)
		if !ok {
			writeError(w, http.StatusBadRequest, "startPage must be a positive integer")
			return
		}
		pageChunk, ok := intParam(r, "pageChunk", d.PageChunk)
		if !ok || pageChunk > d.MaxPageChunk {
			writeError(w, http.StatusBadRequest, "pageChunk must be between 1 and "+strconv.Itoa(d.MaxPageChunk))
			return
		}

		res := d.Gatherer.Gather(r.Context(), name, startPage, pageChunk)
		w.Header().Set("Cache-Control", "no-store")
		writeJSON(w, http.StatusOK, res)
	}
}

// Files lists every stored key of a user.
func Files(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name, ok := username(w, r)
		if !ok {
			return
		}

		keys, err := d.Objects.List(r.Context(), storage.UserPrefix(name))
		if err != nil {
			d.Logger.Error().Err(err).Str("username", name).Msg("Listing objects failed")
			writeError(w, http.StatusBadGateway, "storage unavailable")
			return
		}
		if keys == nil {
			keys = []string{}
		}
		writeJSON(w, http.StatusOK, keys)
	}
}

// File serves one stored object through the edge cache.
func File(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := strings.Trim(r.URL.Query().Get("key"), "/")
		if !validObjectKey(key) {
			writeError(w, http.StatusBadRequest, "invalid key")
			return
		}

		entry, err := d.Files.Get(r.Context(), key)
		switch {
		case errors.Is(err, storage.ErrNotFound):
			writeError(w, http.StatusNotFound, "not found")
			return
		case err != nil:
			d.Logger.Error().Err(err).Str("key", key).Msg("Reading object failed")
			writeError(w, http.StatusBadGateway, "storage unavailable")
			return
		}

		cache.WriteEntry(w, r, entry)
	}
}

// validObjectKey accepts "<username>/<name>" with a valid username and a
// plain object name.
func validObjectKey(key string) bool {
	owner, name, ok := strings.Cut(key, "/")
	if !ok || !hatena.ValidUsername(owner) || name == "" {
		return false
	}
	return !strings.Contains(name, "/") && !strings.Contains(name, "..")
}

// User returns the upstream profile of a user.
func User(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name, ok := username(w, r)
		if !ok {
			return
		}

		info, err := d.Users.FetchUserInfo(r.Context(), name)
		switch {
		case errors.Is(err, hatena.ErrUserNotFound):
			writeError(w, http.StatusNotFound, "user not found")
			return
		case err != nil:
			d.Logger.Warn().Err(err).Str("username", name).Msg("User lookup failed")
			writeError(w, http.StatusBadGateway, "upstream unavailable")
			return
		}

		writeJSON(w, http.StatusOK, info)
	}
}

// FirstBookmark returns the earliest recorded bookmark time of a user.
func FirstBookmark(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name, ok := username(w, r)
		if !ok {
			return
		}
		if d.FirstBookmarks == nil {
			writeError(w, http.StatusNotFound, "not recorded")
			return
		}

		fb, err := d.FirstBookmarks.Get(r.Context(), name)
		switch {
		case errors.Is(err, storage.ErrNotFound):
			writeError(w, http.StatusNotFound, "not recorded")
			return
		case err != nil:
			d.Logger.Error().Err(err).Str("username", name).Msg("Reading first bookmark failed")
			writeError(w, http.StatusBadGateway, "storage unavailable")
			return
		}

		writeJSON(w, http.StatusOK, fb)
	}
}

// State reports the harvest state of a user.
func State(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name, ok := username(w, r)
		if !ok {
			return
		}

		st, err := d.Gatherer.State(r.Context(), name)
		if err != nil {
			d.Logger.Error().Err(err).Str("username", name).Msg("Reading state failed")
			writeError(w, http.StatusBadGateway, "storage unavailable")
			return
		}

		writeJSON(w, http.StatusOK, stateResponse{Username: name, State: string(st)})
	}
}
