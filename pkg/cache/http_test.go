package cache

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestIsNotModified(t *testing.T) {
	entry := NewEntry("u/2024.json", []byte("{}"), time.Minute)

	tests := []struct {
		name        string
		ifNoneMatch string
		want        bool
	}{
		{"no header", "", false},
		{"matching", entry.ETag, true},
		{"weak matching", "W/" + entry.ETag, true},
		{"in list", `"other", ` + entry.ETag, true},
		{"wildcard", "*", true},
		{"different", `"other"`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/file?key=u/2024.json", nil)
			if tt.ifNoneMatch != "" {
				req.Header.Set("If-None-Match", tt.ifNoneMatch)
			}
			if got := IsNotModified(req, entry); got != tt.want {
				t.Errorf("IsNotModified() = %v, want %v", got, tt.want)
			}
		})
	}

	if IsNotModified(nil, entry) || IsNotModified(httptest.NewRequest(http.MethodGet, "/", nil), nil) {
		t.Error("IsNotModified() with nil input = true, want false")
	}
}

func TestWriteEntry(t *testing.T) {
	entry := NewEntry("u/2024.json", []byte(`{"bookmarks":[]}`), time.Minute)

	t.Run("full response", func(t *testing.T) {
		rec := httptest.NewRecorder()
		WriteEntry(rec, httptest.NewRequest(http.MethodGet, "/", nil), entry)

		if rec.Code != http.StatusOK {
			t.Errorf("status = %d, want 200", rec.Code)
		}
		if rec.Header().Get("ETag") != entry.ETag {
			t.Errorf("ETag = %q, want %q", rec.Header().Get("ETag"), entry.ETag)
		}
		if rec.Header().Get("Content-Type") != "application/json" {
			t.Errorf("Content-Type = %q", rec.Header().Get("Content-Type"))
		}
		if rec.Body.String() != `{"bookmarks":[]}` {
			t.Errorf("body = %s", rec.Body.String())
		}
	})

	t.Run("revalidated", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("If-None-Match", entry.ETag)
		rec := httptest.NewRecorder()
		WriteEntry(rec, req, entry)

		if rec.Code != http.StatusNotModified {
			t.Errorf("status = %d, want 304", rec.Code)
		}
		if rec.Body.Len() != 0 {
			t.Errorf("304 carried a body of %d bytes", rec.Body.Len())
		}
	})
}
