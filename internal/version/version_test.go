package version

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"runtime"
	"strings"
	"testing"
)

func TestInfo(t *testing.T) {
	v, c, d := Info()
	switch {
	case v == "":
		t.Error("version should not be empty")
	case c == "":
		t.Error("commit should not be empty")
	case d == "":
		t.Error("date should not be empty")
	}
}

func TestCurrentMatchesInfo(t *testing.T) {
	v, c, d := Info()
	build := Current()

	if build.Version != v || build.Commit != c || build.Date != d {
		t.Fatalf("Current() = %+v, Info() = %s %s %s", build, v, c, d)
	}
	if build.GoVersion != runtime.Version() {
		t.Fatalf("unexpected go version %q", build.GoVersion)
	}
}

func TestString(t *testing.T) {
	s := String()
	for _, part := range []string{"version=", "commit=", "date="} {
		if !strings.Contains(s, part) {
			t.Errorf("String() = %q, missing %q", s, part)
		}
	}
}

func TestHandler(t *testing.T) {
	w := httptest.NewRecorder()
	Handler(w, httptest.NewRequest(http.MethodGet, "/version", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("unexpected content type %q", ct)
	}

	var build Build
	if err := json.NewDecoder(w.Body).Decode(&build); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if build.Version != version {
		t.Fatalf("expected version %q, got %q", version, build.Version)
	}
}
