package vendors

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/johnrirwin/ordo/internal/models"
	"github.com/johnrirwin/ordo/internal/session"
	"github.com/johnrirwin/ordo/internal/testutil"
)

// vendorServer starts an httptest server with the given mux patterns
func vendorServer(t *testing.T, routes map[string]http.HandlerFunc) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	for pattern, handler := range routes {
		mux.HandleFunc(pattern, handler)
	}
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(vendor models.VendorSlug, baseURL string) Config {
	cfg := DefaultConfig()
	cfg.BaseURLs = map[models.VendorSlug]string{vendor: baseURL}
	cfg.PageSize = 2
	return cfg
}

func testDeps() Deps {
	return Deps{Logger: testutil.NullLogger()}
}

func testHandle(vendor models.VendorSlug, srv *httptest.Server) *session.Handle {
	return session.NewHandle("office-1", vendor, srv.Client())
}

func loggedIn(h *session.Handle) *session.Handle {
	h.Advance(session.Authenticated)
	return h
}

func writeHTML(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = io.WriteString(w, body)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func decodeBody(t *testing.T, r *http.Request, dst interface{}) {
	t.Helper()
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		t.Errorf("decode request body: %v", err)
	}
}

func wantKind(t *testing.T, err error, want models.ErrorKind) {
	t.Helper()
	if got := models.KindOf(err); got != want {
		t.Fatalf("error kind = %q, want %q (err = %v)", got, want, err)
	}
}
