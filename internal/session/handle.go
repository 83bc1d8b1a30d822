// Package session holds the authenticated state of one office's account at
// one vendor and hands it out to a single operation at a time.
package session

import (
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/johnrirwin/ordo/internal/models"
	"github.com/johnrirwin/ordo/internal/transport"
)

// LoginState is the position of a handle in a scraper login flow
type LoginState int

const (
	Anonymous LoginState = iota
	AwaitingCSRFToken
	SubmittingCredentials
	Authenticated
)

func (s LoginState) String() string {
	switch s {
	case Anonymous:
		return "anonymous"
	case AwaitingCSRFToken:
		return "awaiting_csrf_token"
	case SubmittingCredentials:
		return "submitting_credentials"
	case Authenticated:
		return "authenticated"
	default:
		return fmt.Sprintf("LoginState(%d)", int(s))
	}
}

// Common token names stored on a handle
const (
	TokenCSRF   = "csrf"
	TokenBearer = "bearer"
)

// Handle is the authenticated state for one (office, vendor) pair: a cookie
// jar, bearer or anti-forgery tokens, and the login state. Adapters receive
// it on every call and never keep session state of their own.
type Handle struct {
	OfficeID string
	Vendor   models.VendorSlug

	client *http.Client

	mu         sync.Mutex
	state      LoginState
	tokens     map[string]string
	values     map[string]string
	expiresAt  time.Time
	loggedInAt time.Time
}

// NewHandle creates an anonymous handle. The handle gets its own cookie jar
// on top of base's transport and timeout.
func NewHandle(officeID string, vendor models.VendorSlug, base *http.Client) *Handle {
	if base == nil {
		base = transport.NewClient(transport.Options{})
	}
	client := *base
	client.Jar = transport.NewJar()

	return &Handle{
		OfficeID: officeID,
		Vendor:   vendor,
		client:   &client,
		tokens:   make(map[string]string),
		values:   make(map[string]string),
	}
}

// Client returns the HTTP client bound to this handle's cookie jar
func (h *Handle) Client() *http.Client {
	return h.client
}

// State returns the current login state
func (h *Handle) State() LoginState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Advance moves the handle to the next login state
func (h *Handle) Advance(s LoginState) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.state = s
	if s == Authenticated {
		h.loggedInAt = time.Now()
	}
}

// Authenticated reports whether the handle holds an unexpired login
func (h *Handle) Authenticated() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state != Authenticated {
		return false
	}
	return h.expiresAt.IsZero() || time.Now().Before(h.expiresAt)
}

// ExpiresAt returns when the login expires, or zero if unknown
func (h *Handle) ExpiresAt() time.Time {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.expiresAt
}

// SetExpiry records when the login stops being valid
func (h *Handle) SetExpiry(t time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.expiresAt = t
}

// Token returns a named token, or "" if unset
func (h *Handle) Token(name string) string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.tokens[name]
}

// SetToken stores a named token
func (h *Handle) SetToken(name, value string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.tokens[name] = value
}

// SetBearer stores an OAuth/OIDC access token. If the token is a JWT with an
// exp claim, the handle expires with it. The signature is not checked; the
// vendor does that.
func (h *Handle) SetBearer(token string) {
	var claims jwt.RegisteredClaims
	_, _, err := jwt.NewParser().ParseUnverified(token, &claims)

	h.mu.Lock()
	defer h.mu.Unlock()
	h.tokens[TokenBearer] = token
	if err == nil && claims.ExpiresAt != nil {
		h.expiresAt = claims.ExpiresAt.Time
	}
}

// Value returns adapter-specific session data such as a form key
func (h *Handle) Value(key string) string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.values[key]
}

// SetValue stores adapter-specific session data
func (h *Handle) SetValue(key, value string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.values[key] = value
}

// Reset drops every cookie and token and returns the handle to Anonymous
func (h *Handle) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.client.Jar = transport.NewJar()
	h.state = Anonymous
	h.tokens = make(map[string]string)
	h.values = make(map[string]string)
	h.expiresAt = time.Time{}
	h.loggedInAt = time.Time{}
}

// Cookie is a jar entry captured for replay
type Cookie struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Snapshot is the serializable part of a handle
type Snapshot struct {
	State     LoginState          `json:"state"`
	Cookies   map[string][]Cookie `json:"cookies"`
	Tokens    map[string]string   `json:"tokens"`
	Values    map[string]string   `json:"values"`
	ExpiresAt time.Time           `json:"expiresAt"`
}

// Snapshot captures the cookies the jar would send to each of urls along with
// the handle's tokens.
func (h *Handle) Snapshot(urls ...string) Snapshot {
	h.mu.Lock()
	defer h.mu.Unlock()

	snap := Snapshot{
		State:     h.state,
		Cookies:   make(map[string][]Cookie),
		Tokens:    copyMap(h.tokens),
		Values:    copyMap(h.values),
		ExpiresAt: h.expiresAt,
	}
	for _, raw := range urls {
		u, err := url.Parse(raw)
		if err != nil {
			continue
		}
		for _, c := range h.client.Jar.Cookies(u) {
			snap.Cookies[raw] = append(snap.Cookies[raw], Cookie{Name: c.Name, Value: c.Value})
		}
	}
	return snap
}

// Restore loads a snapshot into the handle, replacing its state
func (h *Handle) Restore(snap Snapshot) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.client.Jar = transport.NewJar()
	for raw, cookies := range snap.Cookies {
		u, err := url.Parse(raw)
		if err != nil {
			continue
		}
		httpCookies := make([]*http.Cookie, 0, len(cookies))
		for _, c := range cookies {
			httpCookies = append(httpCookies, &http.Cookie{Name: c.Name, Value: c.Value, Path: "/"})
		}
		h.client.Jar.SetCookies(u, httpCookies)
	}
	h.state = snap.State
	h.tokens = copyMap(snap.Tokens)
	h.values = copyMap(snap.Values)
	h.expiresAt = snap.ExpiresAt
}

func copyMap(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
