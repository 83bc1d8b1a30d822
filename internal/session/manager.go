package session

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/johnrirwin/ordo/internal/cache"
	"github.com/johnrirwin/ordo/internal/logging"
	"github.com/johnrirwin/ordo/internal/models"
)

// ClientFactory returns the base HTTP client used for a vendor
type ClientFactory func(vendor models.VendorSlug) *http.Client

type key struct {
	office string
	vendor models.VendorSlug
}

type entry struct {
	handle *Handle
	lease  chan struct{}
}

// Manager keeps one handle per (office, vendor) and leases it to one caller
// at a time.
type Manager struct {
	mu      sync.Mutex
	entries map[key]*entry
	clients ClientFactory
	store   cache.Cache
	ttl     time.Duration
	logger  *logging.Logger
}

// NewManager creates a session manager. store may be nil, in which case
// sessions live only as long as the process.
func NewManager(clients ClientFactory, store cache.Cache, ttl time.Duration, logger *logging.Logger) *Manager {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &Manager{
		entries: make(map[key]*entry),
		clients: clients,
		store:   store,
		ttl:     ttl,
		logger:  logger,
	}
}

func (m *Manager) entryFor(officeID string, vendor models.VendorSlug) *entry {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := key{office: officeID, vendor: vendor}
	e, ok := m.entries[k]
	if !ok {
		var base *http.Client
		if m.clients != nil {
			base = m.clients(vendor)
		}
		e = &entry{
			handle: NewHandle(officeID, vendor, base),
			lease:  make(chan struct{}, 1),
		}
		m.entries[k] = e
	}
	return e
}

// Acquire leases the handle for (officeID, vendor), blocking while another
// operation holds it. Every successful Acquire must be paired with Release.
func (m *Manager) Acquire(ctx context.Context, officeID string, vendor models.VendorSlug) (*Handle, error) {
	e := m.entryFor(officeID, vendor)
	select {
	case e.lease <- struct{}{}:
		return e.handle, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("acquire %s session for office %s: %w", vendor, officeID, ctx.Err())
	}
}

// Release returns a leased handle
func (m *Manager) Release(h *Handle) {
	if h == nil {
		return
	}
	e := m.entryFor(h.OfficeID, h.Vendor)
	select {
	case <-e.lease:
	default:
		m.logger.Warn("Released a session that was not leased", logging.WithFields(map[string]interface{}{
			"office": h.OfficeID,
			"vendor": h.Vendor,
		}))
	}
}

func cacheKey(officeID string, vendor models.VendorSlug) string {
	return "session:" + officeID + ":" + string(vendor)
}

// Save persists the handle's cookies for urls and its tokens. Unauthenticated
// handles are not saved.
func (m *Manager) Save(ctx context.Context, h *Handle, urls ...string) error {
	if m.store == nil || !h.Authenticated() {
		return nil
	}
	ttl := m.ttl
	if exp := h.ExpiresAt(); !exp.IsZero() {
		if remaining := time.Until(exp); remaining < ttl {
			ttl = remaining
		}
	}
	if ttl <= 0 {
		return nil
	}
	return cache.SetJSON(ctx, m.store, cacheKey(h.OfficeID, h.Vendor), h.Snapshot(urls...), ttl)
}

// Restore loads a previously saved login into h. It reports whether the
// restored handle is authenticated, so callers can skip logging in.
func (m *Manager) Restore(ctx context.Context, h *Handle) (bool, error) {
	if m.store == nil {
		return false, nil
	}
	var snap Snapshot
	found, err := cache.GetJSON(ctx, m.store, cacheKey(h.OfficeID, h.Vendor), &snap)
	if err != nil || !found {
		return false, err
	}
	h.Restore(snap)
	if !h.Authenticated() {
		h.Reset()
		return false, nil
	}
	m.logger.Debug("Restored vendor session", logging.WithFields(map[string]interface{}{
		"office": h.OfficeID,
		"vendor": h.Vendor,
	}))
	return true, nil
}

// Invalidate resets the handle and drops any saved copy. Called after the
// vendor rejects the session.
func (m *Manager) Invalidate(ctx context.Context, h *Handle) error {
	h.Reset()
	if m.store == nil {
		return nil
	}
	return m.store.Delete(ctx, cacheKey(h.OfficeID, h.Vendor))
}
