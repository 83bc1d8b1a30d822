package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/johnrirwin/ordo/internal/logging"
	"github.com/johnrirwin/ordo/internal/models"
)

// VendorLister describes the adapters the registry knows about
type VendorLister interface {
	VendorInfo() []models.VendorInfo
}

// Options wires the server to its services. Nil services leave their routes
// unregistered.
type Options struct {
	Checkout    CheckoutService
	Carts       CartStore
	Credentials CredentialStore
	Orders      OrderLister
	Vendors     VendorLister
	Metrics     http.Handler
	Logger      *logging.Logger
}

type Server struct {
	opts   Options
	logger *logging.Logger
	server *http.Server
}

func New(opts Options) *Server {
	return &Server{opts: opts, logger: opts.Logger}
}

// Handler builds the route table
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	if s.opts.Checkout != nil {
		checkoutAPI := NewCheckoutAPI(s.opts.Checkout, s.logger)
		checkoutAPI.RegisterRoutes(mux, s.corsMiddleware)
	}

	officeAPI := NewOfficeAPI(s.opts.Carts, s.opts.Credentials, s.opts.Orders, s.logger)
	officeAPI.RegisterRoutes(mux, s.corsMiddleware)

	if s.opts.Vendors != nil {
		mux.HandleFunc("/api/vendors", s.corsMiddleware(s.handleVendors))
	}

	if s.opts.Metrics != nil {
		mux.Handle("/metrics", s.opts.Metrics)
	}

	// Health check
	mux.HandleFunc("/health", s.handleHealth)

	return mux
}

func (s *Server) Start(addr string) error {
	s.server = &http.Server{
		Addr:        addr,
		Handler:     s.Handler(),
		ReadTimeout: 15 * time.Second,
		// Checkout waits on every vendor, each bounded by its own timeout
		WriteTimeout: 3 * time.Minute,
	}

	s.logger.Info("HTTP API server starting", logging.WithField("addr", addr))
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) corsMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next(w, r)
	}
}

func (s *Server) handleVendors(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	vendors := s.opts.Vendors.VendorInfo()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"vendors": vendors,
		"count":   len(vendors),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
	})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{
		"code":    code,
		"message": message,
	})
}

// parseVendors reads a comma separated vendor list. Unknown slugs are an error.
func parseVendors(raw string) ([]models.VendorSlug, error) {
	var out []models.VendorSlug
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		slug := models.VendorSlug(strings.ToLower(part))
		if !slug.IsKnown() {
			return nil, fmt.Errorf("%w: unknown vendor %q", models.ErrInvalidInput, part)
		}
		out = append(out, slug)
	}
	return out, nil
}

func parseLimit(r *http.Request, defaultLimit, maxLimit int) int {
	limit := defaultLimit
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= maxLimit {
			limit = parsed
		}
	}
	return limit
}
