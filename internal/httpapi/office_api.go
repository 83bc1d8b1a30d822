package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/johnrirwin/ordo/internal/logging"
	"github.com/johnrirwin/ordo/internal/models"
)

// CartStore is the office cart
type CartStore interface {
	ListCart(ctx context.Context, officeID string) ([]models.CartProduct, error)
	AddCartItem(ctx context.Context, item *models.CartProduct) error
	RemoveCartItems(ctx context.Context, officeID string, ids []string) error
}

// CredentialStore holds office vendor logins
type CredentialStore interface {
	Upsert(ctx context.Context, cred *models.VendorCredential) error
	ListForOffice(ctx context.Context, officeID string) ([]models.VendorCredential, error)
	Delete(ctx context.Context, officeID string, vendor models.VendorSlug) error
}

// OrderLister reads an office's vendor orders
type OrderLister interface {
	ListVendorOrders(ctx context.Context, officeID string, limit int) ([]models.VendorOrder, error)
}

// OfficeAPI serves an office's cart, linked vendors and order history
type OfficeAPI struct {
	carts       CartStore
	credentials CredentialStore
	orders      OrderLister
	logger      *logging.Logger
}

// NewOfficeAPI creates a new office API handler
func NewOfficeAPI(carts CartStore, credentials CredentialStore, orders OrderLister, logger *logging.Logger) *OfficeAPI {
	return &OfficeAPI{carts: carts, credentials: credentials, orders: orders, logger: logger}
}

// RegisterRoutes registers office routes for the stores that are configured
func (api *OfficeAPI) RegisterRoutes(mux *http.ServeMux, corsMiddleware func(http.HandlerFunc) http.HandlerFunc) {
	if api.carts != nil {
		mux.HandleFunc("/api/offices/{office}/cart", corsMiddleware(api.handleCart))
		mux.HandleFunc("/api/offices/{office}/cart/{id}", corsMiddleware(api.handleCartItem))
	}
	if api.credentials != nil {
		mux.HandleFunc("/api/offices/{office}/vendors", corsMiddleware(api.handleLinkedVendors))
		mux.HandleFunc("/api/offices/{office}/vendors/{vendor}/credentials", corsMiddleware(api.handleCredentials))
	}
	if api.orders != nil {
		mux.HandleFunc("/api/offices/{office}/orders", corsMiddleware(api.handleOrders))
	}
}

func (api *OfficeAPI) handleCart(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		api.listCart(w, r)
	case http.MethodPost:
		api.addCartItem(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (api *OfficeAPI) listCart(w http.ResponseWriter, r *http.Request) {
	officeID := r.PathValue("office")

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	items, err := api.carts.ListCart(ctx, officeID)
	if err != nil {
		api.internalError(w, "Failed to list cart", officeID, err)
		return
	}
	if items == nil {
		items = []models.CartProduct{}
	}

	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.Subtotal())
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"items": items,
		"total": total,
	})
}

func (api *OfficeAPI) addCartItem(w http.ResponseWriter, r *http.Request) {
	officeID := r.PathValue("office")

	var item models.CartProduct
	if err := json.NewDecoder(r.Body).Decode(&item); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_input", "Invalid request body")
		return
	}
	item.ID = ""
	item.OfficeID = officeID
	item.ProductID = strings.TrimSpace(item.ProductID)
	switch {
	case !item.Vendor.IsKnown():
		writeError(w, http.StatusBadRequest, "invalid_input", "Unknown vendor "+string(item.Vendor))
		return
	case item.ProductID == "":
		writeError(w, http.StatusBadRequest, "invalid_input", "productId is required")
		return
	case item.Quantity <= 0:
		writeError(w, http.StatusBadRequest, "invalid_input", "quantity must be positive")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := api.carts.AddCartItem(ctx, &item); err != nil {
		if errors.Is(err, models.ErrInvalidInput) {
			writeError(w, http.StatusBadRequest, "invalid_input", err.Error())
			return
		}
		api.internalError(w, "Failed to add cart item", officeID, err)
		return
	}
	writeJSON(w, http.StatusCreated, item)
}

func (api *OfficeAPI) handleCartItem(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	officeID := r.PathValue("office")

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := api.carts.RemoveCartItems(ctx, officeID, []string{r.PathValue("id")}); err != nil {
		api.internalError(w, "Failed to remove cart item", officeID, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (api *OfficeAPI) handleLinkedVendors(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	officeID := r.PathValue("office")

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	creds, err := api.credentials.ListForOffice(ctx, officeID)
	if err != nil {
		api.internalError(w, "Failed to list linked vendors", officeID, err)
		return
	}
	if creds == nil {
		creds = []models.VendorCredential{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"vendors": creds,
		"count":   len(creds),
	})
}

type credentialBody struct {
	Username  string `json:"username"`
	Password  string `json:"password"`
	AccountID string `json:"accountId"`
}

func (api *OfficeAPI) handleCredentials(w http.ResponseWriter, r *http.Request) {
	officeID := r.PathValue("office")
	vendor := models.VendorSlug(strings.ToLower(r.PathValue("vendor")))
	if !vendor.IsKnown() {
		writeError(w, http.StatusNotFound, "not_found", "Unknown vendor "+string(vendor))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	switch r.Method {
	case http.MethodPut:
		var body credentialBody
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_input", "Invalid request body")
			return
		}
		if strings.TrimSpace(body.Username) == "" || body.Password == "" {
			writeError(w, http.StatusBadRequest, "invalid_input", "username and password are required")
			return
		}
		cred := &models.VendorCredential{
			OfficeID:  officeID,
			Vendor:    vendor,
			Username:  strings.TrimSpace(body.Username),
			Password:  body.Password,
			AccountID: body.AccountID,
		}
		if err := api.credentials.Upsert(ctx, cred); err != nil {
			api.internalError(w, "Failed to save credentials", officeID, err)
			return
		}
		api.logger.Info("Vendor linked", logging.WithFields(map[string]interface{}{
			"office": officeID,
			"vendor": vendor,
		}))
		writeJSON(w, http.StatusOK, cred)
	case http.MethodDelete:
		if err := api.credentials.Delete(ctx, officeID, vendor); err != nil {
			api.internalError(w, "Failed to delete credentials", officeID, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (api *OfficeAPI) handleOrders(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	officeID := r.PathValue("office")
	limit := parseLimit(r, 50, 200)

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	orders, err := api.orders.ListVendorOrders(ctx, officeID, limit)
	if err != nil {
		api.internalError(w, "Failed to list orders", officeID, err)
		return
	}
	if orders == nil {
		orders = []models.VendorOrder{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"orders": orders,
		"count":  len(orders),
	})
}

func (api *OfficeAPI) internalError(w http.ResponseWriter, msg, officeID string, err error) {
	api.logger.Error(msg, logging.WithFields(map[string]interface{}{
		"office": officeID,
		"error":  err.Error(),
	}))
	writeError(w, http.StatusInternalServerError, "internal_error", msg)
}
