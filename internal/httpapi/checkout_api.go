package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/johnrirwin/ordo/internal/checkout"
	"github.com/johnrirwin/ordo/internal/logging"
	"github.com/johnrirwin/ordo/internal/models"
)

// CheckoutService is the orchestrator the API drives
type CheckoutService interface {
	Checkout(ctx context.Context, req checkout.Request) (*checkout.Response, error)
	Status(ctx context.Context, officeID string, vendors []models.VendorSlug) ([]models.CheckoutProgress, error)
}

// CheckoutAPI handles HTTP API requests for checkout
type CheckoutAPI struct {
	svc    CheckoutService
	logger *logging.Logger
}

// NewCheckoutAPI creates a new checkout API handler
func NewCheckoutAPI(svc CheckoutService, logger *logging.Logger) *CheckoutAPI {
	return &CheckoutAPI{svc: svc, logger: logger}
}

// RegisterRoutes registers checkout routes on the given mux
func (api *CheckoutAPI) RegisterRoutes(mux *http.ServeMux, corsMiddleware func(http.HandlerFunc) http.HandlerFunc) {
	mux.HandleFunc("/api/offices/{office}/checkout", corsMiddleware(api.handleCheckout))
	mux.HandleFunc("/api/offices/{office}/checkout-status", corsMiddleware(api.handleStatus))
}

type checkoutBody struct {
	Vendors  []models.VendorSlug `json:"vendors"`
	DryRun   bool                `json:"dryRun"`
	PONumber string              `json:"poNumber"`
}

func (api *CheckoutAPI) handleCheckout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	officeID := r.PathValue("office")

	var body checkoutBody
	// An empty body checks out every vendor in the cart
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid_input", "Invalid request body")
		return
	}
	for _, v := range body.Vendors {
		if !v.IsKnown() {
			writeError(w, http.StatusBadRequest, "invalid_input", "Unknown vendor "+string(v))
			return
		}
	}

	resp, err := api.svc.Checkout(r.Context(), checkout.Request{
		OfficeID: officeID,
		Vendors:  body.Vendors,
		DryRun:   body.DryRun,
		PONumber: body.PONumber,
	})
	switch {
	case errors.Is(err, models.ErrOrderInProgress):
		writeError(w, http.StatusConflict, string(models.KindOrderInProgress), err.Error())
		return
	case errors.Is(err, checkout.ErrEmptyCart):
		writeError(w, http.StatusBadRequest, "empty_cart", "Cart has no items for the requested vendors")
		return
	case err != nil && resp == nil:
		api.logger.Error("Checkout failed", logging.WithFields(map[string]interface{}{
			"office": officeID,
			"error":  err.Error(),
		}))
		writeError(w, http.StatusInternalServerError, "internal_error", "Checkout failed")
		return
	case err != nil:
		// Vendors placed orders but the order record could not be saved
		api.logger.Error("Failed to save placed order", logging.WithFields(map[string]interface{}{
			"office": officeID,
			"error":  err.Error(),
		}))
		writeJSON(w, http.StatusInternalServerError, map[string]interface{}{
			"code":    "save_failed",
			"message": "Orders were placed but could not be saved",
			"results": resp.Results,
		})
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func (api *CheckoutAPI) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	officeID := r.PathValue("office")
	vendors, err := parseVendors(r.URL.Query().Get("vendors"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_input", err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status, err := api.svc.Status(ctx, officeID, vendors)
	if err != nil {
		api.logger.Error("Failed to read checkout status", logging.WithFields(map[string]interface{}{
			"office": officeID,
			"error":  err.Error(),
		}))
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to read checkout status")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"officeId": officeID,
		"vendors":  status,
	})
}
