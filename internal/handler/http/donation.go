package http

import (
	"log/slog"
	"net/http"

	"github.com/utafrali/WeddingDonations/pkg/httputil"
	"github.com/utafrali/WeddingDonations/pkg/pagination"
)

// DonationHandler serves the admin donation listing.
type DonationHandler struct {
	service PaymentService
	logger  *slog.Logger
}

// NewDonationHandler creates a new donation HTTP handler.
func NewDonationHandler(svc PaymentService, logger *slog.Logger) *DonationHandler {
	return &DonationHandler{service: svc, logger: logger}
}

// List handles GET /api/donations?page=&per_page=
func (h *DonationHandler) List(w http.ResponseWriter, r *http.Request) {
	page, err := h.service.ListDonations(r.Context(), pagination.FromRequest(r))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteData(w, http.StatusOK, "", page)
}
