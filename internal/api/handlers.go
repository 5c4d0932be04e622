package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"fixhub/internal/metrics"
	"fixhub/internal/models"
)

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleServices lists the active repair services, sorted for display.
func (s *HTTPServer) handleServices(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	metrics.IncHTTP("services")

	services := make([]models.ServiceCatalogEntry, 0, len(s.catalog))
	for _, entry := range s.catalog {
		if entry.Active {
			services = append(services, entry)
		}
	}
	sort.Slice(services, func(i, j int) bool {
		if services[i].SortOrder == services[j].SortOrder {
			return services[i].Type < services[j].Type
		}
		return services[i].SortOrder < services[j].SortOrder
	})

	writeJSON(w, http.StatusOK, map[string]any{"services": services})
}

// handleBookings serves the collection: POST creates, GET lists.
func (s *HTTPServer) handleBookings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.createBooking(w, r)
	case http.MethodGet:
		s.listBookings(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *HTTPServer) createBooking(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("create_booking")

	var body struct {
		CustomerID    int64  `json:"customer_id"`
		ServiceType   string `json:"service_type"`
		Issue         string `json:"issue"`
		Urgency       string `json:"urgency"`
		ScheduledDate string `json:"scheduled_date"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	booking := &models.Booking{
		CustomerID:  body.CustomerID,
		ServiceType: models.ServiceType(body.ServiceType),
		Issue:       strings.TrimSpace(body.Issue),
		Urgency:     models.Urgency(body.Urgency),
	}

	// Customer keys may only create bookings for themselves.
	if c, ok := clientFromContext(r.Context()); ok && c.Role == models.ActorCustomer && c.UserID != 0 {
		booking.CustomerID = c.UserID
	}

	if body.ScheduledDate != "" {
		date, err := time.Parse("2006-01-02", body.ScheduledDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid scheduled_date; expected YYYY-MM-DD")
			return
		}
		booking.ScheduledDate = date
	}

	if err := s.service.CreateBooking(r.Context(), booking); err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, booking)
}

func (s *HTTPServer) listBookings(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("list_bookings")

	q := r.URL.Query()
	status := models.Status(strings.TrimSpace(q.Get("status")))
	if status != "" {
		if _, err := models.ParseStatus(string(status)); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	// Scoped keys are pinned to their own bookings.
	if c, ok := clientFromContext(r.Context()); ok && c.UserID != 0 {
		switch c.Role {
		case models.ActorCustomer:
			s.writeBookingList(w, r, func() ([]*models.Booking, error) {
				return s.service.GetCustomerBookings(r.Context(), c.UserID, status)
			})
			return
		case models.ActorTechnician:
			s.writeBookingList(w, r, func() ([]*models.Booking, error) {
				return s.service.GetTechnicianBookings(r.Context(), c.UserID, status)
			})
			return
		}
	}

	switch {
	case q.Get("customer_id") != "":
		customerID, err := strconv.ParseInt(q.Get("customer_id"), 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid customer_id")
			return
		}
		s.writeBookingList(w, r, func() ([]*models.Booking, error) {
			return s.service.GetCustomerBookings(r.Context(), customerID, status)
		})
	case q.Get("technician_id") != "":
		technicianID, err := strconv.ParseInt(q.Get("technician_id"), 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid technician_id")
			return
		}
		s.writeBookingList(w, r, func() ([]*models.Booking, error) {
			return s.service.GetTechnicianBookings(r.Context(), technicianID, status)
		})
	case q.Get("from") != "" || q.Get("to") != "":
		start, end, err := parseDateRange(q.Get("from"), q.Get("to"))
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.writeBookingList(w, r, func() ([]*models.Booking, error) {
			return s.service.GetBookingsByDateRange(r.Context(), start, end)
		})
	case status != "":
		s.writeBookingList(w, r, func() ([]*models.Booking, error) {
			return s.service.GetBookingsByStatus(r.Context(), status)
		})
	default:
		writeError(w, http.StatusBadRequest, "customer_id, technician_id, status or from/to is required")
	}
}

func (s *HTTPServer) writeBookingList(w http.ResponseWriter, r *http.Request, load func() ([]*models.Booking, error)) {
	bookings, err := load()
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if bookings == nil {
		bookings = []*models.Booking{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"bookings": bookings})
}

// handleBookingByID routes /api/v1/bookings/{id} and its subresources.
func (s *HTTPServer) handleBookingByID(w http.ResponseWriter, r *http.Request) {
	const prefix = "/api/v1/bookings/"
	rest := strings.TrimPrefix(r.URL.Path, prefix)
	parts := strings.SplitN(rest, "/", 2)

	id, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid booking id")
		return
	}

	sub := ""
	if len(parts) == 2 {
		sub = strings.TrimSuffix(parts[1], "/")
	}

	switch sub {
	case "":
		s.getBooking(w, r, id)
	case "status":
		s.handleStatus(w, r, id)
	case "history":
		s.getHistory(w, r, id)
	case "review":
		s.attachReview(w, r, id)
	case "bid":
		s.handleBid(w, r, id)
	case "payment":
		s.updatePayment(w, r, id)
	case "technician":
		s.assignTechnician(w, r, id)
	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}

func (s *HTTPServer) getBooking(w http.ResponseWriter, r *http.Request, id int64) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	metrics.IncHTTP("get_booking")

	booking, err := s.service.GetBooking(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, booking)
}

// handleStatus reads the current status or applies a transition.
func (s *HTTPServer) handleStatus(w http.ResponseWriter, r *http.Request, id int64) {
	switch r.Method {
	case http.MethodGet:
		metrics.IncHTTP("get_status")
		booking, err := s.service.GetBooking(r.Context(), id)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"booking_id": booking.ID,
			"status":     booking.Status,
			"version":    booking.Version,
			"event_seq":  booking.EventSeq,
			"updated_at": booking.UpdatedAt,
		})
	case http.MethodPost:
		s.transition(w, r, id)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *HTTPServer) transition(w http.ResponseWriter, r *http.Request, id int64) {
	metrics.IncHTTP("transition")

	var body struct {
		Status string `json:"status"`
		Note   string `json:"note"`
		Force  bool   `json:"force"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	target, err := models.ParseStatus(body.Status)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	actor := s.actor(r)
	var booking *models.Booking
	if body.Force {
		booking, err = s.service.ForceTransition(r.Context(), id, target, actor, body.Note)
	} else {
		booking, err = s.service.Transition(r.Context(), id, target, actor, body.Note)
	}
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, booking)
}

func (s *HTTPServer) getHistory(w http.ResponseWriter, r *http.Request, id int64) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	metrics.IncHTTP("get_history")

	booking, err := s.service.GetBooking(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"history": booking.History})
}

func (s *HTTPServer) attachReview(w http.ResponseWriter, r *http.Request, id int64) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	metrics.IncHTTP("attach_review")

	var body struct {
		ReviewID int64 `json:"review_id"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if err := s.service.AttachReview(r.Context(), id, body.ReviewID); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"result": "ok"})
}

// handleBid marks a bid as placed, or selects one when bid_id is given.
func (s *HTTPServer) handleBid(w http.ResponseWriter, r *http.Request, id int64) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	metrics.IncHTTP("bid")

	var body struct {
		BidID int64 `json:"bid_id"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	var err error
	if body.BidID != 0 {
		err = s.service.SelectBid(r.Context(), id, body.BidID)
	} else {
		err = s.service.MarkBidPlaced(r.Context(), id)
	}
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"result": "ok"})
}

func (s *HTTPServer) updatePayment(w http.ResponseWriter, r *http.Request, id int64) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	metrics.IncHTTP("payment")

	var body struct {
		PaymentStatus string `json:"payment_status"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if err := s.service.UpdatePaymentStatus(r.Context(), id, models.PaymentStatus(body.PaymentStatus)); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"result": "ok"})
}

func (s *HTTPServer) assignTechnician(w http.ResponseWriter, r *http.Request, id int64) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	metrics.IncHTTP("assign_technician")

	var body struct {
		TechnicianID int64 `json:"technician_id"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if err := s.service.AssignTechnician(r.Context(), id, body.TechnicianID); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"result": "ok"})
}

// handleExport streams an xlsx file with bookings for the requested period.
func (s *HTTPServer) handleExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.exporter == nil {
		writeError(w, http.StatusNotImplemented, "export is not configured")
		return
	}
	metrics.IncHTTP("export")

	start, end, err := parseDateRange(r.URL.Query().Get("from"), r.URL.Query().Get("to"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	path, err := s.exporter.ExportBookings(r.Context(), start, end)
	if err != nil {
		s.logger.Error().Err(err).Msg("export error")
		writeError(w, http.StatusInternalServerError, "export failed")
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", "attachment; filename="+filepath.Base(path))
	http.ServeFile(w, r, path)
}

func decodeBody(r *http.Request, dst any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(dst)
}

// parseDateRange parses from/to query params, defaulting to the configured
// window around today when either side is missing.
func parseDateRange(fromStr, toStr string) (time.Time, time.Time, error) {
	now := time.Now()
	start := now.AddDate(0, -models.DefaultExportRangeMonthsBefore, 0)
	end := now.AddDate(0, models.DefaultExportRangeMonthsAfter, 0)

	if fromStr != "" {
		parsed, err := time.Parse("2006-01-02", fromStr)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid from date; expected YYYY-MM-DD")
		}
		start = parsed
	}
	if toStr != "" {
		parsed, err := time.Parse("2006-01-02", toStr)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid to date; expected YYYY-MM-DD")
		}
		end = parsed
	}
	if end.Before(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("to must not be before from")
	}
	return start, end, nil
}
