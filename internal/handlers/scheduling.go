// Package handlers exposes the scheduling engine over HTTP. Handlers are a
// thin shim: parse, call the engine, map sentinel errors to status codes.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/schedkit/schedkit/internal/booking"
	"github.com/schedkit/schedkit/internal/calendar"
	"github.com/schedkit/schedkit/internal/model"
	"github.com/schedkit/schedkit/internal/storage"
)

// Store is what the HTTP layer needs beyond the engine: link lookup,
// listings, and idempotency bookkeeping.
type Store interface {
	Link(ctx context.Context, id string) (model.LinkConfig, error)
	ListBookings(ctx context.Context, linkID string, limit int) ([]model.Booking, error)
	ListActorBookings(ctx context.Context, actorID string, limit int) ([]model.Booking, error)
	ClaimIdempotencyKey(ctx context.Context, linkID, key string) (rec storage.IdempotencyRecord, finalized bool, err error)
	FinalizeIdempotencyKey(ctx context.Context, linkID, key, bookingID string, statusCode int, response []byte) error
}

type SchedulingHandler struct {
	engine *booking.Engine
	store  Store
	logger *slog.Logger
}

func NewSchedulingHandler(engine *booking.Engine, store Store, logger *slog.Logger) *SchedulingHandler {
	return &SchedulingHandler{engine: engine, store: store, logger: logger}
}

type availabilityItem struct {
	StartTime string   `json:"start_time"`
	EndTime   string   `json:"end_time"`
	FreeHosts []string `json:"free_hosts"`
}

type bookRequest struct {
	LinkID         string `json:"link_id"`
	RequesterName  string `json:"requester_name"`
	RequesterEmail string `json:"requester_email"`
	StartTime      string `json:"start_time"`
	EndTime        string `json:"end_time"`
}

type bookResponse struct {
	BookingID string `json:"booking_id"`
	ActorID   string `json:"actor_id"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	Status    string `json:"status"`
}

type cancelRequest struct {
	BookingID string `json:"booking_id"`
	Reason    string `json:"reason"`
}

type rescheduleRequest struct {
	BookingID string `json:"booking_id"`
	LinkID    string `json:"link_id"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

type bookingItem struct {
	BookingID   string `json:"booking_id"`
	ActorID     string `json:"actor_id"`
	Requester   string `json:"requester_name"`
	StartTime   string `json:"start_time"`
	EndTime     string `json:"end_time"`
	Status      string `json:"status"`
	CancelledAt string `json:"cancelled_at,omitempty"`
	CreatedAt   string `json:"created_at"`
}

// Availability serves GET /api/v1/public/availability.
func (h *SchedulingHandler) Availability(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	q := r.URL.Query()
	linkID := strings.TrimSpace(q.Get("link_id"))
	if linkID == "" {
		http.Error(w, "link_id required", http.StatusBadRequest)
		return
	}
	from, err := time.Parse(time.RFC3339, q.Get("from"))
	if err != nil {
		http.Error(w, "invalid from", http.StatusBadRequest)
		return
	}
	to, err := time.Parse(time.RFC3339, q.Get("to"))
	if err != nil {
		http.Error(w, "invalid to", http.StatusBadRequest)
		return
	}
	if !to.After(from) {
		http.Error(w, "to must be after from", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	link, err := h.store.Link(ctx, linkID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	windows, err := h.engine.GetAvailability(ctx, link, from, to)
	if err != nil {
		h.writeError(w, err)
		return
	}

	items := make([]availabilityItem, 0, len(windows))
	for _, win := range windows {
		items = append(items, availabilityItem{
			StartTime: win.Start.UTC().Format(time.RFC3339),
			EndTime:   win.End.UTC().Format(time.RFC3339),
			FreeHosts: win.FreeActorIDs,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"windows": items})
}

// Book serves POST /api/v1/public/book. An Idempotency-Key header makes
// retries replay the stored response instead of booking twice.
func (h *SchedulingHandler) Book(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req bookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.LinkID = strings.TrimSpace(req.LinkID)
	req.RequesterName = strings.TrimSpace(req.RequesterName)
	req.RequesterEmail = strings.TrimSpace(req.RequesterEmail)
	if req.LinkID == "" || req.RequesterName == "" || req.RequesterEmail == "" {
		http.Error(w, "link_id, requester_name and requester_email required", http.StatusBadRequest)
		return
	}
	window, err := parseWindow(req.StartTime, req.EndTime)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	link, err := h.store.Link(ctx, req.LinkID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	idempotencyKey := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	if idempotencyKey != "" {
		rec, finalized, err := h.store.ClaimIdempotencyKey(ctx, link.ID, idempotencyKey)
		if err != nil {
			http.Error(w, "idempotency check failed", http.StatusInternalServerError)
			return
		}
		if finalized {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(rec.StatusCode)
			_, _ = w.Write(rec.ResponsePayload)
			return
		}
	}

	requester := model.Requester{Name: req.RequesterName, Email: req.RequesterEmail}
	b, err := h.engine.CommitBooking(ctx, link, requester, window)
	if err != nil {
		status, msg := statusFor(err)
		// Retryable failures leave the key unfinalized so the client can
		// retry with the same key.
		if idempotencyKey != "" && status != http.StatusServiceUnavailable && status != http.StatusInternalServerError {
			body, _ := json.Marshal(map[string]string{"error": msg})
			if err := h.store.FinalizeIdempotencyKey(ctx, link.ID, idempotencyKey, "", status, body); err != nil {
				h.logger.Error("idempotency finalize failed", "err", err)
			}
		}
		http.Error(w, msg, status)
		return
	}

	resp := bookResponse{
		BookingID: b.ID,
		ActorID:   b.ActorID,
		StartTime: b.Window.Start.UTC().Format(time.RFC3339),
		EndTime:   b.Window.End.UTC().Format(time.RFC3339),
		Status:    string(b.Status),
	}
	body, err := json.Marshal(resp)
	if err != nil {
		http.Error(w, "failed to build response", http.StatusInternalServerError)
		return
	}
	if idempotencyKey != "" {
		if err := h.store.FinalizeIdempotencyKey(ctx, link.ID, idempotencyKey, b.ID, http.StatusCreated, body); err != nil {
			h.logger.Error("idempotency finalize failed", "err", err)
		}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_, _ = w.Write(body)
}

// Cancel serves POST /api/v1/bookings/cancel. Cancelling an already
// cancelled booking is a no-op success.
func (h *SchedulingHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req cancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.BookingID = strings.TrimSpace(req.BookingID)
	if req.BookingID == "" {
		http.Error(w, "booking_id required", http.StatusBadRequest)
		return
	}

	b, err := h.engine.CancelBooking(r.Context(), req.BookingID, strings.TrimSpace(req.Reason))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, bookingToItem(b))
}

// Reschedule serves POST /api/v1/bookings/reschedule: commits the new
// window, then marks the old booking rescheduled.
func (h *SchedulingHandler) Reschedule(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req rescheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.BookingID = strings.TrimSpace(req.BookingID)
	req.LinkID = strings.TrimSpace(req.LinkID)
	if req.BookingID == "" || req.LinkID == "" {
		http.Error(w, "booking_id and link_id required", http.StatusBadRequest)
		return
	}
	window, err := parseWindow(req.StartTime, req.EndTime)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	link, err := h.store.Link(ctx, req.LinkID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	replacement, err := h.engine.RescheduleBooking(ctx, link, req.BookingID, window)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, bookingToItem(replacement))
}

// List serves GET /api/v1/bookings.
func (h *SchedulingHandler) List(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	q := r.URL.Query()
	linkID := strings.TrimSpace(q.Get("link_id"))
	if linkID == "" {
		http.Error(w, "link_id required", http.StatusBadRequest)
		return
	}
	limit := 50
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	bookings, err := h.store.ListBookings(r.Context(), linkID, limit)
	if err != nil {
		h.writeError(w, err)
		return
	}
	items := make([]bookingItem, 0, len(bookings))
	for _, b := range bookings {
		items = append(items, bookingToItem(b))
	}
	writeJSON(w, http.StatusOK, map[string]any{"bookings": items})
}

// ActorFeed serves GET /api/v1/actors/feed.ics: the actor's confirmed
// bookings as a subscribable calendar.
func (h *SchedulingHandler) ActorFeed(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	actorID := strings.TrimSpace(r.URL.Query().Get("actor_id"))
	if actorID == "" {
		http.Error(w, "actor_id required", http.StatusBadRequest)
		return
	}

	bookings, err := h.store.ListActorBookings(r.Context(), actorID, 0)
	if err != nil {
		h.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/calendar")
	if err := calendar.WriteFeed(w, actorID, bookings); err != nil {
		h.logger.Error("ics feed write failed", "actor_id", actorID, "err", err)
	}
}

func (h *SchedulingHandler) writeError(w http.ResponseWriter, err error) {
	status, msg := statusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed", "err", err)
	}
	http.Error(w, msg, status)
}

func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, booking.ErrNotFound):
		return http.StatusNotFound, "not found"
	case errors.Is(err, booking.ErrConflictRejected):
		return http.StatusConflict, "requested window is no longer available"
	case errors.Is(err, booking.ErrDurationMismatch):
		return http.StatusUnprocessableEntity, "window does not match the link duration"
	case errors.Is(err, booking.ErrLeadTimeViolation):
		return http.StatusUnprocessableEntity, "window starts inside the minimum lead time"
	case errors.Is(err, booking.ErrDailyCapReached):
		return http.StatusUnprocessableEntity, "daily booking limit reached"
	case errors.Is(err, booking.ErrPersistenceFailure):
		return http.StatusServiceUnavailable, "booking could not be stored, retry later"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

func parseWindow(startRaw, endRaw string) (model.Window, error) {
	start, err := time.Parse(time.RFC3339, startRaw)
	if err != nil {
		return model.Window{}, errors.New("invalid start_time")
	}
	end, err := time.Parse(time.RFC3339, endRaw)
	if err != nil {
		return model.Window{}, errors.New("invalid end_time")
	}
	if !end.After(start) {
		return model.Window{}, errors.New("end_time must be after start_time")
	}
	return model.Window{Start: start, End: end}, nil
}

func bookingToItem(b model.Booking) bookingItem {
	item := bookingItem{
		BookingID: b.ID,
		ActorID:   b.ActorID,
		Requester: b.Requester.Name,
		StartTime: b.Window.Start.UTC().Format(time.RFC3339),
		EndTime:   b.Window.End.UTC().Format(time.RFC3339),
		Status:    string(b.Status),
		CreatedAt: b.CreatedAt.UTC().Format(time.RFC3339),
	}
	if b.CancelledAt != nil {
		item.CancelledAt = b.CancelledAt.UTC().Format(time.RFC3339)
	}
	return item
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
