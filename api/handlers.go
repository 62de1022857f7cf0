/*
handlers.go - HTTP API handlers for the dues engine

PURPOSE:
  Exposes the dues engine via REST API. Handles HTTP request/response,
  JSON serialization, validation, and delegates to the engine.

ENDPOINTS:
  Members:
    GET    /api/members                       List all members
    POST   /api/members                       Create or replace member
    GET    /api/members/{id}                  Member profile
    GET    /api/members/{id}/dues             Due items (?as_of=)
    GET    /api/members/{id}/status           Dues status (?as_of=)
    GET    /api/members/{id}/timeline         Display window (?as_of=&past=&future=)
    GET    /api/members/{id}/audit            Settlement audit trail (?limit=)

  Payments:
    GET    /api/members/{id}/payments                  History (?limit=)
    GET    /api/members/{id}/payments/{period}         Payment record (404 when unpaid)
    PUT    /api/members/{id}/payments/{period}         Mark paid
    DELETE /api/members/{id}/payments/{period}         Unmark
    POST   /api/members/{id}/payments/{period}/verify  Set verified flag
    GET    /api/members/{id}/payments/{period}/matches Voucher suggestions (?amount=&q=)

  Vouchers:
    GET    /api/vouchers                      Search (?from=&to=&q=)
    POST   /api/vouchers                      Record ledger entry

  Admin:
    GET    /api/admin/sweep                   Last overdue sweep
    POST   /api/admin/sweep                   Run overdue sweep now

PERIOD PARAMETER:
  {period} is parsed with ?interval= when given, else with the member's
  configured interval, else with the interval implied by its form.

ARCHITECTURE:
  Handler struct holds all dependencies:
  - Engine: dues queries and settlement commands
  - Store: member and voucher maintenance
  - Cache: optional Redis cache for dues and status responses

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Member or payment not found
  - 500: Internal errors

SECURITY NOTE:
  Currently NO authentication or authorization. The actor recorded in the
  audit trail is taken from the request body or the X-Actor header.

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/warp/dues-engine/dues"
	"github.com/warp/dues-engine/metrics"
	"github.com/warp/dues-engine/period"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Store is the maintenance side the API needs beyond the engine's stores.
type Store interface {
	dues.MemberStore
	dues.VoucherStore
	SaveProfile(ctx context.Context, p dues.Profile) error
	AddVoucher(ctx context.Context, v dues.Voucher) error
	Reset(ctx context.Context) error
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Engine    *dues.Engine
	Store     Store
	Cache     *Cache
	Scheduler *OverdueScheduler
	Logger    *zap.Logger

	validate *validator.Validate

	mu              sync.Mutex
	currentScenario string
}

// NewHandler creates a new handler. cache may be nil.
func NewHandler(engine *dues.Engine, store Store, cache *Cache, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		Engine:   engine,
		Store:    store,
		Cache:    cache,
		Logger:   logger,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// =============================================================================
// MEMBER HANDLERS
// =============================================================================

// ListMembers returns all member profiles.
func (h *Handler) ListMembers(w http.ResponseWriter, r *http.Request) {
	profiles, err := h.Store.Profiles(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list members", err)
		return
	}

	dtos := make([]MemberDTO, len(profiles))
	for i, p := range profiles {
		dtos[i] = toMemberDTO(p)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateMember creates or replaces a member profile.
func (h *Handler) CreateMember(w http.ResponseWriter, r *http.Request) {
	var req CreateMemberRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	p, err := req.toProfile()
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid member", err)
		return
	}

	ctx := r.Context()
	if err := h.Store.SaveProfile(ctx, p); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save member", err)
		return
	}
	// profile changes move the due list just like settlements do
	h.Cache.SettlementChanged(ctx, p.MemberID)

	writeJSON(w, http.StatusCreated, toMemberDTO(p))
}

// GetMember returns a member profile.
func (h *Handler) GetMember(w http.ResponseWriter, r *http.Request) {
	p, ok := h.loadProfile(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, toMemberDTO(*p))
}

// =============================================================================
// DUES HANDLERS
// =============================================================================

// GetDues returns the member's due items.
func (h *Handler) GetDues(w http.ResponseWriter, r *http.Request) {
	id := memberID(r)
	asOf, ok := h.asOfParam(w, r)
	if !ok {
		return
	}

	ctx := r.Context()
	key, err := h.Cache.BuildKey(ctx, id, "dues", asOf.String())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Cache unavailable", err)
		return
	}

	var resp DuesResponse
	err = h.Cache.FetchJSON(ctx, key, &resp, func(ctx context.Context) (any, error) {
		items, err := h.Engine.DueItemsAt(ctx, id, asOf)
		if err != nil {
			return nil, err
		}
		return DuesResponse{MemberID: string(id), AsOf: asOf.String(), Items: toDueItemDTOs(items)}, nil
	})
	if err != nil {
		writeDomainError(w, "Failed to compute dues", err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetStatus returns the member-level dues status.
func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	id := memberID(r)
	asOf, ok := h.asOfParam(w, r)
	if !ok {
		return
	}

	ctx := r.Context()
	key, err := h.Cache.BuildKey(ctx, id, "status", asOf.String())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Cache unavailable", err)
		return
	}

	var resp StatusDTO
	err = h.Cache.FetchJSON(ctx, key, &resp, func(ctx context.Context) (any, error) {
		st, err := h.Engine.StatusAt(ctx, id, asOf)
		if err != nil {
			return nil, err
		}
		return toStatusDTO(id, asOf, st), nil
	})
	if err != nil {
		writeDomainError(w, "Failed to compute status", err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetTimeline returns the classified display window.
func (h *Handler) GetTimeline(w http.ResponseWriter, r *http.Request) {
	p, ok := h.loadProfile(w, r)
	if !ok {
		return
	}
	asOf, ok := h.asOfParam(w, r)
	if !ok {
		return
	}

	opts := dues.DefaultTimelineOptions(p.Interval)
	var err error
	if opts.Past, err = intParam(r, "past", opts.Past); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid past count", err)
		return
	}
	if opts.Future, err = intParam(r, "future", opts.Future); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid future count", err)
		return
	}
	if opts.Past > dues.MaxTimelineSpan || opts.Future > dues.MaxTimelineSpan {
		writeError(w, http.StatusBadRequest, "Timeline window too large",
			fmt.Errorf("past and future must not exceed %d", dues.MaxTimelineSpan))
		return
	}

	periods, err := h.Engine.TimelineAt(r.Context(), p.MemberID, asOf, opts)
	if err != nil {
		writeDomainError(w, "Failed to compute timeline", err)
		return
	}
	writeJSON(w, http.StatusOK, TimelineResponse{
		MemberID: string(p.MemberID),
		AsOf:     asOf.String(),
		Past:     opts.Past,
		Future:   opts.Future,
		Periods:  toTimelineDTOs(periods),
	})
}

// GetAudit returns the member's settlement audit trail.
func (h *Handler) GetAudit(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r, "limit", 50)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid limit", err)
		return
	}
	entries, err := h.Engine.AuditTrail(r.Context(), memberID(r), limit)
	if err != nil {
		writeDomainError(w, "Failed to load audit trail", err)
		return
	}
	writeJSON(w, http.StatusOK, toAuditDTOs(entries))
}

// =============================================================================
// PAYMENT HANDLERS
// =============================================================================

// ListPayments returns the settlement history, most recent first.
func (h *Handler) ListPayments(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r, "limit", 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid limit", err)
		return
	}
	records, err := h.Engine.History(r.Context(), memberID(r), limit)
	if err != nil {
		writeDomainError(w, "Failed to load payments", err)
		return
	}
	writeJSON(w, http.StatusOK, toPaymentDTOs(records))
}

// GetPayment returns the record settling the period.
func (h *Handler) GetPayment(w http.ResponseWriter, r *http.Request) {
	p, key, ok := h.loadPeriod(w, r)
	if !ok {
		return
	}
	rec, err := h.Engine.IsPaid(r.Context(), p.MemberID, key)
	if err != nil {
		writeDomainError(w, "Failed to load payment", err)
		return
	}
	if rec == nil {
		writeDomainError(w, "Period not paid", &dues.PaymentNotFoundError{MemberID: p.MemberID, Period: key})
		return
	}
	writeJSON(w, http.StatusOK, toPaymentDTO(*rec))
}

// MarkPaid settles the period.
func (h *Handler) MarkPaid(w http.ResponseWriter, r *http.Request) {
	p, key, ok := h.loadPeriod(w, r)
	if !ok {
		return
	}
	var req MarkPaidRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	cmd := dues.MarkPaidCommand{
		MemberID:  p.MemberID,
		Period:    key,
		Amount:    p.Amount(),
		VoucherID: dues.VoucherID(req.VoucherID),
		Verified:  req.Verified,
		Actor:     actor(r, req.Actor),
	}
	if req.Amount != "" {
		amount, err := decimal.NewFromString(req.Amount)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid amount", err)
			return
		}
		cmd.Amount = amount
	}
	if req.DatePaid != "" {
		d, err := period.ParseDate(req.DatePaid)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid date_paid", err)
			return
		}
		cmd.DatePaid = d
	}

	rec, err := h.Engine.MarkPaid(r.Context(), cmd)
	metrics.ObserveSettlement("mark_paid", err)
	if err != nil {
		writeDomainError(w, "Failed to mark period paid", err)
		return
	}
	writeJSON(w, http.StatusOK, toPaymentDTO(*rec))
}

// Unmark removes the settlement of a period. Unmarking an unpaid period
// succeeds without effect.
func (h *Handler) Unmark(w http.ResponseWriter, r *http.Request) {
	p, key, ok := h.loadPeriod(w, r)
	if !ok {
		return
	}
	err := h.Engine.Unmark(r.Context(), p.MemberID, key, actor(r, ""))
	metrics.ObserveSettlement("unmark", err)
	if err != nil {
		writeDomainError(w, "Failed to unmark period", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Verify sets or clears the verified flag of a settled period.
func (h *Handler) Verify(w http.ResponseWriter, r *http.Request) {
	p, key, ok := h.loadPeriod(w, r)
	if !ok {
		return
	}
	var req VerifyRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	rec, err := h.Engine.SetVerified(r.Context(), p.MemberID, key, *req.Verified, actor(r, req.Actor))
	metrics.ObserveSettlement("verify", err)
	if err != nil {
		writeDomainError(w, "Failed to update verification", err)
		return
	}
	writeJSON(w, http.StatusOK, toPaymentDTO(*rec))
}

// SuggestMatches ranks vouchers that could settle the period. The
// expected amount defaults to the member's contribution.
func (h *Handler) SuggestMatches(w http.ResponseWriter, r *http.Request) {
	p, key, ok := h.loadPeriod(w, r)
	if !ok {
		return
	}

	amount := p.Amount()
	if raw := r.URL.Query().Get("amount"); raw != "" {
		var err error
		if amount, err = decimal.NewFromString(raw); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid amount", err)
			return
		}
	}

	candidates, err := h.Engine.SuggestMatches(r.Context(), p.MemberID, key, amount, r.URL.Query().Get("q"))
	if err != nil {
		writeDomainError(w, "Failed to search vouchers", err)
		return
	}
	writeJSON(w, http.StatusOK, toCandidateDTOs(candidates))
}

// =============================================================================
// VOUCHER HANDLERS
// =============================================================================

// ListVouchers searches ledger entries.
func (h *Handler) ListVouchers(w http.ResponseWriter, r *http.Request) {
	q := dues.VoucherQuery{Text: r.URL.Query().Get("q")}
	var err error
	if q.From, err = dateParam(r, "from"); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid from date", err)
		return
	}
	if q.To, err = dateParam(r, "to"); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid to date", err)
		return
	}

	vouchers, err := h.Store.Vouchers(r.Context(), q)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list vouchers", err)
		return
	}
	dtos := make([]VoucherDTO, len(vouchers))
	for i, v := range vouchers {
		dtos[i] = toVoucherDTO(v)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateVoucher records a ledger entry.
func (h *Handler) CreateVoucher(w http.ResponseWriter, r *http.Request) {
	var req CreateVoucherRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	v, err := req.toVoucher()
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid voucher", err)
		return
	}
	if err := h.Store.AddVoucher(r.Context(), v); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save voucher", err)
		return
	}
	writeJSON(w, http.StatusCreated, toVoucherDTO(v))
}

// =============================================================================
// ADMIN HANDLERS
// =============================================================================

// RunSweep evaluates every member now.
func (h *Handler) RunSweep(w http.ResponseWriter, r *http.Request) {
	var (
		res SweepResult
		err error
	)
	if h.Scheduler != nil {
		res, err = h.Scheduler.RunNow(r.Context())
	} else {
		res, err = Sweep(r.Context(), h.Engine, h.Engine.Today(), h.Logger)
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Sweep failed", err)
		return
	}
	writeJSON(w, http.StatusOK, toSweepDTO(res))
}

// LastSweep returns the scheduler's most recent sweep.
func (h *Handler) LastSweep(w http.ResponseWriter, r *http.Request) {
	if h.Scheduler == nil {
		writeError(w, http.StatusNotFound, "Scheduler not running", nil)
		return
	}
	res, ok := h.Scheduler.Last()
	if !ok {
		writeError(w, http.StatusNotFound, "No sweep has run yet", nil)
		return
	}
	writeJSON(w, http.StatusOK, toSweepDTO(res))
}

// ResetDatabase clears all data.
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.reset(ctx); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) reset(ctx context.Context) error {
	if err := h.Store.Reset(ctx); err != nil {
		return err
	}
	if err := h.Cache.InvalidateAll(ctx); err != nil {
		h.Logger.Warn("cache reset failed", zap.Error(err))
	}
	h.mu.Lock()
	h.currentScenario = ""
	h.mu.Unlock()
	return nil
}

// =============================================================================
// REQUEST HELPERS
// =============================================================================

func memberID(r *http.Request) dues.MemberID {
	return dues.MemberID(chi.URLParam(r, "id"))
}

// loadProfile writes 404 when the member is unknown.
func (h *Handler) loadProfile(w http.ResponseWriter, r *http.Request) (*dues.Profile, bool) {
	id := memberID(r)
	p, err := h.Engine.Members.Profile(r.Context(), id)
	if err == nil && p == nil {
		err = &dues.MemberNotFoundError{MemberID: id}
	}
	if err != nil {
		writeDomainError(w, "Failed to load member", err)
		return nil, false
	}
	return p, true
}

// loadPeriod resolves the member and the {period} URL parameter.
func (h *Handler) loadPeriod(w http.ResponseWriter, r *http.Request) (*dues.Profile, period.Key, bool) {
	p, ok := h.loadProfile(w, r)
	if !ok {
		return nil, period.Key{}, false
	}
	key, err := parsePeriod(chi.URLParam(r, "period"), r.URL.Query().Get("interval"), p.Interval)
	if err != nil {
		writeDomainError(w, "Invalid period", err)
		return nil, period.Key{}, false
	}
	return p, key, true
}

func parsePeriod(text, explicit string, configured period.Interval) (period.Key, error) {
	if explicit != "" {
		interval, err := period.ParseInterval(explicit)
		if err != nil {
			return period.Key{}, err
		}
		return period.Parse(text, interval)
	}
	if configured.Valid() {
		return period.Parse(text, configured)
	}
	return period.ParseAny(text)
}

// asOfParam reads ?as_of=, defaulting to the engine's today.
func (h *Handler) asOfParam(w http.ResponseWriter, r *http.Request) (period.Date, bool) {
	d, err := dateParam(r, "as_of")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid as_of date", err)
		return period.Date{}, false
	}
	if d.IsZero() {
		d = h.Engine.Today()
	}
	return d, true
}

func dateParam(r *http.Request, name string) (period.Date, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return period.Date{}, nil
	}
	return period.ParseDate(raw)
}

func intParam(r *http.Request, name string, def int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, fmt.Errorf("%s must not be negative", name)
	}
	return n, nil
}

func actor(r *http.Request, fromBody string) string {
	if fromBody != "" {
		return fromBody
	}
	return r.Header.Get("X-Actor")
}

// decodeAndValidate writes 400 and returns false when the body is unusable.
func (h *Handler) decodeAndValidate(w http.ResponseWriter, r *http.Request, dest any) bool {
	// an empty body decodes as the zero request
	if err := json.NewDecoder(r.Body).Decode(dest); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	if err := h.validate.Struct(dest); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make(map[string]string, len(verrs))
			for _, fe := range verrs {
				fields[fe.Field()] = fe.Tag()
			}
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "Validation failed", Details: fields})
			return false
		}
		writeError(w, http.StatusBadRequest, "Validation failed", err)
		return false
	}
	return true
}

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps engine errors to HTTP status codes.
func writeDomainError(w http.ResponseWriter, message string, err error) {
	switch {
	case dues.IsNotFound(err):
		writeError(w, http.StatusNotFound, message, err)
	case dues.IsClientError(err):
		writeError(w, http.StatusBadRequest, message, err)
	default:
		writeError(w, http.StatusInternalServerError, message, err)
	}
}
