/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract:
  - Money is rendered with exactly two decimals
  - Period keys and dates are rendered in canonical text form
  - Request types carry validator tags

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

VALIDATION:
  Request structs are checked with go-playground/validator in handlers
  (see decodeAndValidate). Semantic checks that need the domain (period
  parsing, interval match) happen after validation.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/dues-engine/dues"
	"github.com/warp/dues-engine/period"
)

// =============================================================================
// MEMBERS
// =============================================================================

// MemberDTO represents a member profile in API responses.
type MemberDTO struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	JoinDate     string  `json:"join_date"`
	LeaveDate    *string `json:"leave_date,omitempty"`
	Contribution *string `json:"contribution,omitempty"`
	Interval     string  `json:"interval,omitempty"`
	FirstDueDate *string `json:"first_due_date,omitempty"`
}

// CreateMemberRequest creates or replaces a member profile.
type CreateMemberRequest struct {
	ID           string `json:"id" validate:"required,max=64"`
	Name         string `json:"name" validate:"max=200"`
	JoinDate     string `json:"join_date" validate:"required,datetime=2006-01-02"`
	LeaveDate    string `json:"leave_date" validate:"omitempty,datetime=2006-01-02"`
	Contribution string `json:"contribution" validate:"omitempty,numeric"`
	Interval     string `json:"interval" validate:"omitempty,oneof=monthly quarterly yearly"`
	FirstDueDate string `json:"first_due_date" validate:"omitempty,datetime=2006-01-02"`
}

// =============================================================================
// DUES
// =============================================================================

// DueItemDTO is one period owed by a member.
type DueItemDTO struct {
	Period    string `json:"period"`
	Interval  string `json:"interval"`
	Amount    string `json:"amount"`
	Paid      bool   `json:"paid"`
	VoucherID string `json:"voucher_id,omitempty"`
	Verified  bool   `json:"verified"`
	Status    string `json:"status"`
}

// DuesResponse wraps the due list with the evaluation date.
type DuesResponse struct {
	MemberID string       `json:"member_id"`
	AsOf     string       `json:"as_of"`
	Items    []DueItemDTO `json:"items"`
}

// StatusDTO is the member-level dues status.
type StatusDTO struct {
	MemberID       string  `json:"member_id"`
	AsOf           string  `json:"as_of"`
	State          string  `json:"state"`
	OverdueCount   int     `json:"overdue_count"`
	LastPaidPeriod *string `json:"last_paid_period,omitempty"`
	LastPaidDate   *string `json:"last_paid_date,omitempty"`
	FirstDueDate   *string `json:"first_due_date,omitempty"`
}

// TimelineEntryDTO is one classified period of the display window.
type TimelineEntryDTO struct {
	Period string `json:"period"`
	Start  string `json:"start"`
	End    string `json:"end"`
	Status string `json:"status"`
}

// TimelineResponse wraps the window with its parameters.
type TimelineResponse struct {
	MemberID string             `json:"member_id"`
	AsOf     string             `json:"as_of"`
	Past     int                `json:"past"`
	Future   int                `json:"future"`
	Periods  []TimelineEntryDTO `json:"periods"`
}

// =============================================================================
// PAYMENTS
// =============================================================================

// PaymentDTO represents a payment record.
type PaymentDTO struct {
	ID         string `json:"id"`
	MemberID   string `json:"member_id"`
	Period     string `json:"period"`
	Interval   string `json:"interval"`
	DatePaid   string `json:"date_paid"`
	Amount     string `json:"amount"`
	VoucherID  string `json:"voucher_id,omitempty"`
	Verified   bool   `json:"verified"`
	RecordedAt string `json:"recorded_at,omitempty"`
}

// MarkPaidRequest settles a period. Amount defaults to the member's
// contribution, DatePaid to today.
type MarkPaidRequest struct {
	Amount    string `json:"amount" validate:"omitempty,numeric"`
	DatePaid  string `json:"date_paid" validate:"omitempty,datetime=2006-01-02"`
	VoucherID string `json:"voucher_id" validate:"omitempty,max=128"`
	Verified  bool   `json:"verified"`
	Actor     string `json:"actor" validate:"max=100"`
}

// VerifyRequest flags a settled period as checked.
type VerifyRequest struct {
	Verified *bool  `json:"verified" validate:"required"`
	Actor    string `json:"actor" validate:"max=100"`
}

// AuditEntryDTO is one settlement audit entry.
type AuditEntryDTO struct {
	ID        string `json:"id"`
	At        string `json:"at"`
	Actor     string `json:"actor"`
	Action    string `json:"action"`
	Period    string `json:"period"`
	Amount    string `json:"amount"`
	VoucherID string `json:"voucher_id,omitempty"`
}

// =============================================================================
// VOUCHERS
// =============================================================================

// VoucherDTO represents a ledger entry.
type VoucherDTO struct {
	ID           string `json:"id"`
	Date         string `json:"date"`
	Amount       string `json:"amount"`
	Description  string `json:"description,omitempty"`
	Counterparty string `json:"counterparty,omitempty"`
	Account      string `json:"account,omitempty"`
}

// CreateVoucherRequest records a ledger entry.
type CreateVoucherRequest struct {
	ID           string `json:"id" validate:"required,max=128"`
	Date         string `json:"date" validate:"required,datetime=2006-01-02"`
	Amount       string `json:"amount" validate:"required,numeric"`
	Description  string `json:"description" validate:"max=500"`
	Counterparty string `json:"counterparty" validate:"max=200"`
	Account      string `json:"account" validate:"max=64"`
}

// CandidateDTO is a voucher suggested as evidence for a period.
type CandidateDTO struct {
	Voucher           VoucherDTO   `json:"voucher"`
	ExactAmount       bool         `json:"exact_amount"`
	AmountDelta       string       `json:"amount_delta"`
	DaysFromPeriodEnd int          `json:"days_from_period_end"`
	LinkedTo          []PaymentDTO `json:"linked_to"`
}

// =============================================================================
// SCENARIOS AND ADMIN
// =============================================================================

// ScenarioDTO describes a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Category    string `json:"category"`
}

// LoadScenarioRequest is the request to load a scenario.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id" validate:"required"`
}

// SweepDTO summarizes an overdue sweep.
type SweepDTO struct {
	At             string             `json:"at"`
	AsOf           string             `json:"as_of"`
	Members        int                `json:"members"`
	OverdueMembers int                `json:"overdue_members"`
	OverduePeriods int                `json:"overdue_periods"`
	Overdue        []OverdueMemberDTO `json:"overdue"`
}

// OverdueMemberDTO is one member with overdue periods.
type OverdueMemberDTO struct {
	MemberID     string `json:"member_id"`
	Name         string `json:"name"`
	OverdueCount int    `json:"overdue_count"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func money(d decimal.Decimal) string { return dues.RoundMoney(d).StringFixed(2) }

func datePtr(d *period.Date) *string {
	if d == nil || d.IsZero() {
		return nil
	}
	s := d.String()
	return &s
}

func toMemberDTO(p dues.Profile) MemberDTO {
	dto := MemberDTO{
		ID:           string(p.MemberID),
		Name:         p.Name,
		JoinDate:     p.JoinDate.String(),
		LeaveDate:    datePtr(p.LeaveDate),
		Interval:     string(p.Interval),
		FirstDueDate: datePtr(p.FirstDueDate),
	}
	if p.Contribution != nil {
		c := money(*p.Contribution)
		dto.Contribution = &c
	}
	return dto
}

func toDueItemDTOs(items []dues.DueItem) []DueItemDTO {
	out := make([]DueItemDTO, len(items))
	for i, it := range items {
		out[i] = DueItemDTO{
			Period:    it.Period.String(),
			Interval:  string(it.Interval),
			Amount:    money(it.Amount),
			Paid:      it.Paid,
			VoucherID: string(it.VoucherID),
			Verified:  it.Verified,
			Status:    string(it.Status),
		}
	}
	return out
}

func toStatusDTO(id dues.MemberID, asOf period.Date, st dues.MemberDuesStatus) StatusDTO {
	dto := StatusDTO{
		MemberID:     string(id),
		AsOf:         asOf.String(),
		State:        string(st.State),
		OverdueCount: st.OverdueCount,
		LastPaidDate: datePtr(st.LastPaidDate),
		FirstDueDate: datePtr(st.FirstDueDate),
	}
	if st.LastPaidPeriod != nil {
		k := st.LastPaidPeriod.String()
		dto.LastPaidPeriod = &k
	}
	return dto
}

func toTimelineDTOs(periods []dues.ClassifiedPeriod) []TimelineEntryDTO {
	out := make([]TimelineEntryDTO, len(periods))
	for i, cp := range periods {
		r := cp.Period.Range()
		out[i] = TimelineEntryDTO{
			Period: cp.Period.String(),
			Start:  r.Start.String(),
			End:    r.End.String(),
			Status: string(cp.Status),
		}
	}
	return out
}

func toPaymentDTO(rec dues.PaymentRecord) PaymentDTO {
	dto := PaymentDTO{
		ID:        rec.ID,
		MemberID:  string(rec.MemberID),
		Period:    rec.Period.String(),
		Interval:  string(rec.Period.Interval()),
		DatePaid:  rec.DatePaid.String(),
		Amount:    money(rec.Amount),
		VoucherID: string(rec.VoucherID),
		Verified:  rec.Verified,
	}
	if !rec.RecordedAt.IsZero() {
		dto.RecordedAt = rec.RecordedAt.UTC().Format(time.RFC3339)
	}
	return dto
}

func toPaymentDTOs(records []dues.PaymentRecord) []PaymentDTO {
	out := make([]PaymentDTO, len(records))
	for i, rec := range records {
		out[i] = toPaymentDTO(rec)
	}
	return out
}

func toAuditDTOs(entries []dues.AuditEntry) []AuditEntryDTO {
	out := make([]AuditEntryDTO, len(entries))
	for i, e := range entries {
		out[i] = AuditEntryDTO{
			ID:        e.ID,
			At:        e.At.UTC().Format(time.RFC3339),
			Actor:     e.Actor,
			Action:    string(e.Action),
			Period:    e.Period.String(),
			Amount:    money(e.Amount),
			VoucherID: string(e.VoucherID),
		}
	}
	return out
}

func toVoucherDTO(v dues.Voucher) VoucherDTO {
	return VoucherDTO{
		ID:           string(v.ID),
		Date:         v.Date.String(),
		Amount:       money(v.Amount),
		Description:  v.Description,
		Counterparty: v.Counterparty,
		Account:      v.Account,
	}
}

func toCandidateDTOs(cs []dues.Candidate) []CandidateDTO {
	out := make([]CandidateDTO, len(cs))
	for i, c := range cs {
		out[i] = CandidateDTO{
			Voucher:           toVoucherDTO(c.Voucher),
			ExactAmount:       c.ExactAmount,
			AmountDelta:       money(c.AmountDelta),
			DaysFromPeriodEnd: c.DaysFromPeriodEnd,
			LinkedTo:          toPaymentDTOs(c.LinkedTo),
		}
	}
	return out
}

func toSweepDTO(res SweepResult) SweepDTO {
	dto := SweepDTO{
		At:             res.At.UTC().Format(time.RFC3339),
		AsOf:           res.AsOf.String(),
		Members:        res.Members,
		OverdueMembers: len(res.Overdue),
		OverduePeriods: res.OverduePeriods,
		Overdue:        make([]OverdueMemberDTO, len(res.Overdue)),
	}
	for i, o := range res.Overdue {
		dto.Overdue[i] = OverdueMemberDTO{
			MemberID:     string(o.MemberID),
			Name:         o.Name,
			OverdueCount: o.OverdueCount,
		}
	}
	return dto
}

// toProfile converts a validated create request.
func (req CreateMemberRequest) toProfile() (dues.Profile, error) {
	p := dues.Profile{
		MemberID: dues.MemberID(req.ID),
		Name:     req.Name,
	}
	var err error
	if p.JoinDate, err = period.ParseDate(req.JoinDate); err != nil {
		return p, err
	}
	if req.LeaveDate != "" {
		d, err := period.ParseDate(req.LeaveDate)
		if err != nil {
			return p, err
		}
		p.LeaveDate = &d
	}
	if req.FirstDueDate != "" {
		d, err := period.ParseDate(req.FirstDueDate)
		if err != nil {
			return p, err
		}
		p.FirstDueDate = &d
	}
	if req.Contribution != "" {
		c, err := decimal.NewFromString(req.Contribution)
		if err != nil {
			return p, err
		}
		if c.IsNegative() {
			return p, dues.ErrInvalidAmount
		}
		p.Contribution = &c
	}
	if req.Interval != "" {
		if p.Interval, err = period.ParseInterval(req.Interval); err != nil {
			return p, err
		}
	}
	return p, nil
}

func (req CreateVoucherRequest) toVoucher() (dues.Voucher, error) {
	v := dues.Voucher{
		ID:           dues.VoucherID(req.ID),
		Description:  req.Description,
		Counterparty: req.Counterparty,
		Account:      req.Account,
	}
	var err error
	if v.Date, err = period.ParseDate(req.Date); err != nil {
		return v, err
	}
	if v.Amount, err = decimal.NewFromString(req.Amount); err != nil {
		return v, err
	}
	return v, nil
}
