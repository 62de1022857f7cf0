/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the database with realistic
	members, ledger entries and settlements. Each scenario demonstrates a
	specific dues situation. Dates are relative to the engine's today so a
	scenario looks the same whenever it is loaded.

AVAILABLE SCENARIOS:

	new-member:       Joined mid-month, everything but the current month paid
	overdue-member:   Stopped paying months ago
	quarterly-leaver: Quarterly billing, left at the end of last quarter
	honorary-member:  No contribution configured (status UNKNOWN)
	voucher-matching: Unsettled month with several candidate bank entries
	club:             All of the above at once

HOW SCENARIOS WORK:
 1. Reset database (clear all data, drop cached responses)
 2. Create members
 3. Record ledger entries (vouchers)
 4. Settle periods through the engine, so the audit trail is filled too

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "voucher-matching"}

NOTE:

	Scenarios reset the database. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: ResetDatabase
*/
package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/warp/dues-engine/dues"
	"github.com/warp/dues-engine/period"
)

const scenarioActor = "scenario"

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "new-member",
		Name:        "New Member",
		Description: "Monthly member who joined mid-month; all past months settled",
		Category:    "monthly",
	},
	{
		ID:          "overdue-member",
		Name:        "Overdue Member",
		Description: "Monthly member who stopped paying after four months",
		Category:    "monthly",
	},
	{
		ID:          "quarterly-leaver",
		Name:        "Quarterly Leaver",
		Description: "Quarterly billing with a leave date at the end of last quarter",
		Category:    "quarterly",
	},
	{
		ID:          "honorary-member",
		Name:        "Honorary Member",
		Description: "No contribution configured; status is UNKNOWN",
		Category:    "special",
	},
	{
		ID:          "voucher-matching",
		Name:        "Voucher Matching",
		Description: "Unsettled month with exact, near and unrelated bank entries",
		Category:    "ledger",
	},
	{
		ID:          "club",
		Name:        "Whole Club",
		Description: "All scenarios loaded together",
		Category:    "mixed",
	},
}

type scenarioLoader func(h *Handler, ctx context.Context, today period.Date) error

var scenarioLoaders = map[string]scenarioLoader{
	"new-member":       (*Handler).loadNewMemberScenario,
	"overdue-member":   (*Handler).loadOverdueMemberScenario,
	"quarterly-leaver": (*Handler).loadQuarterlyLeaverScenario,
	"honorary-member":  (*Handler).loadHonoraryMemberScenario,
	"voucher-matching": (*Handler).loadVoucherMatchingScenario,
	"club":             (*Handler).loadClubScenario,
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()

	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, nil)
}

// LoadScenario loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	loader, ok := scenarioLoaders[req.ScenarioID]
	if !ok {
		writeError(w, http.StatusBadRequest, "Unknown scenario", fmt.Errorf("scenario %q", req.ScenarioID))
		return
	}

	ctx := r.Context()
	if err := h.reset(ctx); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	if err := loader(h, ctx, h.Engine.Today()); err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to load scenario: %v", err), err)
		return
	}

	h.mu.Lock()
	h.currentScenario = req.ScenarioID
	h.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": req.ScenarioID})
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

// loadNewMemberScenario: joined on the 15th three months ago, pays 10.00
// monthly by bank transfer a few days into each month.
func (h *Handler) loadNewMemberScenario(ctx context.Context, today period.Date) error {
	join := period.NewDate(today.Year(), today.Month(), 15).AddMonths(-3)
	p := monthlyMember("new-member", "Nina Neumann", join, "10.00")
	if err := h.Store.SaveProfile(ctx, p); err != nil {
		return err
	}

	first := p.FirstDueKey()
	n, err := period.Steps(first, period.KeyOf(today, period.Monthly))
	if err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		k := first.Add(i)
		paid := k.Range().Start.AddDays(3)
		voucher := dues.Voucher{
			ID:           dues.VoucherID("nm-" + k.String()),
			Date:         paid,
			Amount:       dues.MustMoney("10.00"),
			Description:  "Membership " + k.String(),
			Counterparty: "NEUMANN, NINA",
			Account:      "1200",
		}
		if err := h.settleWithVoucher(ctx, p.MemberID, k, voucher); err != nil {
			return err
		}
	}
	return nil
}

// loadOverdueMemberScenario: joined a year ago, paid the first four
// months, nothing since.
func (h *Handler) loadOverdueMemberScenario(ctx context.Context, today period.Date) error {
	join := period.StartOfMonth(today.Year(), today.Month()).AddYears(-1)
	p := monthlyMember("overdue-member", "Otto Olbrich", join, "12.50")
	if err := h.Store.SaveProfile(ctx, p); err != nil {
		return err
	}

	k := p.FirstDueKey()
	for i := 0; i < 4; i++ {
		if _, err := h.Engine.MarkPaid(ctx, dues.MarkPaidCommand{
			MemberID: p.MemberID,
			Period:   k,
			Amount:   p.Amount(),
			DatePaid: k.Range().Start,
			Actor:    scenarioActor,
		}); err != nil {
			return err
		}
		k = k.Next()
	}
	return nil
}

// loadQuarterlyLeaverScenario: quarterly 30.00 for two years, left at the
// end of last quarter with that quarter still open.
func (h *Handler) loadQuarterlyLeaverScenario(ctx context.Context, today period.Date) error {
	current := period.KeyOf(today, period.Quarterly)
	last := current.Prev()
	leave := last.Range().End
	join := current.Add(-8).Range().Start

	contribution := dues.MustMoney("30.00")
	p := dues.Profile{
		MemberID:     "quarterly-leaver",
		Name:         "Quirin Quast",
		JoinDate:     join,
		LeaveDate:    &leave,
		Contribution: &contribution,
		Interval:     period.Quarterly,
	}
	if err := h.Store.SaveProfile(ctx, p); err != nil {
		return err
	}

	first := p.FirstDueKey()
	n, err := period.Steps(first, last)
	if err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		k := first.Add(i)
		if _, err := h.Engine.MarkPaid(ctx, dues.MarkPaidCommand{
			MemberID: p.MemberID,
			Period:   k,
			Amount:   contribution,
			DatePaid: k.Range().Start.AddDays(10),
			Verified: true,
			Actor:    scenarioActor,
		}); err != nil {
			return err
		}
	}
	return nil
}

// loadHonoraryMemberScenario: a member without any contribution.
func (h *Handler) loadHonoraryMemberScenario(ctx context.Context, today period.Date) error {
	return h.Store.SaveProfile(ctx, dues.Profile{
		MemberID: "honorary-member",
		Name:     "Hanna Hofmann",
		JoinDate: today.AddYears(-20),
	})
}

// loadVoucherMatchingScenario: last month is unsettled; the ledger holds
// an exact transfer, a slightly off one, an unrelated donation and an
// entry already used for the month before.
func (h *Handler) loadVoucherMatchingScenario(ctx context.Context, today period.Date) error {
	join := period.StartOfMonth(today.Year(), today.Month()).AddMonths(-2)
	p := monthlyMember("matching-member", "Max Müller", join, "10.00")
	if err := h.Store.SaveProfile(ctx, p); err != nil {
		return err
	}

	first := p.FirstDueKey()
	open := first.Next()
	linked := dues.Voucher{
		ID: "vm-1", Date: first.Range().End.AddDays(-1), Amount: dues.MustMoney("10.00"),
		Description: "Beitrag " + first.String(), Counterparty: "MÜLLER, MAX", Account: "1200",
	}
	if err := h.settleWithVoucher(ctx, p.MemberID, first, linked); err != nil {
		return err
	}

	end := open.Range().End
	for _, v := range []dues.Voucher{
		{ID: "vm-2", Date: end.AddDays(-2), Amount: dues.MustMoney("10.00"), Description: "Beitrag " + open.String(), Counterparty: "MÜLLER, MAX", Account: "1200"},
		{ID: "vm-3", Date: end.AddDays(1), Amount: dues.MustMoney("10.50"), Description: "Mitgliedsbeitrag inkl. Gebühr", Counterparty: "M. MUELLER", Account: "1200"},
		{ID: "vm-4", Date: end.AddDays(-10), Amount: dues.MustMoney("50.00"), Description: "Spende Sommerfest", Counterparty: "MÜLLER, MAX", Account: "1300"},
		{ID: "vm-5", Date: end.AddDays(-5), Amount: dues.MustMoney("-10.00"), Description: "Rücklastschrift", Counterparty: "BANK", Account: "1200"},
	} {
		if err := h.Store.AddVoucher(ctx, v); err != nil {
			return err
		}
	}
	return nil
}

func (h *Handler) loadClubScenario(ctx context.Context, today period.Date) error {
	steps := []struct {
		id   string
		load func(context.Context, period.Date) error
	}{
		{"new-member", h.loadNewMemberScenario},
		{"overdue-member", h.loadOverdueMemberScenario},
		{"quarterly-leaver", h.loadQuarterlyLeaverScenario},
		{"honorary-member", h.loadHonoraryMemberScenario},
		{"voucher-matching", h.loadVoucherMatchingScenario},
	}
	for _, step := range steps {
		if err := step.load(ctx, today); err != nil {
			return fmt.Errorf("%s: %w", step.id, err)
		}
	}
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

func monthlyMember(id, name string, join period.Date, amount string) dues.Profile {
	contribution := dues.MustMoney(amount)
	return dues.Profile{
		MemberID:     dues.MemberID(id),
		Name:         name,
		JoinDate:     join,
		Contribution: &contribution,
		Interval:     period.Monthly,
	}
}

// settleWithVoucher records the ledger entry and settles the period with it.
func (h *Handler) settleWithVoucher(ctx context.Context, id dues.MemberID, k period.Key, v dues.Voucher) error {
	if err := h.Store.AddVoucher(ctx, v); err != nil {
		return err
	}
	_, err := h.Engine.MarkPaid(ctx, dues.MarkPaidCommand{
		MemberID:  id,
		Period:    k,
		Amount:    v.Amount.Abs(),
		DatePaid:  v.Date,
		VoucherID: v.ID,
		Actor:     scenarioActor,
	})
	return err
}
