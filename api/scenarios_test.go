/*
scenarios_test.go - Unit tests for demo scenarios

PURPOSE:
	Tests that each scenario correctly sets up the expected state:
	- Members are created
	- Ledger entries are recorded
	- Settlements produce the advertised dues status

Engine clock is fixed at 2025-04-10 (see newTestServer).
*/
package api

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (ts *testServer) loadScenario(t *testing.T, id string) {
	t.Helper()
	rec := ts.do(t, http.MethodPost, "/api/scenarios/load", LoadScenarioRequest{ScenarioID: id})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func (ts *testServer) status(t *testing.T, id string) StatusDTO {
	t.Helper()
	rec := ts.do(t, http.MethodGet, "/api/members/"+id+"/status", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return decode[StatusDTO](t, rec)
}

func TestScenario_NewMember(t *testing.T) {
	// GIVEN: New member scenario
	// WHEN: Loading the scenario
	// THEN: Jan..Mar settled with vouchers, April current

	ts := newTestServer(t, nil)
	ts.loadScenario(t, "new-member")

	st := ts.status(t, "new-member")
	assert.Equal(t, "OK", st.State)
	require.NotNil(t, st.LastPaidPeriod)
	assert.Equal(t, "2025-03", *st.LastPaidPeriod)

	rec := ts.do(t, http.MethodGet, "/api/vouchers", nil)
	assert.Len(t, decode[[]VoucherDTO](t, rec), 3)

	rec = ts.do(t, http.MethodGet, "/api/members/new-member/dues", nil)
	items := decode[DuesResponse](t, rec).Items
	require.Len(t, items, 4)
	assert.Equal(t, "nm-2025-01", items[0].VoucherID)
	assert.Equal(t, "CURRENT", items[3].Status)
}

func TestScenario_OverdueMember(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.loadScenario(t, "overdue-member")

	st := ts.status(t, "overdue-member")
	assert.Equal(t, "OVERDUE", st.State)
	assert.Equal(t, 8, st.OverdueCount)
	require.NotNil(t, st.LastPaidPeriod)
	assert.Equal(t, "2024-07", *st.LastPaidPeriod)
}

func TestScenario_QuarterlyLeaver(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.loadScenario(t, "quarterly-leaver")

	rec := ts.do(t, http.MethodGet, "/api/members/quarterly-leaver/dues", nil)
	items := decode[DuesResponse](t, rec).Items
	require.Len(t, items, 8, "nothing after the leave date")
	assert.Equal(t, "2023-Q2", items[0].Period)
	assert.Equal(t, "30.00", items[0].Amount)
	assert.True(t, items[0].Verified)
	assert.Equal(t, "2025-Q1", items[7].Period)
	assert.Equal(t, "OVERDUE", items[7].Status)

	st := ts.status(t, "quarterly-leaver")
	assert.Equal(t, 1, st.OverdueCount)
}

func TestScenario_HonoraryMember(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.loadScenario(t, "honorary-member")

	assert.Equal(t, "UNKNOWN", ts.status(t, "honorary-member").State)
}

func TestScenario_VoucherMatching(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.loadScenario(t, "voucher-matching")

	rec := ts.do(t, http.MethodGet, "/api/members/matching-member/payments/2025-03/matches", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	cs := decode[[]CandidateDTO](t, rec)
	ids := make([]string, len(cs))
	for i, c := range cs {
		ids[i] = c.Voucher.ID
	}
	assert.Equal(t, []string{"vm-2", "vm-5", "vm-1", "vm-3"}, ids)
	require.Len(t, cs[2].LinkedTo, 1)
	assert.Equal(t, "2025-02", cs[2].LinkedTo[0].Period)
}

func TestScenario_ClubAndReset(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.loadScenario(t, "club")

	rec := ts.do(t, http.MethodGet, "/api/members", nil)
	assert.Len(t, decode[[]MemberDTO](t, rec), 5)

	rec = ts.do(t, http.MethodGet, "/api/scenarios/current", nil)
	assert.Equal(t, "club", decode[ScenarioDTO](t, rec).ID)

	rec = ts.do(t, http.MethodPost, "/api/scenarios/reset", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/members", nil)
	assert.Empty(t, decode[[]MemberDTO](t, rec))
}

func TestScenario_Unknown(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(t, http.MethodPost, "/api/scenarios/load", LoadScenarioRequest{ScenarioID: "nope"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/scenarios", nil)
	assert.Len(t, decode[[]ScenarioDTO](t, rec), len(scenarios))
}
