package api_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/allowance-engine/api"
)

func TestListScenarios(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodGet, "/api/scenarios", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[[]api.ScenarioDTO](t, rec)
	require.NotEmpty(t, list)
	for _, sc := range list {
		assert.NotEmpty(t, sc.ID)
		assert.Equal(t, 2024, sc.Year)
		assert.Equal(t, 7, sc.Month)
	}
}

func TestLoadScenario_EveryScenarioLoads(t *testing.T) {
	s := newTestServer(t)
	list := decode[[]api.ScenarioDTO](t, s.do(http.MethodGet, "/api/scenarios", nil))

	for _, sc := range list {
		t.Run(sc.ID, func(t *testing.T) {
			rec := s.do(http.MethodPost, "/api/scenarios/load", api.LoadScenarioRequest{ScenarioID: sc.ID})
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

			rec = s.do(http.MethodGet, "/api/scenarios/current", nil)
			require.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, sc.ID, decode[api.ScenarioDTO](t, rec).ID)

			rec = s.do(http.MethodGet, "/api/periods/2024/7", nil)
			assert.Equal(t, http.StatusOK, rec.Code, "every scenario opens July")
		})
	}
}

func TestLoadScenario_Unknown(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodPost, "/api/scenarios/load", api.LoadScenarioRequest{ScenarioID: "nope"})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestScenario_FullMonth(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(http.MethodPost, "/api/scenarios/load", api.LoadScenarioRequest{ScenarioID: "full-month"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(http.MethodGet, "/api/citizens/1100700000001/calculation?year=2024&month=7", nil)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "1500.00", decode[api.CalculationDTO](t, rec).NetPayment)
}

func TestScenario_RetroactiveCarriedIntoJuly(t *testing.T) {
	// GIVEN: June paid at 1,000 and closed, then corrected to 1,500
	s := newTestServer(t)
	rec := s.do(http.MethodPost, "/api/scenarios/load", api.LoadScenarioRequest{ScenarioID: "retroactive"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// WHEN: July is recomputed
	rec = s.do(http.MethodPost, "/api/periods/2024/7/citizens/1100700000001/recompute", nil)

	// THEN: July pays 1,500 plus the 500 June difference
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	payout := decode[api.PayoutDTO](t, rec)
	assert.Equal(t, "1500.00", payout.CalculatedAmount)
	assert.Equal(t, "500.00", payout.RetroactiveAmount)
	assert.Equal(t, "2000.00", payout.TotalPayable)
	require.Len(t, payout.Items, 1)
	assert.Equal(t, "RETROACTIVE_ADD", payout.Items[0].ItemType)
	assert.Equal(t, 6, payout.Items[0].ReferenceMonth)

	// June itself can no longer be recomputed.
	rec = s.do(http.MethodPost, "/api/periods/2024/6/citizens/1100700000001/recompute", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestScenario_DepartmentRun(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(http.MethodPost, "/api/scenarios/load", api.LoadScenarioRequest{ScenarioID: "department-run"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(http.MethodPost, "/api/periods/2024/7/run", nil)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	report := decode[api.RunReportDTO](t, rec)
	assert.Equal(t, 3, report.Succeeded)
	assert.Equal(t, 0, report.Failed)

	totals := map[string]string{}
	for _, o := range report.Outcomes {
		totals[o.CitizenID] = o.TotalPayable
	}
	assert.Equal(t, "0.00", totals["1100700000003"], "no license, no pay")
}

func TestResetDatabase(t *testing.T) {
	s := newTestServer(t)
	require.Equal(t, http.StatusOK, s.do(http.MethodPost, "/api/scenarios/load", api.LoadScenarioRequest{ScenarioID: "full-month"}).Code)

	rec := s.do(http.MethodPost, "/api/scenarios/reset", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(http.MethodGet, "/api/scenarios/current", nil)
	assert.Equal(t, "null\n", rec.Body.String())
	rec = s.do(http.MethodGet, "/api/rates", nil)
	assert.Equal(t, "[]\n", rec.Body.String())
}
