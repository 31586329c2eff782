package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"cotreporter/src/cache"
	"cotreporter/src/connectors"
	"cotreporter/src/model"
	"cotreporter/src/presenter"
	"cotreporter/src/service"
)

type stubStore struct {
	rows []model.ReportRow
	err  error
}

func (s *stubStore) FetchReportsBy(context.Context, []string, []string) ([]model.ReportRow, error) {
	return s.rows, s.err
}

func (s *stubStore) InsertReports(context.Context, []*model.Report) error {
	return nil
}

type stubProvider struct{}

func (stubProvider) FetchLatestReport(context.Context, string) ([]connectors.SocrataRecord, error) {
	return nil, errors.New("unreachable")
}

func newTestServer(t *testing.T, store *stubStore) *Server {
	t.Helper()
	catalog := model.NewCatalog()
	netCache := cache.New(filepath.Join(t.TempDir(), "cache.json"))
	fetchService := service.New(store, stubProvider{}, presenter.New(catalog, netCache))
	return NewServer(fetchService, catalog)
}

func TestHandleLatest(t *testing.T) {
	document := `{"open_interest":177416,"open_interest_change":-6561,` +
		`"commercials":{"long":59108,"long_change":1301,"short":90867,"short_change":-4798,"cot_index":11},` +
		`"noncommercials":{"long":40000,"long_change":-2189,"short":50000,"short_change":-5649}}`
	store := &stubStore{rows: []model.ReportRow{{
		AssetCode:  "AUD",
		ReportDate: "2024-11-05",
		ReportData: document,
	}}}
	s := newTestServer(t, store)

	decode := func(t *testing.T, handler http.HandlerFunc) []map[string]interface{} {
		t.Helper()
		recorder := httptest.NewRecorder()
		handler(recorder, httptest.NewRequest(http.MethodGet, "/reports/latest", nil))
		require.Equal(t, http.StatusOK, recorder.Code)
		require.Equal(t, "application/json", recorder.Header().Get("Content-Type"))

		var views []map[string]interface{}
		require.NoError(t, json.NewDecoder(recorder.Body).Decode(&views))
		require.Len(t, views, 1)
		return views
	}

	t.Run("plain view", func(t *testing.T) {
		view := decode(t, s.handleLatest(true, false))[0]
		require.Equal(t, "AUD", view["asset_code"])
		require.Equal(t, "2024-11-05", view["reported_date"])

		commercials, ok := view["commercials"].(map[string]interface{})
		require.True(t, ok)
		require.NotContains(t, commercials, "cot_index")
	})

	t.Run("enhanced view carries the derived figures", func(t *testing.T) {
		view := decode(t, s.handleLatest(true, true))[0]

		commercials, ok := view["commercials"].(map[string]interface{})
		require.True(t, ok)
		require.Equal(t, float64(11), commercials["cot_index"])

		noncommercials, ok := view["noncommercials"].(map[string]interface{})
		require.True(t, ok)
		require.Contains(t, noncommercials, "sentiment")
	})
}

func TestHandleLatestWhenNoReportIsAvailable(t *testing.T) {
	s := newTestServer(t, &stubStore{err: errors.New("connection refused")})

	recorder := httptest.NewRecorder()
	s.handleLatest(true, true)(recorder, httptest.NewRequest(http.MethodGet, "/reports/latest/enhanced", nil))

	require.Equal(t, http.StatusBadGateway, recorder.Code)
}
