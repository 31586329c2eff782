package builder

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"cotreporter/src/cache"
	"cotreporter/src/model"
	"cotreporter/src/presenter"
)

const testWeeks = model.HistoricalNetWeeks + 4

func newTestBuilder(t *testing.T) (*Builder, *cache.HistoricalNetCache, string) {
	t.Helper()
	catalog := model.NewCatalog()
	path := filepath.Join(t.TempDir(), "cache.json")
	netCache := cache.New(path)
	return New(presenter.New(catalog, netCache), catalog, netCache), netCache, path
}

func weekDate(weeksBack int) string {
	return time.Date(2024, 11, 5, 0, 0, 0, 0, time.UTC).
		AddDate(0, 0, -7*weeksBack).
		Format("2006-01-02")
}

// weeklyReports synthesizes weeks of history for one asset, newest first.
// The commercial net of week w is seed-w, so every window is predictable.
func weeklyReports(code string, seed, weeks int) []*model.Report {
	reports := make([]*model.Report, 0, weeks)
	for w := 0; w < weeks; w++ {
		reports = append(reports, &model.Report{
			ReportedDate:   weekDate(w),
			AssetCode:      code,
			Commercials:    model.NewCommercials(model.TraderGroup{Long: seed - w, Short: 0}),
			NonCommercials: model.NewNonCommercials(model.TraderGroup{Long: 1, Short: 1}),
			OpenInterest:   1000,
		})
	}
	return reports
}

func fullBatch(catalog *model.Catalog, weeks int) []*model.Report {
	var batch []*model.Report
	for i, asset := range catalog.All() {
		batch = append(batch, weeklyReports(asset.Code, -1000*(i+1), weeks)...)
	}
	return batch
}

func TestRecomputeAllAnnotatesEveryGroup(t *testing.T) {
	b, netCache, _ := newTestBuilder(t)

	updated, err := b.RecomputeAll(fullBatch(b.catalog, testWeeks))
	require.NoError(t, err)
	require.Len(t, updated, testWeeks*len(b.catalog.All()))

	byAsset := map[string][]*model.Report{}
	for _, report := range updated {
		byAsset[report.AssetCode] = append(byAsset[report.AssetCode], report)
	}
	for _, asset := range b.catalog.All() {
		group := byAsset[asset.Code]
		require.Len(t, group, testWeeks)

		// Only the reports with a full HistoricalNetWeeks of history
		// behind them get a window.
		withWindow := testWeeks - model.HistoricalNetWeeks + 1
		for i, report := range group {
			window := report.Commercials.HistoricalNet()
			if i < withWindow {
				require.Len(t, window, model.HistoricalNetWeeks)
				require.Equal(t, report.Commercials.Net(), window[0])
			} else {
				require.Nil(t, window)
			}
		}

		// The cached window is the latest report's window.
		cached, err := netCache.Window(asset.Code)
		require.NoError(t, err)
		require.Equal(t, group[0].Commercials.HistoricalNet(), cached)
	}
}

func TestRecomputeAllRequiresFullCatalogCoverage(t *testing.T) {
	b, _, path := newTestBuilder(t)

	seeded := []byte(`{"recent_commercial_historical_nets":{"AUD":"[1,2]"}}`)
	require.NoError(t, os.WriteFile(path, seeded, 0o644))

	batch := fullBatch(b.catalog, testWeeks)
	var withoutGold []*model.Report
	for _, report := range batch {
		if report.AssetCode != "XAU" {
			withoutGold = append(withoutGold, report)
		}
	}

	_, err := b.RecomputeAll(withoutGold)
	require.ErrorIs(t, err, ErrMissingAssetReports)
	require.Contains(t, err.Error(), "XAU")

	// A failed recompute never touches the durable cache.
	unchanged, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, seeded, unchanged)
}

func TestRefreshHistoricalNetCachePreconditions(t *testing.T) {
	b, _, path := newTestBuilder(t)

	latest := make([]*model.Report, 0, len(b.catalog.All()))
	for i, asset := range b.catalog.All() {
		group, err := b.recomputeGroupWindow(weeklyReports(asset.Code, -1000*(i+1), model.HistoricalNetWeeks))
		require.NoError(t, err)
		latest = append(latest, group[0])
	}

	t.Run("mixed reporting dates abort", func(t *testing.T) {
		skewed := make([]*model.Report, len(latest))
		copy(skewed, latest)
		stale := *skewed[0]
		stale.ReportedDate = weekDate(1)
		skewed[0] = &stale

		err := b.RefreshHistoricalNetCache(skewed)
		require.ErrorIs(t, err, ErrInconsistentReportedDate)
		_, statErr := os.Stat(path)
		require.True(t, os.IsNotExist(statErr))
	})

	t.Run("a complete single-date batch is stored", func(t *testing.T) {
		require.NoError(t, b.RefreshHistoricalNetCache(latest))

		raw, err := os.ReadFile(path)
		require.NoError(t, err)
		var document struct {
			Windows map[string]string `json:"recent_commercial_historical_nets"`
		}
		require.NoError(t, json.Unmarshal(raw, &document))
		require.Len(t, document.Windows, len(b.catalog.All()))
	})
}

func TestRecomputeGroupWindowRejectsForeignReports(t *testing.T) {
	b, _, _ := newTestBuilder(t)

	// The membership check runs as the loop reaches each report, so the
	// foreign report has to sit where a full window is still available.
	group := weeklyReports("AUD", -1000, model.HistoricalNetWeeks+1)
	group[1].AssetCode = "CAD"

	_, err := b.recomputeGroupWindow(group)
	require.ErrorIs(t, err, ErrGroupMismatch)
	require.Contains(t, err.Error(), "CAD")
}

func TestBuildFromFiles(t *testing.T) {
	b, netCache, _ := newTestBuilder(t)

	t.Run("rejects sources that are not txt or csv", func(t *testing.T) {
		_, err := b.BuildFromFiles([]string{"reports.dat"})
		require.Error(t, err)
		require.Contains(t, err.Error(), "txt or csv")
	})

	t.Run("converts and annotates a full export", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "annual.csv")
		require.NoError(t, os.WriteFile(path, []byte(exportCSV(b.catalog, testWeeks)), 0o644))

		reports, err := b.BuildFromFiles([]string{path})
		require.NoError(t, err)
		require.Len(t, reports, testWeeks*len(b.catalog.All()))

		for _, asset := range b.catalog.All() {
			cached, err := netCache.Window(asset.Code)
			require.NoError(t, err)
			require.Len(t, cached, model.HistoricalNetWeeks)
		}
	})
}

// exportCSV renders a tabular export covering every catalog asset for the
// given number of weeks, plus one row with an unknown contract code that
// file ingestion must drop silently.
func exportCSV(catalog *model.Catalog, weeks int) string {
	header := make([]string, 0, len(presenter.RequiredColumns))
	for _, name := range presenter.RequiredColumns {
		header = append(header, fmt.Sprintf("%q", name))
	}
	lines := []string{strings.Join(header, ",")}
	for i, asset := range catalog.All() {
		for w := 0; w < weeks; w++ {
			long := 100000 - 1000*(i+1) - w
			lines = append(lines, fmt.Sprintf(
				`"%s","%s","%d","%d","%d","%d","%d","%d","%d","%d","%d","%d"`,
				asset.CFTCCode, weekDate(w), 200000, 40000, 50000, long, 100000, -10, -20, -30, -40, -50,
			))
		}
	}
	lines = append(lines, fmt.Sprintf(
		`"999999","%s","1","1","1","1","1","1","1","1","1","1"`, weekDate(0),
	))
	return strings.Join(lines, "\n")
}
