package builder

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	logger "github.com/sirupsen/logrus"

	"cotreporter/src/cache"
	"cotreporter/src/model"
	"cotreporter/src/presenter"
)

var (
	// ErrMissingAssetReports is returned when a catalog asset has no
	// report in the supplied batch.
	ErrMissingAssetReports = errors.New("a reported asset is missing from the supplied reports")

	// ErrInconsistentReportedDate is returned when the most recent
	// reports of a batch do not share one reporting date.
	ErrInconsistentReportedDate = errors.New("the latest reports do not share one reported date")

	// ErrGroupMismatch is returned when a report inside one asset's group
	// carries a different asset code. It indicates improperly filtered
	// input and aborts the batch.
	ErrGroupMismatch = errors.New("report does not belong to this asset group")
)

// Builder turns freshly parsed report batches into the same reports
// annotated with correct COT Index values, and refreshes the durable
// historical net cache from the newest week.
type Builder struct {
	presenter *presenter.Presenter
	catalog   *model.Catalog
	cache     *cache.HistoricalNetCache
}

// New builds a report builder.
func New(reportPresenter *presenter.Presenter, catalog *model.Catalog, netCache *cache.HistoricalNetCache) *Builder {
	return &Builder{presenter: reportPresenter, catalog: catalog, cache: netCache}
}

// BuildFromFiles reads every tabular source file, converts all rows with
// unmatched contract codes suppressed, and recomputes the rolling window
// and COT Index of every group.
func (b *Builder) BuildFromFiles(paths []string) ([]*model.Report, error) {
	var reports []*model.Report
	for _, path := range paths {
		if !strings.HasSuffix(path, ".txt") && !strings.HasSuffix(path, ".csv") {
			return nil, fmt.Errorf("report source %q should be a txt or csv file", path)
		}
		file, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open report source: %w", err)
		}
		converted, err := b.presenter.FromCSV(file, true)
		file.Close()
		if err != nil {
			return nil, fmt.Errorf("convert report source %q: %w", path, err)
		}
		reports = append(reports, converted...)
	}
	return b.RecomputeAll(reports)
}

// RecomputeAll partitions the reports by asset against the full catalog,
// recomputes each group's windows, and refreshes the historical net cache
// from the most recent report of every asset. Full catalog coverage is a
// hard precondition: the cache must never be refreshed from an incomplete
// week.
func (b *Builder) RecomputeAll(reports []*model.Report) ([]*model.Report, error) {
	byAsset := map[string][]*model.Report{}
	for _, report := range reports {
		byAsset[report.AssetCode] = append(byAsset[report.AssetCode], report)
	}
	for _, asset := range b.catalog.All() {
		if len(byAsset[asset.Code]) == 0 {
			return nil, fmt.Errorf("%w: %s", ErrMissingAssetReports, asset.Code)
		}
	}

	var updated []*model.Report
	var latest []*model.Report
	for _, asset := range b.catalog.All() {
		group, err := b.recomputeGroupWindow(byAsset[asset.Code])
		if err != nil {
			return nil, err
		}
		updated = append(updated, group...)
		latest = append(latest, group[0])
	}

	if err := b.RefreshHistoricalNetCache(latest); err != nil {
		logger.WithField("component", "Builder").
			WithError(err).Error("Failed to cache the historical nets of the latest reports")
		return nil, err
	}
	return updated, nil
}

// recomputeGroupWindow sorts one asset's reports by date descending and
// installs a fresh window on every report that still has a full
// HistoricalNetWeeks of history behind it. Once the remaining history is
// too short the loop stops; older reports keep whatever window they had.
func (b *Builder) recomputeGroupWindow(reports []*model.Report) ([]*model.Report, error) {
	sorted := make([]*model.Report, len(reports))
	copy(sorted, reports)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].ReportedDate > sorted[j].ReportedDate
	})

	groupCode := sorted[0].AssetCode
	for i, report := range sorted {
		if report.AssetCode != groupCode {
			return nil, fmt.Errorf(
				"%w: report of %s on %s inside the %s group",
				ErrGroupMismatch, report.AssetCode, report.ReportedDate, groupCode,
			)
		}
		end := i + model.HistoricalNetWeeks
		if end > len(sorted) {
			end = len(sorted)
		}
		window := make([]int, 0, end-i)
		for _, historical := range sorted[i:end] {
			window = append(window, historical.Commercials.Net())
		}
		if err := report.Commercials.SetHistoricalNet(window); err != nil {
			if errors.Is(err, model.ErrInvalidWindow) {
				logger.WithFields(map[string]interface{}{
					"component": "Builder",
					"group":     groupCode,
					"from":      report.ReportedDate,
				}).WithError(err).Debug("Not enough history left, keeping remaining windows untouched")
				break
			}
			return nil, err
		}
	}
	return sorted, nil
}

// RefreshHistoricalNetCache overwrites the cached window of every asset
// with the window of its latest report and writes the document back in one
// step. The batch must cover the full catalog and share one reporting
// date; a violated precondition aborts with the document untouched.
func (b *Builder) RefreshHistoricalNetCache(latest []*model.Report) error {
	covered := map[string]bool{}
	dates := map[string]bool{}
	for _, report := range latest {
		covered[report.AssetCode] = true
		dates[report.ReportedDate] = true
	}
	for _, asset := range b.catalog.All() {
		if !covered[asset.Code] {
			return fmt.Errorf("%w: the latest report of %s is absent", ErrMissingAssetReports, asset.Code)
		}
	}
	if len(dates) != 1 {
		return fmt.Errorf("%w: got %d distinct dates", ErrInconsistentReportedDate, len(dates))
	}

	windows := map[string][]int{}
	for _, report := range latest {
		windows[report.AssetCode] = report.Commercials.HistoricalNet()
	}
	return b.cache.ReplaceAll(windows)
}
