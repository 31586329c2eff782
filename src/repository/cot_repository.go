package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	logger "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"cotreporter/src/database"
	"cotreporter/src/model"
)

// ErrNotFound is returned when a filtered report lookup matches no rows.
// Callers treat it as an expected miss, not a failure.
var ErrNotFound = errors.New("no report was found")

const (
	// deadlockRetries and deadlockBackoff bound the retry budget for
	// transient deadlocks on single-report inserts.
	deadlockRetries = 3
	deadlockBackoff = 1 * time.Second

	// seedWorkers bounds the per-item fan-out of table seeding. It must
	// stay below the connection pool's max open connections.
	seedWorkers = 8
)

// COTRepository handles storing and fetching reports and the asset
// reference table.
type COTRepository struct {
	db *gorm.DB
}

// NewCOTRepository creates a new repository on the main database.
func NewCOTRepository() *COTRepository {
	logger.WithField("component", "COTRepository").
		Info("Creating new COTRepository on MainDB")

	return &COTRepository{db: database.MainDB}
}

// WithDB allows overriding the underlying *gorm.DB instance. Useful for
// tests or custom sessions/transactions.
func (r *COTRepository) WithDB(db *gorm.DB) *COTRepository {
	return &COTRepository{db: db}
}

// BuildAssetsTable migrates the asset reference table and seeds it with
// the given assets. Seeding is idempotent: an asset that already exists is
// logged and skipped.
func (r *COTRepository) BuildAssetsTable(ctx context.Context, assets []model.Asset) error {
	if err := r.db.WithContext(ctx).AutoMigrate(&model.AssetRow{}); err != nil {
		return fmt.Errorf("migrate assets table: %w", err)
	}

	var group errgroup.Group
	group.SetLimit(seedWorkers)
	for _, asset := range assets {
		asset := asset
		group.Go(func() error {
			return r.putAsset(ctx, asset)
		})
	}
	if err := group.Wait(); err != nil {
		logger.WithField("component", "COTRepository").
			WithError(err).Error("Error while building assets table")
		return err
	}
	return nil
}

func (r *COTRepository) putAsset(ctx context.Context, asset model.Asset) error {
	row := model.AssetRow{Code: asset.Code, Name: asset.Name, CFTCCode: asset.CFTCCode}
	err := r.db.WithContext(ctx).Create(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			logger.WithFields(map[string]interface{}{
				"component": "COTRepository",
				"asset":     asset.Code,
			}).Warn("Asset already exists, skipping insertion")
			return nil
		}
		return fmt.Errorf("insert asset %s: %w", asset.Code, err)
	}
	return nil
}

// BuildReportTable migrates the report table and fills it with the given
// reports through the idempotent single-report insert.
func (r *COTRepository) BuildReportTable(ctx context.Context, reports []*model.Report) error {
	if err := r.db.WithContext(ctx).AutoMigrate(&model.ReportRow{}); err != nil {
		return fmt.Errorf("migrate reports table: %w", err)
	}

	var group errgroup.Group
	group.SetLimit(seedWorkers)
	for _, report := range reports {
		report := report
		group.Go(func() error {
			return r.PutReport(ctx, report)
		})
	}
	if err := group.Wait(); err != nil {
		logger.WithField("component", "COTRepository").
			WithError(err).Error("Failed to build report table")
		return err
	}
	return nil
}

// PutReport inserts one report unless a row for the same asset and date
// already exists. A transient deadlock is retried up to deadlockRetries
// times with a fixed backoff, then surfaced.
func (r *COTRepository) PutReport(ctx context.Context, report *model.Report) error {
	row, err := rowFromReport(report)
	if err != nil {
		return err
	}

	for attempt := 1; ; attempt++ {
		var count int64
		err := r.db.WithContext(ctx).
			Model(&model.ReportRow{}).
			Where("asset_code = ? AND report_date = ?", report.AssetCode, report.ReportedDate).
			Count(&count).Error
		if err == nil && count > 0 {
			logger.WithFields(map[string]interface{}{
				"component":   "COTRepository",
				"asset":       report.AssetCode,
				"report_date": report.ReportedDate,
			}).Info("Report already exists, skipping insertion")
			return nil
		}
		if err == nil {
			err = r.db.WithContext(ctx).Create(&row).Error
		}
		if err == nil {
			return nil
		}
		if !isDeadlock(err) {
			return fmt.Errorf("insert report of %s on %s: %w", report.AssetCode, report.ReportedDate, err)
		}
		if attempt >= deadlockRetries {
			return fmt.Errorf("insert report of %s on %s after %d deadlocked attempts: %w",
				report.AssetCode, report.ReportedDate, attempt, err)
		}
		logger.WithFields(map[string]interface{}{
			"component": "COTRepository",
			"attempt":   attempt,
			"retries":   deadlockRetries,
		}).Warn("Deadlock detected, retrying")
		time.Sleep(deadlockBackoff)
	}
}

// InsertReports bulk-inserts the given reports with no idempotency check.
// The caller must pre-filter duplicates.
func (r *COTRepository) InsertReports(ctx context.Context, reports []*model.Report) error {
	rows := make([]model.ReportRow, 0, len(reports))
	for _, report := range reports {
		row, err := rowFromReport(report)
		if err != nil {
			return err
		}
		rows = append(rows, row)
	}
	if len(rows) == 0 {
		return nil
	}
	if err := r.db.WithContext(ctx).Create(&rows).Error; err != nil {
		logger.WithField("component", "COTRepository").
			WithError(err).Error("Failed to insert reports")
		return fmt.Errorf("insert reports: %w", err)
	}
	return nil
}

// FetchReportsBy returns the stored rows matching the filters. The date
// filter is applied at the store; the asset-code filter is applied
// afterward in memory. Zero matching rows yield ErrNotFound, as does an
// empty date filter, without touching the store.
func (r *COTRepository) FetchReportsBy(ctx context.Context, assetCodes, releasedDates []string) ([]model.ReportRow, error) {
	if len(releasedDates) == 0 {
		return nil, fmt.Errorf("%w: no release dates to look up", ErrNotFound)
	}

	var rows []model.ReportRow
	query := r.db.WithContext(ctx).Where("report_date IN ?", releasedDates)
	if err := query.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("fetch reports: %w", err)
	}

	if len(assetCodes) > 0 {
		wanted := map[string]bool{}
		for _, code := range assetCodes {
			wanted[code] = true
		}
		filtered := rows[:0]
		for _, row := range rows {
			if wanted[row.AssetCode] {
				filtered = append(filtered, row)
			}
		}
		rows = filtered
	}

	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	return rows, nil
}

// rowFromReport serializes the full report document into its persisted
// shape.
func rowFromReport(report *model.Report) (model.ReportRow, error) {
	document, err := report.ToDict(true, true)
	if err != nil {
		return model.ReportRow{}, fmt.Errorf("serialize report of %s: %w", report.AssetCode, err)
	}
	raw, err := json.Marshal(document)
	if err != nil {
		return model.ReportRow{}, fmt.Errorf("encode report of %s: %w", report.AssetCode, err)
	}
	return model.ReportRow{
		AssetCode:  report.AssetCode,
		ReportDate: report.ReportedDate,
		ReportData: string(raw),
	}, nil
}

func isDeadlock(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "deadlock")
}
