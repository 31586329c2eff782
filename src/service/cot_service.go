package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	logger "github.com/sirupsen/logrus"

	"cotreporter/src/connectors"
	"cotreporter/src/model"
	"cotreporter/src/presenter"
	"cotreporter/src/repository"
)

// ErrNotImplemented is returned by operations that exist on the service
// surface but have no implementation yet.
var ErrNotImplemented = errors.New("historical report fetching is not implemented")

// Store is the slice of the persistence gateway the service consumes.
type Store interface {
	FetchReportsBy(ctx context.Context, assetCodes, releasedDates []string) ([]model.ReportRow, error)
	InsertReports(ctx context.Context, reports []*model.Report) error
}

// Provider is the external data provider the service falls back to when
// the local store has no report for the expected release date.
type Provider interface {
	FetchLatestReport(ctx context.Context, where string) ([]connectors.SocrataRecord, error)
}

// Service fetches the latest weekly reports with a local-first strategy:
// the store is tried for the expected release date, and only on a miss is
// the external provider queried, converted, and persisted.
type Service struct {
	store     Store
	provider  Provider
	presenter *presenter.Presenter

	now func() time.Time
}

// New builds a fetch service.
func New(store Store, provider Provider, reportPresenter *presenter.Presenter) *Service {
	return &Service{
		store:     store,
		provider:  provider,
		presenter: reportPresenter,
		now:       time.Now,
	}
}

// FetchLatestReport returns the latest report of every given asset. A
// local miss is an expected condition and falls through to the provider;
// once both phases are exhausted the failure is logged and surfaced.
func (s *Service) FetchLatestReport(ctx context.Context, assets []model.Asset) ([]*model.Report, error) {
	releaseDate := s.ExpectedReleaseDate()

	codes := make([]string, 0, len(assets))
	for _, asset := range assets {
		codes = append(codes, asset.Code)
	}

	rows, err := s.store.FetchReportsBy(ctx, codes, []string{releaseDate})
	if err == nil {
		return s.presenter.FromStoredRows(rows)
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}
	logger.WithFields(map[string]interface{}{
		"component":    "Service",
		"release_date": releaseDate,
	}).Info("Local COT report is outdated, will try fetching from the provider")

	reports, err := s.fetchFromProvider(ctx, assets, releaseDate)
	if err != nil {
		logger.WithField("component", "Service").
			WithError(err).Error("COT reports could not be fetched from either the local repository or the provider")
		return nil, err
	}
	return reports, nil
}

// FetchHistoricalReport fetches the reports of the given assets from
// startDate going back nWeeks weekly filings.
func (s *Service) FetchHistoricalReport(ctx context.Context, assets []model.Asset, startDate string, nWeeks int) ([]*model.Report, error) {
	return nil, ErrNotImplemented
}

func (s *Service) fetchFromProvider(ctx context.Context, assets []model.Asset, releaseDate string) ([]*model.Report, error) {
	quoted := make([]string, 0, len(assets))
	for _, asset := range assets {
		quoted = append(quoted, "'"+asset.CFTCCode+"'")
	}
	where := fmt.Sprintf(
		"report_date_as_yyyy_mm_dd >= '%sT00:00:00.000' AND cftc_contract_market_code IN (%s)",
		releaseDate, strings.Join(quoted, ", "),
	)

	records, err := s.provider.FetchLatestReport(ctx, where)
	if err != nil {
		return nil, err
	}
	reports, err := s.presenter.FromAPIRecords(records)
	if err != nil {
		return nil, err
	}
	if err := s.store.InsertReports(ctx, reports); err != nil {
		return nil, err
	}
	return reports, nil
}

// ExpectedReleaseDate computes the reporting date of the most recently
// released filing: reports are released on Fridays reflecting the prior
// Tuesday's positions, with availability confirmed after 15:30 on release
// day. The weekday arithmetic must not change: the stored report dates
// were produced with it.
func (s *Service) ExpectedReleaseDate() string {
	now := s.now()
	weekday := (int(now.Weekday()) + 6) % 7 // Monday=0 .. Sunday=6
	daysSinceFriday := weekday % 4
	if daysSinceFriday == 4 && now.Format("15:04") > "15:30" {
		daysSinceFriday = 6
	}
	recentFriday := now.AddDate(0, 0, -daysSinceFriday)
	releaseDate := recentFriday.AddDate(0, 0, -3)
	return releaseDate.Format("2006-01-02")
}
