package ingest

import (
	"context"
	"fmt"

	logger "github.com/sirupsen/logrus"

	"cotreporter/src/builder"
	"cotreporter/src/cache"
	"cotreporter/src/database"
	"cotreporter/src/model"
	"cotreporter/src/presenter"
	"cotreporter/src/repository"
)

// Run builds reports from the given tabular source files, seeds the asset
// reference table, and fills the report table through the idempotent
// insert path.
func Run(ctx context.Context, sourceFiles []string) error {
	if len(sourceFiles) == 0 {
		return fmt.Errorf("at least one report source file is required")
	}

	if err := database.InitMainDB(); err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}

	config := GetConfig()
	catalog := model.NewCatalog()
	netCache := cache.New(config.CacheFile)
	reportBuilder := builder.New(presenter.New(catalog, netCache), catalog, netCache)

	reports, err := reportBuilder.BuildFromFiles(sourceFiles)
	if err != nil {
		return fmt.Errorf("build reports: %w", err)
	}
	logger.WithField("reports", len(reports)).Info("Built reports from source files")

	repo := repository.NewCOTRepository()
	if err := repo.BuildAssetsTable(ctx, catalog.All()); err != nil {
		return fmt.Errorf("build assets table: %w", err)
	}
	if err := repo.BuildReportTable(ctx, reports); err != nil {
		return fmt.Errorf("build report table: %w", err)
	}

	logger.Info("Ingestion completed")
	return nil
}
