package presenter

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"cotreporter/src/cache"
	"cotreporter/src/connectors"
	"cotreporter/src/model"
)

// RequiredColumns are the twelve columns a tabular report source must
// carry, in the order the row conversion reads them.
var RequiredColumns = []string{
	"CFTC Contract Market Code",
	"As of Date in Form YYYY-MM-DD",
	"Open Interest (All)",
	"Noncommercial Positions-Long (All)",
	"Noncommercial Positions-Short (All)",
	"Commercial Positions-Long (All)",
	"Commercial Positions-Short (All)",
	"Change in Open Interest (All)",
	"Change in Noncommercial-Long (All)",
	"Change in Noncommercial-Short (All)",
	"Change in Commercial-Long (All)",
	"Change in Commercial-Short (All)",
}

var (
	// ErrMissingColumns is returned when a tabular source lacks any of
	// the required columns.
	ErrMissingColumns = errors.New("required columns not found in the given data")

	// ErrUnknownAsset is returned when a CFTC contract code resolves to
	// no asset in the catalog and suppression is off.
	ErrUnknownAsset = errors.New("cftc contract code does not belong to any reported asset")
)

// rowConversionWorkers bounds the fan-out of tabular row conversion.
// Rows share no mutable state, so they only need joining at the end.
const rowConversionWorkers = 8

// Presenter converts the three raw report shapes - stored rows, Socrata
// API records, and tabular rows - into report values. Asset identity is
// resolved against the catalog; the API path additionally slides the
// historical net cache forward per record.
type Presenter struct {
	catalog *model.Catalog
	cache   *cache.HistoricalNetCache
}

// New builds a presenter over the given catalog and cache.
func New(catalog *model.Catalog, netCache *cache.HistoricalNetCache) *Presenter {
	return &Presenter{catalog: catalog, cache: netCache}
}

// storedGroup is the persisted shape of one trader group inside a report
// document.
type storedGroup struct {
	Long        int `json:"long"`
	LongChange  int `json:"long_change"`
	Short       int `json:"short"`
	ShortChange int `json:"short_change"`
	COTIndex    int `json:"cot_index"`
}

type storedReport struct {
	OpenInterest       int         `json:"open_interest"`
	OpenInterestChange int         `json:"open_interest_change"`
	Commercials        storedGroup `json:"commercials"`
	NonCommercials     storedGroup `json:"noncommercials"`
}

// FromStoredRows rebuilds reports from persisted rows. The document
// already carries a precomputed COT Index, so the commercial group gets no
// historical window and the cache is not touched.
func (p *Presenter) FromStoredRows(rows []model.ReportRow) ([]*model.Report, error) {
	reports := make([]*model.Report, 0, len(rows))
	for _, row := range rows {
		var stored storedReport
		if err := json.Unmarshal([]byte(row.ReportData), &stored); err != nil {
			return nil, fmt.Errorf("decode report document of %s on %s: %w", row.AssetCode, row.ReportDate, err)
		}
		commercials := model.NewCommercialsWithIndex(model.TraderGroup{
			Long:        stored.Commercials.Long,
			LongChange:  stored.Commercials.LongChange,
			Short:       stored.Commercials.Short,
			ShortChange: stored.Commercials.ShortChange,
		}, stored.Commercials.COTIndex)
		noncommercials := model.NewNonCommercials(model.TraderGroup{
			Long:        stored.NonCommercials.Long,
			LongChange:  stored.NonCommercials.LongChange,
			Short:       stored.NonCommercials.Short,
			ShortChange: stored.NonCommercials.ShortChange,
		})
		reports = append(reports, &model.Report{
			ReportedDate:       dateOnly(row.ReportDate),
			AssetCode:          row.AssetCode,
			Commercials:        commercials,
			NonCommercials:     noncommercials,
			OpenInterest:       stored.OpenInterest,
			OpenInterestChange: stored.OpenInterestChange,
		})
	}
	return reports, nil
}

// FromAPIRecords builds reports from Socrata records. For each record the
// cached historical net window of the record's asset is slid one week
// forward and installed on the commercial group. A contract code outside
// the catalog yields a report with an empty asset code.
func (p *Presenter) FromAPIRecords(records []connectors.SocrataRecord) ([]*model.Report, error) {
	reports := make([]*model.Report, 0, len(records))
	for _, record := range records {
		assetCode := ""
		if asset, ok := p.catalog.ByCFTCCode(record.CFTCContractMarketCode); ok {
			assetCode = asset.Code
		}
		group, err := apiTraderGroup(
			record.CommPositionsLongAll, record.ChangeInCommLongAll,
			record.CommPositionsShortAll, record.ChangeInCommShortAll,
		)
		if err != nil {
			return nil, fmt.Errorf("commercials of contract %s: %w", record.CFTCContractMarketCode, err)
		}
		commercials := model.NewCommercials(group)
		window, err := p.cache.PrependNet(assetCode, commercials.Net())
		if err != nil {
			return nil, fmt.Errorf("slide cached window of %q: %w", assetCode, err)
		}
		if err := commercials.SetHistoricalNet(window); err != nil {
			return nil, fmt.Errorf("install window of %q: %w", assetCode, err)
		}
		noncommGroup, err := apiTraderGroup(
			record.NoncommPositionsLong, record.ChangeInNoncommLongAll,
			record.NoncommPositionsShort, record.ChangeInNoncommShortAll,
		)
		if err != nil {
			return nil, fmt.Errorf("noncommercials of contract %s: %w", record.CFTCContractMarketCode, err)
		}
		openInterest, err := strconv.Atoi(strings.TrimSpace(record.OpenInterestAll))
		if err != nil {
			return nil, fmt.Errorf("open interest of contract %s: %w", record.CFTCContractMarketCode, err)
		}
		openInterestChange, err := strconv.Atoi(strings.TrimSpace(record.ChangeInOpenInterestAll))
		if err != nil {
			return nil, fmt.Errorf("open interest change of contract %s: %w", record.CFTCContractMarketCode, err)
		}
		reports = append(reports, &model.Report{
			ReportedDate:       dateOnly(record.ReportDate),
			AssetCode:          assetCode,
			Commercials:        commercials,
			NonCommercials:     model.NewNonCommercials(noncommGroup),
			OpenInterest:       openInterest,
			OpenInterestChange: openInterestChange,
		})
	}
	return reports, nil
}

// apiTraderGroup converts the four string counts of one provider record
// side into a trader group.
func apiTraderGroup(long, longChange, short, shortChange string) (model.TraderGroup, error) {
	parse := func(name, raw string) (int, error) {
		value, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			return 0, fmt.Errorf("%s: %w", name, err)
		}
		return value, nil
	}

	var group model.TraderGroup
	var err error
	if group.Long, err = parse("long positions", long); err != nil {
		return model.TraderGroup{}, err
	}
	if group.LongChange, err = parse("long change", longChange); err != nil {
		return model.TraderGroup{}, err
	}
	if group.Short, err = parse("short positions", short); err != nil {
		return model.TraderGroup{}, err
	}
	if group.ShortChange, err = parse("short change", shortChange); err != nil {
		return model.TraderGroup{}, err
	}
	return group, nil
}

// FromCSV builds reports from a comma-separated source carrying the
// required columns. Rows convert concurrently and join before returning.
// Rows whose contract code resolves to no catalog asset are dropped when
// suppressUnmatched is set, and fail the conversion otherwise.
func (p *Presenter) FromCSV(r io.Reader, suppressUnmatched bool) ([]*model.Report, error) {
	reader := csv.NewReader(r)
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read tabular source: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: %v", ErrMissingColumns, RequiredColumns)
	}

	columns := map[string]int{}
	for i, name := range records[0] {
		columns[strings.TrimSpace(name)] = i
	}
	var missing []string
	for _, name := range RequiredColumns {
		if _, ok := columns[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %v", ErrMissingColumns, missing)
	}

	rows := records[1:]
	results := make([]*model.Report, len(rows))
	var group errgroup.Group
	group.SetLimit(rowConversionWorkers)
	for i, row := range rows {
		i, row := i, row
		group.Go(func() error {
			report, err := p.buildFromRow(row, columns, suppressUnmatched)
			if err != nil {
				return err
			}
			results[i] = report
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}

	reports := make([]*model.Report, 0, len(results))
	for _, report := range results {
		if report != nil {
			reports = append(reports, report)
		}
	}
	return reports, nil
}

// buildFromRow converts a single tabular row. The non-commercial positions
// read from the change columns on purpose: the stored historical rows were
// produced with this wiring and new rows must keep matching them.
func (p *Presenter) buildFromRow(row []string, columns map[string]int, suppressUnmatched bool) (*model.Report, error) {
	field := func(name string) string {
		return strings.TrimSpace(row[columns[name]])
	}
	number := func(name string) (int, error) {
		value, err := strconv.Atoi(field(name))
		if err != nil {
			return 0, fmt.Errorf("column %q: %w", name, err)
		}
		return value, nil
	}

	cftcCode := field(RequiredColumns[0])
	asset, ok := p.catalog.ByCFTCCode(cftcCode)
	if !ok {
		if suppressUnmatched {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %q", ErrUnknownAsset, cftcCode)
	}

	values := map[string]int{}
	for _, name := range RequiredColumns[2:] {
		value, err := number(name)
		if err != nil {
			return nil, err
		}
		values[name] = value
	}

	commercials := model.NewCommercials(model.TraderGroup{
		Long:        values["Commercial Positions-Long (All)"],
		LongChange:  values["Change in Commercial-Long (All)"],
		Short:       values["Commercial Positions-Short (All)"],
		ShortChange: values["Change in Commercial-Short (All)"],
	})
	noncommercials := model.NewNonCommercials(model.TraderGroup{
		Long:        values["Change in Open Interest (All)"],
		LongChange:  values["Change in Noncommercial-Long (All)"],
		Short:       values["Change in Noncommercial-Long (All)"],
		ShortChange: values["Change in Noncommercial-Short (All)"],
	})

	return &model.Report{
		ReportedDate:       dateOnly(field(RequiredColumns[1])),
		AssetCode:          asset.Code,
		Commercials:        commercials,
		NonCommercials:     noncommercials,
		OpenInterest:       values["Open Interest (All)"],
		OpenInterestChange: values["Change in Open Interest (All)"],
	}, nil
}

// dateOnly strips the time component of provider timestamps like
// 2024-11-05T00:00:00.000.
func dateOnly(date string) string {
	if i := strings.IndexByte(date, 'T'); i >= 0 {
		return date[:i]
	}
	return date
}
