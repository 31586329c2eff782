package model

import (
	"fmt"
	"strings"
)

// Report is one weekly COT filing for one asset: the reporting date, the
// positioning of both trader categories, and the market's open interest.
// Reports are built once by the presenter and never mutated afterwards,
// except for the historical net window the builder installs on the
// commercial group.
type Report struct {
	ReportedDate       string
	AssetCode          string
	Commercials        *Commercials
	NonCommercials     *NonCommercials
	OpenInterest       int
	OpenInterestChange int
}

// ToDict represents the report in a JSON serialisable format. verbose adds
// the open interest change and the raw positions of both groups, enhanced
// adds the derived net figures, the COT Index, and the sentiment reading.
func (r *Report) ToDict(verbose, enhanced bool) (map[string]interface{}, error) {
	commercials, err := r.Commercials.ToDict(verbose, enhanced)
	if err != nil {
		return nil, fmt.Errorf("commercials of %s: %w", r.AssetCode, err)
	}
	noncommercials, err := r.NonCommercials.ToDict(verbose, enhanced)
	if err != nil {
		return nil, fmt.Errorf("noncommercials of %s: %w", r.AssetCode, err)
	}
	result := map[string]interface{}{
		"reported_date":  r.ReportedDate,
		"asset_code":     r.AssetCode,
		"open_interest":  r.OpenInterest,
		"commercials":    commercials,
		"noncommercials": noncommercials,
	}
	if verbose {
		result["open_interest_change"] = r.OpenInterestChange
	}
	return result, nil
}

// Describe renders a human-readable summary of the report. The catalog
// resolves the asset's display name; an unknown code leaves the name blank.
func (r *Report) Describe(catalog *Catalog, verbose, enhanced bool) (string, error) {
	assetName := ""
	if asset, ok := catalog.ByCode(r.AssetCode); ok {
		assetName = asset.Name
	}

	lines := []string{
		fmt.Sprintf("COT REPORT OF %s REPORTED ON %s", assetName, r.ReportedDate),
	}
	if enhanced {
		sentiment, err := r.NonCommercials.Sentiment()
		if err != nil {
			return "", err
		}
		pctNet, err := r.NonCommercials.PercentageNet()
		if err != nil {
			return "", err
		}
		pctLong, err := r.NonCommercials.LongPercentage()
		if err != nil {
			return "", err
		}
		pctShort, err := r.NonCommercials.ShortPercentage()
		if err != nil {
			return "", err
		}
		lines = append(lines,
			fmt.Sprintf("COT INDEX: %d", r.Commercials.COTIndex()),
			fmt.Sprintf("CHANGE IN OPEN INTEREST: %d", r.OpenInterestChange),
		)
		if verbose {
			lines = append(lines, fmt.Sprintf("OPEN INTEREST: %d", r.OpenInterest))
		}
		lines = append(lines,
			fmt.Sprintf("SENTIMENT OF TREND FOLLOWERS: %s", strings.ToUpper(string(sentiment))),
			fmt.Sprintf("NONCOMMERCIAL NET PERCENTAGE: %v%%, LONG PERCENTAGE = %v%%, SHORT PERCENTAGE = %v%%", pctNet, pctLong, pctShort),
			fmt.Sprintf("NONCOMMERCIAL CHANGES: LONG = %d, SHORT = %d", r.NonCommercials.LongChange, r.NonCommercials.ShortChange),
		)
	} else if verbose {
		lines = append(lines, fmt.Sprintf("OPEN INTEREST: %d", r.OpenInterest))
	}
	if verbose {
		lines = append(lines,
			fmt.Sprintf("COMMERCIAL POSITIONS: LONG = %d, SHORT = %d", r.Commercials.Long, r.Commercials.Short),
			fmt.Sprintf("NONCOMMERCIAL POSITIONS: LONG = %d, SHORT = %d", r.NonCommercials.Long, r.NonCommercials.Short),
		)
	}
	return strings.Join(lines, "\n"), nil
}
