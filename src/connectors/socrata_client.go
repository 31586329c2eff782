package connectors

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	logger "github.com/sirupsen/logrus"
)

const defaultSocrataBaseURL = "https://publicreporting.cftc.gov/resource/6dca-aqww.json"

// SocrataRecord is one flat record of the CFTC public reporting dataset.
// Socrata serves every field as a string.
type SocrataRecord struct {
	ReportDate              string `json:"report_date_as_yyyy_mm_dd"`
	CFTCContractMarketCode  string `json:"cftc_contract_market_code"`
	CommPositionsLongAll    string `json:"comm_positions_long_all"`
	CommPositionsShortAll   string `json:"comm_positions_short_all"`
	ChangeInCommLongAll     string `json:"change_in_comm_long_all"`
	ChangeInCommShortAll    string `json:"change_in_comm_short_all"`
	NoncommPositionsLong    string `json:"noncomm_positions_long_all"`
	NoncommPositionsShort   string `json:"noncomm_positions_short_all"`
	ChangeInNoncommLongAll  string `json:"change_in_noncomm_long_all"`
	ChangeInNoncommShortAll string `json:"change_in_noncomm_short_all"`
	OpenInterestAll         string `json:"open_interest_all"`
	ChangeInOpenInterestAll string `json:"change_in_open_interest_all"`
}

// SocrataClient talks to the CFTC public reporting Socrata API over HTTPS.
type SocrataClient struct {
	appToken string
	http     *resty.Client
}

// NewSocrataClient builds a client against the given base URL, falling
// back to the public CFTC dataset when none is provided.
func NewSocrataClient(appToken, baseURL string) *SocrataClient {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = defaultSocrataBaseURL
		logger.Warnf("No base URL provided, using default: %s", baseURL)
	}

	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(30 * time.Second)

	return &SocrataClient{
		appToken: appToken,
		http:     httpClient,
	}
}

// NewSocrataClientFromEnv builds a client from the environment config.
func NewSocrataClientFromEnv() *SocrataClient {
	config := GetConfig()
	return NewSocrataClient(config.SocrataAppToken, config.SocrataBaseURL)
}

// FetchLatestReport queries the dataset with a SoQL $where filter and
// returns the matching records. Any non-2xx response is a hard failure.
func (c *SocrataClient) FetchLatestReport(ctx context.Context, where string) ([]SocrataRecord, error) {
	var records []SocrataRecord

	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("X-App-Token", c.appToken).
		SetQueryParam("$where", where).
		SetResult(&records).
		Get("")
	if err != nil {
		return nil, fmt.Errorf("socrata request: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("socrata responded %d: %s", resp.StatusCode(), resp.String())
	}

	logger.WithFields(map[string]interface{}{
		"component": "SocrataClient",
		"records":   len(records),
	}).Debug("Fetched records from Socrata")

	return records, nil
}
