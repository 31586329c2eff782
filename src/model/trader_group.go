package model

import (
	"errors"
	"math"

	"github.com/shopspring/decimal"
)

// HistoricalNetWeeks is the size of the rolling window of commercial net
// positions used to compute the COT Index: 156 weeks, three years of
// weekly reports.
const HistoricalNetWeeks = 156

// sentimentThreshold is the symmetric percentage-net cutoff for the
// non-commercial sentiment reading.
const sentimentThreshold = 50.0

var (
	// ErrDivisionUndefined is returned when a percentage derivation is
	// requested for a trader group holding zero contracts in total.
	ErrDivisionUndefined = errors.New("percentage is undefined for a trader group with no contracts")

	// ErrInvalidWindow is returned when a historical net window fails
	// validation (too short, or missing the current period in front).
	ErrInvalidWindow = errors.New("invalid historical net window")
)

// Sentiment is the positioning reading of a trader group.
type Sentiment string

const (
	SentimentBullish Sentiment = "bullish"
	SentimentBearish Sentiment = "bearish"
	SentimentNeutral Sentiment = "neutral"
)

// TraderGroup holds the positioning of one category of futures traders:
// total active long and short contracts and their week-over-week changes.
type TraderGroup struct {
	Long        int
	LongChange  int
	Short       int
	ShortChange int
}

// Net returns the net position of the group: long minus short contracts.
func (g TraderGroup) Net() int {
	return g.Long - g.Short
}

// PercentageNet returns the net position as a percentage of the group's
// total contracts, rounded to one decimal place.
func (g TraderGroup) PercentageNet() (float64, error) {
	return g.ratioPct(g.Net(), 1)
}

// LongPercentage returns the share of long contracts, rounded to one
// decimal place.
func (g TraderGroup) LongPercentage() (float64, error) {
	return g.ratioPct(g.Long, 1)
}

// ShortPercentage returns the share of short contracts, rounded to two
// decimal places.
func (g TraderGroup) ShortPercentage() (float64, error) {
	return g.ratioPct(g.Short, 2)
}

func (g TraderGroup) ratioPct(num int, places int32) (float64, error) {
	total := g.Long + g.Short
	if total == 0 {
		return 0, ErrDivisionUndefined
	}
	pct := decimal.NewFromInt(int64(num)).
		Div(decimal.NewFromInt(int64(total))).
		Mul(decimal.NewFromInt(100)).
		Round(places)
	return pct.InexactFloat64(), nil
}

// ToDict represents the trader group in a JSON serialisable format.
// verbose adds the raw contract counts and changes, enhanced adds the
// derived net figures.
func (g TraderGroup) ToDict(verbose, enhanced bool) (map[string]interface{}, error) {
	result := map[string]interface{}{}
	if verbose {
		result["long"] = g.Long
		result["long_change"] = g.LongChange
		result["short"] = g.Short
		result["short_change"] = g.ShortChange
	}
	if enhanced {
		pct, err := g.PercentageNet()
		if err != nil {
			return nil, err
		}
		result["net"] = g.Net()
		result["percentage_net"] = pct
	}
	return result, nil
}

// Commercials is the hedger side of a report: a trader group carrying the
// rolling historical net window and the derived COT Index.
type Commercials struct {
	TraderGroup

	historicalNet []int
	cotIndex      int
}

// NewCommercials builds a commercial group with no historical window.
func NewCommercials(group TraderGroup) *Commercials {
	return &Commercials{TraderGroup: group}
}

// NewCommercialsWithIndex builds a commercial group with no historical
// window but a precomputed COT Index, as reconstructed from a stored row.
func NewCommercialsWithIndex(group TraderGroup, cotIndex int) *Commercials {
	return &Commercials{TraderGroup: group, cotIndex: cotIndex}
}

// HistoricalNet returns a copy of the historical net window, most recent
// first, or nil when no window has been set.
func (c *Commercials) HistoricalNet() []int {
	if c.historicalNet == nil {
		return nil
	}
	window := make([]int, len(c.historicalNet))
	copy(window, c.historicalNet)
	return window
}

// SetHistoricalNet validates and installs the historical net window.
// The window must be sorted most recent first, hold at least
// HistoricalNetWeeks entries, and include the group's own current net as
// its first entry; it is truncated to exactly HistoricalNetWeeks entries.
func (c *Commercials) SetHistoricalNet(window []int) error {
	if len(window) < HistoricalNetWeeks {
		return errors.Join(ErrInvalidWindow, errors.New("length of historical net can't be lesser than 156"))
	}
	if window[0] != c.Net() {
		return errors.Join(ErrInvalidWindow, errors.New("current net must be the first entry of the historical net"))
	}
	owned := make([]int, HistoricalNetWeeks)
	copy(owned, window[:HistoricalNetWeeks])
	c.historicalNet = owned
	return nil
}

// COTIndex places the current net position inside the historical window's
// range as a 0-100 score. Without a window it falls back to the index the
// group was constructed with, or zero.
func (c *Commercials) COTIndex() int {
	if c.historicalNet == nil {
		return c.cotIndex
	}
	minNet, maxNet := c.historicalNet[0], c.historicalNet[0]
	for _, net := range c.historicalNet {
		if net < minNet {
			minNet = net
		}
		if net > maxNet {
			maxNet = net
		}
	}
	if maxNet == minNet {
		return 0
	}
	ratio := float64(c.Net()-minNet) / float64(maxNet-minNet)
	return roundHalfUp(ratio * 100)
}

// ToDict represents the commercial group in a JSON serialisable format,
// adding the COT Index to the enhanced output.
func (c *Commercials) ToDict(verbose, enhanced bool) (map[string]interface{}, error) {
	result, err := c.TraderGroup.ToDict(verbose, enhanced)
	if err != nil {
		return nil, err
	}
	if enhanced {
		result["cot_index"] = c.COTIndex()
	}
	return result, nil
}

// NonCommercials is the speculator side of a report.
type NonCommercials struct {
	TraderGroup
}

// NewNonCommercials builds a non-commercial group.
func NewNonCommercials(group TraderGroup) *NonCommercials {
	return &NonCommercials{TraderGroup: group}
}

// Sentiment classifies the group's percentage net against the symmetric
// threshold: at or above +50 is bullish, at or below -50 is bearish.
func (n *NonCommercials) Sentiment() (Sentiment, error) {
	pct, err := n.PercentageNet()
	if err != nil {
		return "", err
	}
	switch {
	case pct >= sentimentThreshold:
		return SentimentBullish, nil
	case pct <= -sentimentThreshold:
		return SentimentBearish, nil
	default:
		return SentimentNeutral, nil
	}
}

// ToDict represents the non-commercial group in a JSON serialisable
// format, adding the sentiment reading to the enhanced output.
func (n *NonCommercials) ToDict(verbose, enhanced bool) (map[string]interface{}, error) {
	result, err := n.TraderGroup.ToDict(verbose, enhanced)
	if err != nil {
		return nil, err
	}
	if enhanced {
		sentiment, err := n.Sentiment()
		if err != nil {
			return nil, err
		}
		result["sentiment"] = string(sentiment)
	}
	return result, nil
}

func roundHalfUp(v float64) int {
	return int(math.Floor(v + 0.5))
}
