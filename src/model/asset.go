package model

import "strings"

// AssetClass tags an asset with its market category.
type AssetClass string

const (
	AssetClassCurrency  AssetClass = "currency"
	AssetClassCrypto    AssetClass = "crypto"
	AssetClassIndex     AssetClass = "index"
	AssetClassCommodity AssetClass = "commodity"
)

// Asset is one reportable financial instrument: a short uppercase code, a
// display name, and the CFTC contract market code the regulator files it
// under.
type Asset struct {
	Code     string
	Name     string
	CFTCCode string
	Class    AssetClass
}

// Catalog is the read-only universe of reportable assets. It is built once
// at startup and handed to every component that resolves asset identity.
type Catalog struct {
	assets []Asset
}

// NewCatalog builds the catalog of assets covered by the weekly COT
// filings: the reported currencies, cryptocurrencies, indices, and
// commodities.
func NewCatalog() *Catalog {
	return &Catalog{assets: []Asset{
		{Code: "AUD", Name: "Australian Dollar", CFTCCode: "232741", Class: AssetClassCurrency},
		{Code: "CAD", Name: "Canadian Dollar", CFTCCode: "090741", Class: AssetClassCurrency},
		{Code: "CHF", Name: "Swiss Franc", CFTCCode: "092741", Class: AssetClassCurrency},
		{Code: "EUR", Name: "Euro", CFTCCode: "099741", Class: AssetClassCurrency},
		{Code: "GBP", Name: "British Pound", CFTCCode: "096742", Class: AssetClassCurrency},
		{Code: "MXN", Name: "Mexican Peso", CFTCCode: "095741", Class: AssetClassCurrency},
		{Code: "NZD", Name: "New Zealand Dollar", CFTCCode: "112741", Class: AssetClassCurrency},
		{Code: "JPY", Name: "Japanese Yen", CFTCCode: "097741", Class: AssetClassCurrency},
		{Code: "USD", Name: "U.S. Dollar", CFTCCode: "098662", Class: AssetClassCurrency},
		{Code: "BTC", Name: "Bitcoin", CFTCCode: "133741", Class: AssetClassCrypto},
		{Code: "DJI", Name: "Dow Jones Industrial Average", CFTCCode: "124603", Class: AssetClassIndex},
		{Code: "NDX", Name: "Nasdaq", CFTCCode: "209742", Class: AssetClassIndex},
		{Code: "RTY", Name: "Russel", CFTCCode: "239742", Class: AssetClassIndex},
		{Code: "SPX", Name: "S&P 500", CFTCCode: "13874A", Class: AssetClassIndex},
		{Code: "TNX", Name: "10-Year U.S. Treasury Notes", CFTCCode: "043602", Class: AssetClassIndex},
		{Code: "WTI", Name: "U.S. Oil", CFTCCode: "067651", Class: AssetClassCommodity},
		{Code: "XAG", Name: "Silver", CFTCCode: "084691", Class: AssetClassCommodity},
		{Code: "XAU", Name: "Gold", CFTCCode: "088691", Class: AssetClassCommodity},
		{Code: "XCU", Name: "Copper", CFTCCode: "085692", Class: AssetClassCommodity},
		{Code: "XPD", Name: "Palladium", CFTCCode: "075651", Class: AssetClassCommodity},
		{Code: "XPT", Name: "Platinum", CFTCCode: "076651", Class: AssetClassCommodity},
	}}
}

// All returns every asset in the catalog.
func (c *Catalog) All() []Asset {
	assets := make([]Asset, len(c.assets))
	copy(assets, c.assets)
	return assets
}

// Codes returns the codes of every asset in the catalog.
func (c *Catalog) Codes() []string {
	codes := make([]string, 0, len(c.assets))
	for _, asset := range c.assets {
		codes = append(codes, asset.Code)
	}
	return codes
}

// ByCode resolves an asset by its code, case-insensitively.
func (c *Catalog) ByCode(code string) (Asset, bool) {
	code = strings.ToUpper(code)
	for _, asset := range c.assets {
		if asset.Code == code {
			return asset, true
		}
	}
	return Asset{}, false
}

// ByCFTCCode resolves an asset by its CFTC contract market code.
func (c *Catalog) ByCFTCCode(cftcCode string) (Asset, bool) {
	for _, asset := range c.assets {
		if asset.CFTCCode == cftcCode {
			return asset, true
		}
	}
	return Asset{}, false
}
