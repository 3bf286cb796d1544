// Package dataset reads row-oriented ad performance exports.
//
// Each row is one (date, campaign, ad set, creative) observation. Numeric cells that do
// not parse are kept as Missing so a few noisy cells never fail a whole load; dates are
// strict and a bad one aborts the load.
package dataset

import (
	"math"
	"time"
)

// Column names in the export header.
const (
	ColDate            = "date"
	ColCampaign        = "campaign_name"
	ColAdSet           = "adset_name"
	ColCreativeType    = "creative_type"
	ColCreativeMessage = "creative_message"
	ColSpend           = "spend"
	ColImpressions     = "impressions"
	ColClicks          = "clicks"
	ColCTR             = "ctr"
	ColPurchases       = "purchases"
	ColRevenue         = "revenue"
	ColROAS            = "roas"
)

// RequiredColumns must be present in every header.
var RequiredColumns = []string{
	ColDate,
	ColCampaign,
	ColAdSet,
	ColSpend,
	ColImpressions,
	ColClicks,
	ColPurchases,
	ColRevenue,
}

// Missing is the sentinel stored in numeric fields whose cell was empty or non-numeric.
var Missing = math.NaN()

// IsMissing reports whether v is the missing-value sentinel.
func IsMissing(v float64) bool {
	return math.IsNaN(v)
}

// Row is a single observation. Numeric fields hold Missing when the cell did not parse.
type Row struct {
	Date            time.Time
	Campaign        string
	AdSet           string
	CreativeType    string
	CreativeMessage string

	Spend       float64
	Impressions float64
	Clicks      float64
	CTR         float64
	Purchases   float64
	Revenue     float64
	ROAS        float64
}
