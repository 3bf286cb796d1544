package summary

// Statistics is the fixed-shape rollup computed once per run and shared read-only by
// every reasoning stage.
type Statistics struct {
	Overview              Overview            `json:"overview"`
	PerformanceByCampaign []EntityPerformance `json:"performance_by_campaign"`
	PerformanceByAdSet    []EntityPerformance `json:"performance_by_adset"`
	CreativePerformance   CreativePerformance `json:"creative_performance"`
	TimeSeries            TimeSeries          `json:"time_series"`
	LowPerformers         []LowPerformer      `json:"low_performers"`
	TopPerformers         []TopPerformer      `json:"top_performers"`
}

// Overview holds dataset-wide totals.
type Overview struct {
	TotalRows       int       `json:"total_rows"`
	DateRange       DateRange `json:"date_range"`
	TotalSpend      float64   `json:"total_spend"`
	TotalRevenue    float64   `json:"total_revenue"`
	TotalPurchases  int       `json:"total_purchases"`
	OverallROAS     float64   `json:"overall_roas"`
	AvgCTR          float64   `json:"avg_ctr"`
	UniqueCampaigns int       `json:"unique_campaigns"`
	UniqueAdSets    int       `json:"unique_adsets"`
}

// DateRange is the inclusive span of dates in the dataset.
type DateRange struct {
	Start string `json:"start"` // YYYY-MM-DD
	End   string `json:"end"`   // YYYY-MM-DD
	Days  int    `json:"days"`  // End - Start in whole days
}

// EntityPerformance is a rollup for one campaign or ad set.
type EntityPerformance struct {
	Name        string  `json:"name"`
	Spend       float64 `json:"spend"`
	Revenue     float64 `json:"revenue"`
	Purchases   float64 `json:"purchases"`
	Impressions float64 `json:"impressions"`
	Clicks      float64 `json:"clicks"`
	CTR         float64 `json:"ctr"`  // mean of row CTRs
	ROAS        float64 `json:"roas"` // revenue / spend
}

// CreativePerformance groups results by creative type and by message.
type CreativePerformance struct {
	ByType      []CreativeTypePerformance `json:"by_type"`
	TopMessages []MessagePerformance      `json:"top_messages"`
}

type CreativeTypePerformance struct {
	CreativeType string  `json:"creative_type"`
	Spend        float64 `json:"spend"`
	Revenue      float64 `json:"revenue"`
	CTR          float64 `json:"ctr"`
	ROAS         float64 `json:"roas"`
}

type MessagePerformance struct {
	CreativeMessage string  `json:"creative_message"`
	CTR             float64 `json:"ctr"`
	ROAS            float64 `json:"roas"`
	Spend           float64 `json:"spend"`
}

// TimeSeries holds daily rollups and the trailing week-over-week comparison.
type TimeSeries struct {
	DailyMetrics []DailyMetrics `json:"daily_metrics"`
	Last7Days    WindowMetrics  `json:"last_7_days"`
	Prev7Days    WindowMetrics  `json:"prev_7_days"`
	Change       WindowChange   `json:"change"`
}

type DailyMetrics struct {
	Date      string  `json:"date"`
	Spend     float64 `json:"spend"`
	Revenue   float64 `json:"revenue"`
	CTR       float64 `json:"ctr"`
	Purchases float64 `json:"purchases"`
	ROAS      float64 `json:"roas"`
}

type WindowMetrics struct {
	ROAS  float64 `json:"roas"`
	CTR   float64 `json:"ctr"`
	Spend float64 `json:"spend"`
}

type WindowChange struct {
	ROASChange    float64 `json:"roas_change"`
	ROASChangePct float64 `json:"roas_change_pct"`
}

// LowPerformer is a campaign whose low-CTR rows carried meaningful spend.
type LowPerformer struct {
	Campaign        string  `json:"campaign_name"`
	CTR             float64 `json:"ctr"`
	Spend           float64 `json:"spend"`
	ROAS            float64 `json:"roas"`
	CreativeMessage string  `json:"creative_message"` // most frequent message among low-CTR rows
}

// TopPerformer is a campaign worth learning from.
type TopPerformer struct {
	Campaign        string  `json:"campaign_name"`
	CTR             float64 `json:"ctr"`
	ROAS            float64 `json:"roas"`
	Spend           float64 `json:"spend"`
	CreativeType    string  `json:"creative_type"`
	CreativeMessage string  `json:"creative_message"`
}
