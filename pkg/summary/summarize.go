// Package summary turns ad performance rows into the aggregate statistics handed to
// every reasoning stage of the pipeline.
package summary

import (
	"sort"
	"time"

	"github.com/malbeclabs/ads-analyst/pkg/dataset"
)

const (
	DefaultLowCTRThreshold    = 0.015
	DefaultMinSpendThreshold  = 50
	DefaultTopSpendThreshold  = 200
	DefaultTopMessageMinSpend = 100

	campaignLimit     = 10
	adSetLimit        = 15
	topMessageLimit   = 10
	performerLimit    = 10
	dailyMetricsLimit = 30
	windowDays        = 7

	dateLayout = "2006-01-02"
)

// Options holds the thresholds used by the performer filters. Values are used as given,
// so a zero floor admits any positive spend. Start from DefaultOptions.
type Options struct {
	LowCTRThreshold    float64 // rows strictly below this CTR count as low performing
	MinSpendThreshold  float64 // low performers need summed spend strictly above this
	TopSpendThreshold  float64 // top performers need summed spend strictly above this
	TopMessageMinSpend float64 // top messages need summed spend strictly above this
}

// DefaultOptions returns the standard thresholds.
func DefaultOptions() Options {
	return Options{
		LowCTRThreshold:    DefaultLowCTRThreshold,
		MinSpendThreshold:  DefaultMinSpendThreshold,
		TopSpendThreshold:  DefaultTopSpendThreshold,
		TopMessageMinSpend: DefaultTopMessageMinSpend,
	}
}

// Summarize computes the aggregate statistics for rows. The result depends only on the
// rows and options. rows must be non-empty.
func Summarize(rows []dataset.Row, opts Options) (*Statistics, error) {
	if len(rows) == 0 {
		return nil, dataset.ErrEmpty
	}

	byCampaign := groupBy(rows, campaignKey, nil)

	return &Statistics{
		Overview:              overview(rows),
		PerformanceByCampaign: entityPerformance(byCampaign, campaignLimit),
		PerformanceByAdSet:    entityPerformance(groupBy(rows, adSetKey, nil), adSetLimit),
		CreativePerformance:   creativePerformance(rows, opts),
		TimeSeries:            timeSeries(rows),
		LowPerformers:         lowPerformers(rows, opts),
		TopPerformers:         topPerformers(byCampaign, opts),
	}, nil
}

func campaignKey(r dataset.Row) string { return r.Campaign }
func adSetKey(r dataset.Row) string    { return r.AdSet }

func overview(rows []dataset.Row) Overview {
	var total rollup
	campaigns := make(map[string]struct{})
	adsets := make(map[string]struct{})
	minDate, maxDate := dateBounds(rows)

	for _, r := range rows {
		total.add(r)
		if r.Campaign != "" {
			campaigns[r.Campaign] = struct{}{}
		}
		if r.AdSet != "" {
			adsets[r.AdSet] = struct{}{}
		}
	}

	return Overview{
		TotalRows: len(rows),
		DateRange: DateRange{
			Start: minDate.Format(dateLayout),
			End:   maxDate.Format(dateLayout),
			Days:  int(maxDate.Sub(minDate).Hours() / 24),
		},
		TotalSpend:      total.spend,
		TotalRevenue:    total.revenue,
		TotalPurchases:  int(total.purchases),
		OverallROAS:     total.roas(),
		AvgCTR:          total.ctr(),
		UniqueCampaigns: len(campaigns),
		UniqueAdSets:    len(adsets),
	}
}

func dateBounds(rows []dataset.Row) (time.Time, time.Time) {
	minDate, maxDate := rows[0].Date, rows[0].Date
	for _, r := range rows[1:] {
		if r.Date.Before(minDate) {
			minDate = r.Date
		}
		if r.Date.After(maxDate) {
			maxDate = r.Date
		}
	}
	return minDate, maxDate
}

func entityPerformance(g *grouped, limit int) []EntityPerformance {
	out := make([]EntityPerformance, 0, len(g.order))
	g.each(func(name string, r *rollup) {
		out = append(out, EntityPerformance{
			Name:        name,
			Spend:       r.spend,
			Revenue:     r.revenue,
			Purchases:   r.purchases,
			Impressions: r.impressions,
			Clicks:      r.clicks,
			CTR:         r.ctr(),
			ROAS:        r.roas(),
		})
	})
	sort.SliceStable(out, func(i, j int) bool { return out[i].Spend > out[j].Spend })
	return head(out, limit)
}

func creativePerformance(rows []dataset.Row, opts Options) CreativePerformance {
	byType := groupBy(rows, func(r dataset.Row) string { return r.CreativeType }, nil)
	types := make([]CreativeTypePerformance, 0, len(byType.order))
	byType.each(func(name string, r *rollup) {
		types = append(types, CreativeTypePerformance{
			CreativeType: name,
			Spend:        r.spend,
			Revenue:      r.revenue,
			CTR:          r.ctr(),
			ROAS:         r.roas(),
		})
	})

	byMessage := groupBy(rows, func(r dataset.Row) string { return r.CreativeMessage }, nil)
	messages := make([]MessagePerformance, 0, len(byMessage.order))
	byMessage.each(func(msg string, r *rollup) {
		if r.spend <= opts.TopMessageMinSpend {
			return
		}
		messages = append(messages, MessagePerformance{
			CreativeMessage: msg,
			CTR:             r.ctr(),
			ROAS:            r.roas(),
			Spend:           r.spend,
		})
	})
	sort.SliceStable(messages, func(i, j int) bool { return messages[i].CTR > messages[j].CTR })

	return CreativePerformance{
		ByType:      types,
		TopMessages: head(messages, topMessageLimit),
	}
}

func timeSeries(rows []dataset.Row) TimeSeries {
	byDay := groupBy(rows, func(r dataset.Row) string { return r.Date.Format(dateLayout) }, nil)
	daily := make([]DailyMetrics, 0, len(byDay.order))
	byDay.each(func(day string, r *rollup) {
		daily = append(daily, DailyMetrics{
			Date:      day,
			Spend:     r.spend,
			Revenue:   r.revenue,
			CTR:       r.ctr(),
			Purchases: r.purchases,
			ROAS:      r.roas(),
		})
	})
	// YYYY-MM-DD sorts chronologically as text.
	sort.SliceStable(daily, func(i, j int) bool { return daily[i].Date < daily[j].Date })
	if len(daily) > dailyMetricsLimit {
		daily = daily[len(daily)-dailyMetricsLimit:]
	}

	_, maxDate := dateBounds(rows)
	lastStart := maxDate.AddDate(0, 0, -windowDays)
	prevStart := maxDate.AddDate(0, 0, -2*windowDays)

	var last, prev rollup
	for _, r := range rows {
		switch {
		case r.Date.After(lastStart):
			last.add(r)
		case r.Date.After(prevStart):
			prev.add(r)
		}
	}

	lastROAS, prevROAS := last.roas(), prev.roas()
	change := WindowChange{ROASChange: finite(lastROAS - prevROAS)}
	if prevROAS > 0 {
		change.ROASChangePct = finite((lastROAS - prevROAS) / prevROAS * 100)
	}

	return TimeSeries{
		DailyMetrics: daily,
		Last7Days:    WindowMetrics{ROAS: lastROAS, CTR: last.ctr(), Spend: last.spend},
		Prev7Days:    WindowMetrics{ROAS: prevROAS, CTR: prev.ctr(), Spend: prev.spend},
		Change:       change,
	}
}

func lowPerformers(rows []dataset.Row, opts Options) []LowPerformer {
	g := groupBy(rows, campaignKey, func(r dataset.Row) bool {
		// Missing CTR never compares below the threshold.
		return !dataset.IsMissing(r.CTR) && r.CTR < opts.LowCTRThreshold
	})

	out := make([]LowPerformer, 0, len(g.order))
	g.each(func(name string, r *rollup) {
		if r.spend <= opts.MinSpendThreshold {
			return
		}
		out = append(out, LowPerformer{
			Campaign:        name,
			CTR:             r.ctr(),
			Spend:           r.spend,
			ROAS:            r.roas(),
			CreativeMessage: r.messages.value(),
		})
	})
	sort.SliceStable(out, func(i, j int) bool { return out[i].Spend > out[j].Spend })
	return head(out, performerLimit)
}

func topPerformers(byCampaign *grouped, opts Options) []TopPerformer {
	out := make([]TopPerformer, 0, len(byCampaign.order))
	byCampaign.each(func(name string, r *rollup) {
		if r.spend <= opts.TopSpendThreshold {
			return
		}
		out = append(out, TopPerformer{
			Campaign:        name,
			CTR:             r.ctr(),
			ROAS:            r.roas(),
			Spend:           r.spend,
			CreativeType:    r.types.value(),
			CreativeMessage: r.messages.value(),
		})
	})
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CTR != out[j].CTR {
			return out[i].CTR > out[j].CTR
		}
		return out[i].ROAS > out[j].ROAS
	})
	return head(out, performerLimit)
}

func head[T any](s []T, n int) []T {
	if len(s) > n {
		return s[:n]
	}
	return s
}
