package summary

import (
	"math"

	"github.com/malbeclabs/ads-analyst/pkg/dataset"
)

// rollup accumulates sums and means over rows, skipping missing cells. A cell that would
// overflow its sum to ±Inf is skipped too, so every rollup stays JSON-encodable.
type rollup struct {
	spend       float64
	revenue     float64
	purchases   float64
	impressions float64
	clicks      float64

	ctrSum float64
	ctrN   int

	types    mode
	messages mode
}

func (r *rollup) add(row dataset.Row) {
	accumulate(&r.spend, row.Spend)
	accumulate(&r.revenue, row.Revenue)
	accumulate(&r.purchases, row.Purchases)
	accumulate(&r.impressions, row.Impressions)
	accumulate(&r.clicks, row.Clicks)
	if accumulate(&r.ctrSum, row.CTR) {
		r.ctrN++
	}
	r.types.add(row.CreativeType)
	r.messages.add(row.CreativeMessage)
}

func (r *rollup) ctr() float64 {
	if r.ctrN == 0 {
		return 0
	}
	return r.ctrSum / float64(r.ctrN)
}

func (r *rollup) roas() float64 {
	return safeDiv(r.revenue, r.spend)
}

// grouped keeps rollups keyed by name in first-appearance order.
type grouped struct {
	order []string
	byKey map[string]*rollup
}

func groupBy(rows []dataset.Row, key func(dataset.Row) string, keep func(dataset.Row) bool) *grouped {
	g := &grouped{byKey: make(map[string]*rollup)}
	for _, row := range rows {
		if keep != nil && !keep(row) {
			continue
		}
		k := key(row)
		if k == "" {
			continue
		}
		r, ok := g.byKey[k]
		if !ok {
			r = &rollup{}
			g.byKey[k] = r
			g.order = append(g.order, k)
		}
		r.add(row)
	}
	return g
}

func (g *grouped) each(fn func(key string, r *rollup)) {
	for _, k := range g.order {
		fn(k, g.byKey[k])
	}
}

// mode tracks the most frequent non-empty value; ties go to the value seen first.
type mode struct {
	counts map[string]int
	order  []string
}

func (m *mode) add(v string) {
	if v == "" {
		return
	}
	if m.counts == nil {
		m.counts = make(map[string]int)
	}
	if _, ok := m.counts[v]; !ok {
		m.order = append(m.order, v)
	}
	m.counts[v]++
}

func (m *mode) value() string {
	best, bestN := "", 0
	for _, v := range m.order {
		if n := m.counts[v]; n > bestN {
			best, bestN = v, n
		}
	}
	return best
}

// accumulate adds v to *sum and reports whether it did. Missing values and values that
// would overflow the sum are left out.
func accumulate(sum *float64, v float64) bool {
	if dataset.IsMissing(v) || math.IsInf(v, 0) {
		return false
	}
	next := *sum + v
	if math.IsInf(next, 0) {
		return false
	}
	*sum = next
	return true
}

func safeDiv(a, b float64) float64 {
	if b == 0 {
		return 0
	}
	return finite(a / b)
}

// finite maps ±Inf and NaN to 0.
func finite(v float64) float64 {
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return 0
	}
	return v
}
