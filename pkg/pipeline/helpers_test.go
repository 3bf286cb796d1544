package pipeline

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/malbeclabs/ads-analyst/pkg/summary"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, nil))
}

type llmCall struct {
	system string
	user   string
	opts   CompleteOptions
}

// fakeLLM answers by system prompt. Each prompt's responses are served in order and
// the last one repeats.
type fakeLLM struct {
	mu        sync.Mutex
	responses map[string][]string
	errs      map[string]error
	calls     []llmCall
}

func newFakeLLM() *fakeLLM {
	return &fakeLLM{responses: map[string][]string{}, errs: map[string]error{}}
}

func (f *fakeLLM) on(system string, responses ...string) *fakeLLM {
	f.responses[system] = responses
	return f
}

func (f *fakeLLM) fail(system string, err error) *fakeLLM {
	f.errs[system] = err
	return f
}

func (f *fakeLLM) Complete(ctx context.Context, system, user string, opts ...CompleteOption) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, llmCall{system: system, user: user, opts: ApplyCompleteOptions(opts...)})
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err, ok := f.errs[system]; ok {
		return "", err
	}
	rs := f.responses[system]
	if len(rs) == 0 {
		return "", nil
	}
	n := 0
	for _, c := range f.calls {
		if c.system == system {
			n++
		}
	}
	if n > len(rs) {
		n = len(rs)
	}
	return rs[n-1], nil
}

func (f *fakeLLM) callsFor(system string) []llmCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []llmCall
	for _, c := range f.calls {
		if c.system == system {
			out = append(out, c)
		}
	}
	return out
}

// fakeGenerator delegates to fn and records every request.
type fakeGenerator struct {
	mu    sync.Mutex
	clock *clockwork.FakeClock
	fn    func(req Request) (Result, error)
	reqs  []Request
}

func (g *fakeGenerator) Generate(ctx context.Context, req Request, _ *summary.Statistics) (Result, error) {
	g.mu.Lock()
	g.reqs = append(g.reqs, req)
	g.mu.Unlock()
	if g.clock != nil {
		g.clock.Advance(time.Second)
	}
	return g.fn(req)
}

func (g *fakeGenerator) count(role Role) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, r := range g.reqs {
		if r.Role() == role {
			n++
		}
	}
	return n
}

type summarizerFunc func(ctx context.Context) (*summary.Statistics, error)

func (f summarizerFunc) Summarize(ctx context.Context) (*summary.Statistics, error) { return f(ctx) }

func staticSummarizer(stats *summary.Statistics) Summarizer {
	return summarizerFunc(func(context.Context) (*summary.Statistics, error) { return stats, nil })
}

func testStats() *summary.Statistics {
	return &summary.Statistics{
		Overview: summary.Overview{TotalRows: 4, TotalSpend: 600, TotalRevenue: 1550, OverallROAS: 1550.0 / 600},
		LowPerformers: []summary.LowPerformer{
			{Campaign: "A", CTR: 0.01, Spend: 500, ROAS: 2.5, CreativeMessage: "Comfort first"},
		},
		CreativePerformance: summary.CreativePerformance{
			TopMessages: []summary.MessagePerformance{
				{CreativeMessage: "Comfort first", CTR: 0.01, ROAS: 2.5, Spend: 500},
			},
		},
	}
}
