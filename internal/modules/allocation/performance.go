package allocation

import (
	"context"
	"math/big"
	"sort"
	"time"

	sdkmath "cosmossdk.io/math"
	"gonum.org/v1/gonum/stat"

	"github.com/aristath/givevault/internal/domain"
)

// maxSamples bounds the per-adapter history kept in memory
const maxSamples = 512

// Sample is one observation of an adapter's reported assets
type Sample struct {
	At          time.Time   `json:"at"`
	TotalAssets sdkmath.Int `json:"total_assets"`
}

// AdapterPerformance summarises period-over-period growth of an adapter
type AdapterPerformance struct {
	Adapter     domain.Address `json:"adapter"`
	Kind        string         `json:"kind"`
	Active      bool           `json:"active"`
	TotalAssets sdkmath.Int    `json:"total_assets"`
	Samples     int            `json:"samples"`
	MeanGrowth  float64        `json:"mean_growth"`
	StdDev      float64        `json:"std_dev"`
}

// Sample records the current total assets of every approved adapter
func (a *Allocator) Sample(ctx context.Context) error {
	return a.Read(ctx, func(ctx context.Context) error {
		now := a.clock.Now()
		a.samplesMu.Lock()
		defer a.samplesMu.Unlock()
		for _, adapter := range a.policy.approved {
			history := append(a.samples[adapter.Address()], Sample{At: now, TotalAssets: adapter.TotalAssets()})
			if len(history) > maxSamples {
				history = history[len(history)-maxSamples:]
			}
			a.samples[adapter.Address()] = history
		}
		return nil
	})
}

// Samples returns the recorded history of one adapter
func (a *Allocator) Samples(addr domain.Address) []Sample {
	a.samplesMu.Lock()
	defer a.samplesMu.Unlock()
	return append([]Sample(nil), a.samples[addr]...)
}

// PerformanceReport returns growth statistics for every approved adapter,
// best mean growth first.
func (a *Allocator) PerformanceReport(ctx context.Context) ([]AdapterPerformance, error) {
	var report []AdapterPerformance
	err := a.Read(ctx, func(ctx context.Context) error {
		a.samplesMu.Lock()
		defer a.samplesMu.Unlock()
		for _, adapter := range a.policy.approved {
			history := a.samples[adapter.Address()]
			entry := AdapterPerformance{
				Adapter:     adapter.Address(),
				Kind:        string(adapter.Kind()),
				Active:      a.isActive(adapter.Address()),
				TotalAssets: adapter.TotalAssets(),
				Samples:     len(history),
			}
			if growth := periodGrowth(history); len(growth) > 0 {
				entry.MeanGrowth, entry.StdDev = stat.MeanStdDev(growth, nil)
				if len(growth) == 1 {
					entry.StdDev = 0
				}
			}
			report = append(report, entry)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(report, func(i, j int) bool {
		return report[i].MeanGrowth > report[j].MeanGrowth
	})
	return report, nil
}

// periodGrowth converts consecutive samples into fractional changes. Periods
// starting from zero assets are skipped.
func periodGrowth(history []Sample) []float64 {
	var out []float64
	for i := 1; i < len(history); i++ {
		prev := history[i-1].TotalAssets
		if prev.IsNil() || !prev.IsPositive() {
			continue
		}
		delta := history[i].TotalAssets.Sub(prev)
		out = append(out, ratio(delta, prev))
	}
	return out
}

func ratio(num, den sdkmath.Int) float64 {
	q := new(big.Float).Quo(new(big.Float).SetInt(num.BigInt()), new(big.Float).SetInt(den.BigInt()))
	f, _ := q.Float64()
	return f
}
