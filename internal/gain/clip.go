package gain

import (
	"math"

	"github.com/farcloser/tropism/internal/types"
)

// DefaultCeiling is digital full scale.
const DefaultCeiling = 1.0

const floorTolerance = 1e-9

// LimitForClipping returns the largest adjustment up to requested that keeps peak below ceiling and the loudest
// gain field below saturation. A peak of zero is treated as unknown. Negative requests are returned unchanged.
func LimitForClipping(requested int, peak, ceiling float64, stats types.GainStats) int {
	if requested <= 0 {
		return requested
	}

	limit := requested

	if stats.Granules > 0 {
		limit = min(limit, stats.HeadroomSteps())
	}

	if peak > 0 && ceiling > 0 {
		allowed := int(math.Floor(20*math.Log10(ceiling/peak)/StepDB + floorTolerance))
		limit = min(limit, max(allowed, 0))
	}

	return max(limit, 0)
}

// PreventClipping limits each channel of adj. reduced is the largest reduction applied to any channel.
func PreventClipping(adj Adjustment, peak, ceiling float64, stats types.GainStats) (effective Adjustment, reduced int) {
	effective = Adjustment{
		Left:  LimitForClipping(adj.Left, peak, ceiling, stats),
		Right: LimitForClipping(adj.Right, peak, ceiling, stats),
	}

	reduced = max(adj.Left-effective.Left, adj.Right-effective.Right)

	return effective, reduced
}
