package selection

import (
	"context"

	"cat-engine/internal/models"
)

// ExposureSource reads exposure records for pool introspection.
type ExposureSource interface {
	Find(ctx context.Context, itemID string, version int) (*models.ExposureRecord, error)
}

// TopicPoolInfo summarizes one topic's slice of the eligible pool.
type TopicPoolInfo struct {
	Total        int `json:"total"`
	Calibrated   int `json:"calibrated"`
	Restricted   int `json:"restricted"`
	ByDifficulty map[string]int `json:"by_difficulty"`
}

// PoolInfo is the distribution report for an eligible pool, used by
// operators to judge whether a constraint set can sustain an adaptive
// session.
type PoolInfo struct {
	TotalItems       int                      `json:"total_items"`
	CalibratedItems  int                      `json:"calibrated_items"`
	RestrictedItems  int                      `json:"restricted_items"`
	Topics           map[string]TopicPoolInfo `json:"topics"`
	ViableForSession bool                     `json:"viable_for_session"`
}

// PoolManager inspects the eligible pool behind a constraint set.
type PoolManager struct {
	items        ItemSource
	calibrations CalibrationSource
	exposures    ExposureSource
}

func NewPoolManager(items ItemSource, calibrations CalibrationSource, exposures ExposureSource) *PoolManager {
	return &PoolManager{items: items, calibrations: calibrations, exposures: exposures}
}

// Describe reports the topic/difficulty distribution, calibration coverage
// and exposure restriction of the pool matching the constraints. A pool is
// viable when it can cover at least targetCount administrations.
func (m *PoolManager) Describe(ctx context.Context, c models.Constraints, targetCount int) (*PoolInfo, error) {
	pool, err := m.items.FindEligible(ctx, c, nil)
	if err != nil {
		return nil, err
	}

	info := &PoolInfo{Topics: map[string]TopicPoolInfo{}}
	for _, item := range pool {
		info.TotalItems++
		topic := info.Topics[item.TopicID]
		if topic.ByDifficulty == nil {
			topic.ByDifficulty = map[string]int{}
		}
		topic.Total++
		topic.ByDifficulty[item.DifficultyLabel]++

		cal, err := m.calibrations.FindPromoted(ctx, item.ItemID, item.Version)
		if err != nil {
			return nil, err
		}
		if cal != nil {
			info.CalibratedItems++
			topic.Calibrated++
		}

		rec, err := m.exposures.Find(ctx, item.ItemID, item.Version)
		if err != nil {
			return nil, err
		}
		if rec != nil && rec.ControlProbability < 1.0 {
			info.RestrictedItems++
			topic.Restricted++
		}
		info.Topics[item.TopicID] = topic
	}

	info.ViableForSession = info.TotalItems >= targetCount
	return info, nil
}
