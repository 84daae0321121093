package chess

import (
	"fmt"
	"time"

	"github.com/park285/cheese-chess-server/internal/domain"
)

// DifficultyPreset maps a difficulty to engine strength and search budget.
// DepthCap 0 means the search is bounded by MoveTime only.
type DifficultyPreset struct {
	Name       domain.Difficulty
	SkillLevel int
	DepthCap   int
	MoveTime   time.Duration
}

var DefaultPresets = map[domain.Difficulty]DifficultyPreset{
	domain.Easy: {
		Name:       domain.Easy,
		SkillLevel: 1,
		DepthCap:   8,
		MoveTime:   100 * time.Millisecond,
	},
	domain.Medium: {
		Name:       domain.Medium,
		SkillLevel: 10,
		DepthCap:   12,
		MoveTime:   300 * time.Millisecond,
	},
	domain.Hard: {
		Name:       domain.Hard,
		SkillLevel: 15,
		DepthCap:   18,
		MoveTime:   700 * time.Millisecond,
	},
	domain.Impossible: {
		Name:       domain.Impossible,
		SkillLevel: 20,
		MoveTime:   time.Second,
	},
}

func GetPreset(d domain.Difficulty) (DifficultyPreset, error) {
	p, ok := DefaultPresets[d]
	if !ok {
		return DifficultyPreset{}, fmt.Errorf("%w: %q", domain.ErrInvalidDifficulty, d)
	}
	return p, nil
}

func ValidatePreset(p DifficultyPreset) error {
	switch {
	case p.SkillLevel < 0 || p.SkillLevel > 20:
		return fmt.Errorf("skill level %d out of range 0-20", p.SkillLevel)
	case p.DepthCap < 0:
		return fmt.Errorf("depth cap must be >= 0: %d", p.DepthCap)
	case p.MoveTime < 0:
		return fmt.Errorf("move time must be >= 0: %s", p.MoveTime)
	case p.DepthCap == 0 && p.MoveTime == 0:
		return fmt.Errorf("preset %s does not define search limits", p.Name)
	}
	return nil
}
