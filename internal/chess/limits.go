package chess

import (
	"github.com/park285/cheese-chess-server/internal/chess/uci"
)

// SearchLimits converts a preset into UCI limits: depth when the preset has
// one, movetime otherwise.
func SearchLimits(p DifficultyPreset) (uci.Limits, error) {
	if err := ValidatePreset(p); err != nil {
		return uci.Limits{}, err
	}
	if p.DepthCap > 0 {
		return uci.Limits{Depth: p.DepthCap}, nil
	}
	return uci.Limits{MoveTimeMillis: int(p.MoveTime.Milliseconds())}, nil
}

func sessionOptions(p DifficultyPreset, threads, hashMB int) uci.Options {
	return uci.Options{
		Threads:    threads,
		SkillLevel: p.SkillLevel,
		HashMB:     hashMB,
	}
}
