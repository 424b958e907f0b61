package session

import (
	"math"
	"time"

	"github.com/yourusername/buildle-api/internal/domain/entity"
)

// Phase - то, что видит игрок, выведенное из статуса челленджа и текущего времени
type Phase string

const (
	PhaseLobby     Phase = "lobby"
	PhaseCountdown Phase = "countdown"
	PhasePlaying   Phase = "playing"
	PhaseRoundOver Phase = "round_over"
	PhaseMatchOver Phase = "match_over"
	PhaseFinished  Phase = "finished"
)

// DerivePhase возвращает фазу и число секунд до старта (0 вне отсчета)
func DerivePhase(c *entity.Challenge, now time.Time) (Phase, int) {
	if c == nil {
		return PhaseLobby, 0
	}
	switch c.Status {
	case entity.ChallengeStatusRunning:
		if c.StartsAt != nil && now.Before(*c.StartsAt) {
			return PhaseCountdown, int(math.Ceil(c.StartsAt.Sub(now).Seconds()))
		}
		return PhasePlaying, 0
	case entity.ChallengeStatusRoundOver:
		return PhaseRoundOver, 0
	case entity.ChallengeStatusMatchOver:
		return PhaseMatchOver, 0
	case entity.ChallengeStatusFinished:
		return PhaseFinished, 0
	default:
		return PhaseLobby, 0
	}
}
