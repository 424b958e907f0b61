package entity

import (
	"time"
)

// ChallengeResult представляет итог игрока в одном раунде.
// IsRoundWinner выставлен не более чем у одной строки на (challenge, round)
type ChallengeResult struct {
	ID            uint      `gorm:"primaryKey" json:"-"`
	ChallengeID   string    `gorm:"size:16;not null;uniqueIndex:idx_challenge_round_player;index:idx_challenge_round" json:"challenge_id"`
	Round         int       `gorm:"not null;uniqueIndex:idx_challenge_round_player;index:idx_challenge_round" json:"round"`
	PlayerID      string    `gorm:"size:64;not null;uniqueIndex:idx_challenge_round_player" json:"player_id"`
	Name          string    `gorm:"size:64;not null" json:"name"`
	Tries         int       `gorm:"not null" json:"tries"`
	Won           bool      `gorm:"not null;default:false" json:"won"`
	DurationSec   int       `gorm:"not null" json:"duration_sec"`
	Score         int       `gorm:"not null;default:0" json:"score"`
	IsRoundWinner bool      `gorm:"not null;default:false" json:"is_round_winner"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// TableName определяет имя таблицы для GORM
func (ChallengeResult) TableName() string {
	return "challenge_results"
}

// MatchScore - число побед игрока в раундах матча. Вычисляется, не хранится
type MatchScore struct {
	PlayerID string `json:"player_id"`
	Name     string `json:"name"`
	Wins     int    `json:"wins"`
}
