package entity

import (
	"strings"
	"time"
	"unicode/utf8"
)

const (
	// DefaultPlayerName подставляется, если игрок вошел без имени
	DefaultPlayerName = "لاعب"

	maxPlayerNameRunes = 32
)

// ChallengePlayer представляет участника челленджа.
// Одна строка на (challenge, player), обновляется при каждом входе
type ChallengePlayer struct {
	ID          uint      `gorm:"primaryKey" json:"-"`
	ChallengeID string    `gorm:"size:16;not null;uniqueIndex:idx_challenge_player" json:"challenge_id"`
	PlayerID    string    `gorm:"size:64;not null;uniqueIndex:idx_challenge_player" json:"player_id"`
	Name        string    `gorm:"size:64;not null" json:"name"`
	JoinedAt    time.Time `gorm:"not null" json:"joined_at"`
}

// TableName определяет имя таблицы для GORM
func (ChallengePlayer) TableName() string {
	return "challenge_players"
}

// NormalizePlayerName обрезает пробелы и длину имени, пустое заменяет именем по умолчанию
func NormalizePlayerName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return DefaultPlayerName
	}
	if utf8.RuneCountInString(name) > maxPlayerNameRunes {
		name = string([]rune(name)[:maxPlayerNameRunes])
	}
	return name
}
