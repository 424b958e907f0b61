package entity

import (
	"time"
)

// Статусы челленджа
const (
	ChallengeStatusLobby     = "lobby"
	ChallengeStatusRunning   = "running"
	ChallengeStatusRoundOver = "round_over"
	ChallengeStatusMatchOver = "match_over"
	// ChallengeStatusFinished - устаревший синоним match_over в старых строках
	ChallengeStatusFinished = "finished"
)

const (
	DefaultMatchTargetWins = 5
	MaxMatchTargetWins     = 20

	// RaceStartDelay - пауза между командой старта и общим моментом начала гонки
	RaceStartDelay = 5 * time.Second
)

// Challenge представляет матч, которым можно поделиться по ссылке
type Challenge struct {
	ID                  string     `gorm:"primaryKey;size:16" json:"id"`
	Word                string     `gorm:"size:64;not null" json:"word"`
	Length              int        `gorm:"not null" json:"length"`
	Status              string     `gorm:"size:20;not null;default:'lobby';index" json:"status"`
	CurrentRound        int        `gorm:"not null;default:1" json:"current_round"`
	HostKey             string     `gorm:"size:32;not null" json:"-"`
	StartsAt            *time.Time `json:"starts_at"`
	RoundWinnerPlayerID *string    `gorm:"size:64" json:"round_winner_player_id"`
	RoundWinnerName     *string    `gorm:"size:64" json:"round_winner_name"`
	RoundEndedAt        *time.Time `json:"round_ended_at"`
	MatchWinnerPlayerID *string    `gorm:"size:64" json:"match_winner_player_id"`
	MatchWinnerName     *string    `gorm:"size:64" json:"match_winner_name"`
	MatchTargetWins     int        `gorm:"not null;default:5" json:"match_target_wins"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

// TableName определяет имя таблицы для GORM
func (Challenge) TableName() string {
	return "challenges"
}

// IsLobby проверяет, ждет ли челлендж старта гонки от хоста
func (c *Challenge) IsLobby() bool {
	return c.Status == ChallengeStatusLobby
}

// IsRunning проверяет, идет ли раунд
func (c *Challenge) IsRunning() bool {
	return c.Status == ChallengeStatusRunning
}

// IsMatchOver проверяет, окончен ли матч. Устаревший finished считается match_over
func (c *Challenge) IsMatchOver() bool {
	return c.Status == ChallengeStatusMatchOver || c.Status == ChallengeStatusFinished
}

// CanAdvanceRound проверяет, может ли хост перейти к следующему раунду
func (c *Challenge) CanAdvanceRound() bool {
	return c.Status == ChallengeStatusRoundOver || c.IsMatchOver()
}

// RoundClosed проверяет, есть ли у текущего раунда победитель или закрыт ли он
func (c *Challenge) RoundClosed() bool {
	return c.RoundWinnerPlayerID != nil || c.Status == ChallengeStatusRoundOver || c.IsMatchOver()
}

// TargetWins возвращает match_target_wins; для старых строк без значения - значение по умолчанию
func (c *Challenge) TargetWins() int {
	if c.MatchTargetWins <= 0 {
		return DefaultMatchTargetWins
	}
	return c.MatchTargetWins
}

// RoundWinner возвращает победителя раунда или nil
func (c *Challenge) RoundWinner() *PlayerRef {
	if c.RoundWinnerPlayerID == nil {
		return nil
	}
	return &PlayerRef{PlayerID: *c.RoundWinnerPlayerID, Name: deref(c.RoundWinnerName)}
}

// MatchWinner возвращает победителя матча или nil
func (c *Challenge) MatchWinner() *PlayerRef {
	if c.MatchWinnerPlayerID == nil {
		return nil
	}
	return &PlayerRef{PlayerID: *c.MatchWinnerPlayerID, Name: deref(c.MatchWinnerName)}
}

// PlayerRef - идентификатор и отображаемое имя игрока
type PlayerRef struct {
	PlayerID string `json:"player_id"`
	Name     string `json:"name"`
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
