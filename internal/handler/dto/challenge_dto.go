package dto

import (
	"time"

	"github.com/yourusername/buildle-api/internal/domain/entity"
)

// CreateChallengeRequest представляет запрос на создание челленджа
type CreateChallengeRequest struct {
	Name            string `json:"name" binding:"max=64"`
	PlayerID        string `json:"player_id" binding:"max=64"`
	Length          int    `json:"length" binding:"omitempty,min=2,max=12"`
	MatchTargetWins int    `json:"match_target_wins" binding:"omitempty,min=1,max=20"`
}

// JoinChallengeRequest представляет запрос на вход в челлендж
type JoinChallengeRequest struct {
	Name     string `json:"name" binding:"max=64"`
	PlayerID string `json:"player_id" binding:"max=64"`
}

// ChallengeResponse - публичное представление челленджа.
// Ключ хоста не отдается никогда, слово - только после окончания раунда.
type ChallengeResponse struct {
	ID              string            `json:"id"`
	Length          int               `json:"length"`
	Status          string            `json:"status"`
	CurrentRound    int               `json:"current_round"`
	StartsAt        *time.Time        `json:"starts_at"`
	RoundWinner     *entity.PlayerRef `json:"round_winner"`
	RoundEndedAt    *time.Time        `json:"round_ended_at"`
	MatchWinner     *entity.PlayerRef `json:"match_winner"`
	MatchTargetWins int               `json:"match_target_wins"`
	Word            string            `json:"word,omitempty"`
	IsHost          bool              `json:"is_host,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

// NewChallengeResponse создает DTO челленджа
func NewChallengeResponse(c *entity.Challenge) *ChallengeResponse {
	if c == nil {
		return nil
	}
	resp := &ChallengeResponse{
		ID:              c.ID,
		Length:          c.Length,
		Status:          c.Status,
		CurrentRound:    c.CurrentRound,
		StartsAt:        c.StartsAt,
		RoundWinner:     c.RoundWinner(),
		RoundEndedAt:    c.RoundEndedAt,
		MatchWinner:     c.MatchWinner(),
		MatchTargetWins: c.TargetWins(),
		CreatedAt:       c.CreatedAt,
		UpdatedAt:       c.UpdatedAt,
	}
	if c.Status == entity.ChallengeStatusRoundOver || c.IsMatchOver() {
		resp.Word = c.Word
	}
	return resp
}

// CreateChallengeResponse - ответ на создание челленджа
type CreateChallengeResponse struct {
	Challenge *ChallengeResponse      `json:"challenge"`
	HostKey   string                  `json:"host_key"`
	Link      string                  `json:"link"`
	Player    *entity.ChallengePlayer `json:"player"`
	Ticket    string                  `json:"ticket"`
	ExpiresIn int                     `json:"expires_in"`
}

// JoinChallengeResponse - ответ на вход: запись игрока и WS-тикет
type JoinChallengeResponse struct {
	Player    *entity.ChallengePlayer `json:"player"`
	Ticket    string                  `json:"ticket"`
	ExpiresIn int                     `json:"expires_in"`
}

// RoundResultsResponse - лидерборд раунда
type RoundResultsResponse struct {
	ChallengeID string                   `json:"challenge_id"`
	Round       int                      `json:"round"`
	Results     []entity.ChallengeResult `json:"results"`
}

// StandingsResponse - счет матча
type StandingsResponse struct {
	ChallengeID string              `json:"challenge_id"`
	TargetWins  int                 `json:"target_wins"`
	Standings   []entity.MatchScore `json:"standings"`
}

// RandomWordResponse - слово для одиночной игры
type RandomWordResponse struct {
	Word   string `json:"word"`
	Length int    `json:"length"`
}
