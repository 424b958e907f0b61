package repository

import (
	"context"
	"errors"
	"time"

	"github.com/yourusername/buildle-api/internal/domain/entity"
)

// ErrDuplicateID возвращается, когда сгенерированный ID челленджа уже занят
var ErrDuplicateID = errors.New("challenge id already exists")

// ChallengeRepository определяет методы для работы с челленджами.
// Все переходы состояний выполняются одним условным UPDATE; bool-результат
// сообщает, совпал ли предикат (RowsAffected == 1).
type ChallengeRepository interface {
	Create(ctx context.Context, challenge *entity.Challenge) error
	GetByID(ctx context.Context, id string) (*entity.Challenge, error)

	// StartRace: lobby → running, starts_at = startsAt
	StartRace(ctx context.Context, id string, startsAt time.Time) (bool, error)

	// ClaimRoundWinner - compare-and-swap победителя раунда.
	// Срабатывает только при status = running, current_round = round и пустом
	// round_winner_player_id либо равном winner.PlayerID (повтор того же победителя).
	ClaimRoundWinner(ctx context.Context, id string, round int, winner entity.PlayerRef, endedAt time.Time) (bool, error)

	// CloseRound переводит раунд, закрытый winnerID, в round_over или match_over.
	// matchWinner != nil означает завершение матча.
	CloseRound(ctx context.Context, id string, round int, winnerID string, matchWinner *entity.PlayerRef) (bool, error)

	// AdvanceRound: round_over|match_over|finished → lobby с новым словом и current_round+1
	AdvanceRound(ctx context.Context, id string, fromRound int, word string) (bool, error)
}
