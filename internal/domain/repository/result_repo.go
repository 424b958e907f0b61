package repository

import (
	"context"

	"github.com/yourusername/buildle-api/internal/domain/entity"
)

// ResultRepository определяет методы для работы с результатами раундов
type ResultRepository interface {
	// Upsert записывает результат игрока за раунд. Флаг is_round_winner при
	// конфликте не перезаписывается.
	Upsert(ctx context.Context, result *entity.ChallengeResult) error
	// MarkRoundWinner выставляет is_round_winner = true результату игрока
	MarkRoundWinner(ctx context.Context, challengeID string, round int, playerID string) error
	// ListRound возвращает результаты раунда в порядке лидерборда
	ListRound(ctx context.Context, challengeID string, round int) ([]entity.ChallengeResult, error)
	// ListRoundWinners возвращает строки с is_round_winner = true по всем раундам
	ListRoundWinners(ctx context.Context, challengeID string) ([]entity.ChallengeResult, error)
	// CountWins возвращает количество выигранных игроком раундов
	CountWins(ctx context.Context, challengeID, playerID string) (int64, error)
}
