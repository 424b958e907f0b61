package repository

import (
	"context"

	"github.com/yourusername/buildle-api/internal/domain/entity"
)

// PlayerRepository определяет методы для работы с составом участников
type PlayerRepository interface {
	// Upsert идемпотентно добавляет игрока; повторный вход обновляет только имя
	Upsert(ctx context.Context, player *entity.ChallengePlayer) error
	Get(ctx context.Context, challengeID, playerID string) (*entity.ChallengePlayer, error)
	// List возвращает игроков в порядке входа
	List(ctx context.Context, challengeID string) ([]entity.ChallengePlayer, error)
}
