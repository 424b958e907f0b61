package postgres

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/yourusername/buildle-api/internal/domain/entity"
	apperrors "github.com/yourusername/buildle-api/internal/pkg/errors"
)

// ResultRepo реализует repository.ResultRepository
type ResultRepo struct {
	db *gorm.DB
}

// NewResultRepo создает новый репозиторий результатов
func NewResultRepo(db *gorm.DB) *ResultRepo {
	return &ResultRepo{db: db}
}

// Upsert сохраняет результат игрока за раунд (одна строка на challenge/round/player).
// is_round_winner в DoUpdates не входит: повторная запись не снимает флаг победителя.
func (r *ResultRepo) Upsert(ctx context.Context, result *entity.ChallengeResult) error {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "challenge_id"}, {Name: "round"}, {Name: "player_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"name", "tries", "won", "duration_sec", "score", "updated_at",
		}),
	}).Create(result).Error
	if err != nil {
		return fmt.Errorf("upsert result %s/%d/%s: %w", result.ChallengeID, result.Round, result.PlayerID, err)
	}
	return nil
}

// MarkRoundWinner помечает результат игрока как победный
func (r *ResultRepo) MarkRoundWinner(ctx context.Context, challengeID string, round int, playerID string) error {
	res := r.db.WithContext(ctx).Model(&entity.ChallengeResult{}).
		Where("challenge_id = ? AND round = ? AND player_id = ?", challengeID, round, playerID).
		Update("is_round_winner", true)
	if res.Error != nil {
		return fmt.Errorf("mark round winner %s/%d/%s: %w", challengeID, round, playerID, res.Error)
	}
	if res.RowsAffected == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

// ListRound возвращает результаты раунда: победители, меньше попыток, быстрее, больше очков
func (r *ResultRepo) ListRound(ctx context.Context, challengeID string, round int) ([]entity.ChallengeResult, error) {
	var results []entity.ChallengeResult
	err := r.db.WithContext(ctx).
		Where("challenge_id = ? AND round = ?", challengeID, round).
		Order("won DESC, tries ASC, duration_sec ASC, score DESC").
		Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}

// ListRoundWinners возвращает победные строки по всем раундам в порядке раундов
func (r *ResultRepo) ListRoundWinners(ctx context.Context, challengeID string) ([]entity.ChallengeResult, error) {
	var results []entity.ChallengeResult
	err := r.db.WithContext(ctx).
		Where("challenge_id = ? AND is_round_winner = ?", challengeID, true).
		Order("round ASC, updated_at ASC").
		Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}

// CountWins считает выигранные игроком раунды
func (r *ResultRepo) CountWins(ctx context.Context, challengeID, playerID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&entity.ChallengeResult{}).
		Where("challenge_id = ? AND player_id = ? AND is_round_winner = ?", challengeID, playerID, true).
		Count(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}

