package postgres

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/yourusername/buildle-api/internal/domain/entity"
	apperrors "github.com/yourusername/buildle-api/internal/pkg/errors"
)

// PlayerRepo реализует repository.PlayerRepository
type PlayerRepo struct {
	db *gorm.DB
}

// NewPlayerRepo создает новый репозиторий игроков
func NewPlayerRepo(db *gorm.DB) *PlayerRepo {
	return &PlayerRepo{db: db}
}

// Upsert добавляет игрока или обновляет его имя; joined_at сохраняется с первого входа
func (r *PlayerRepo) Upsert(ctx context.Context, player *entity.ChallengePlayer) error {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "challenge_id"}, {Name: "player_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name"}),
	}).Create(player).Error
	if err != nil {
		return fmt.Errorf("upsert player %s in %s: %w", player.PlayerID, player.ChallengeID, err)
	}
	return nil
}

// Get возвращает игрока челленджа
func (r *PlayerRepo) Get(ctx context.Context, challengeID, playerID string) (*entity.ChallengePlayer, error) {
	var player entity.ChallengePlayer
	err := r.db.WithContext(ctx).
		Where("challenge_id = ? AND player_id = ?", challengeID, playerID).
		First(&player).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, err
	}
	return &player, nil
}

// List возвращает состав челленджа по времени входа
func (r *PlayerRepo) List(ctx context.Context, challengeID string) ([]entity.ChallengePlayer, error) {
	var players []entity.ChallengePlayer
	err := r.db.WithContext(ctx).
		Where("challenge_id = ?", challengeID).
		Order("joined_at ASC, id ASC").
		Find(&players).Error
	if err != nil {
		return nil, err
	}
	return players, nil
}
