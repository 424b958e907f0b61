package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"gorm.io/gorm"

	"github.com/yourusername/buildle-api/internal/domain/entity"
	"github.com/yourusername/buildle-api/internal/domain/repository"
	apperrors "github.com/yourusername/buildle-api/internal/pkg/errors"
)

// ChallengeRepo реализует repository.ChallengeRepository
type ChallengeRepo struct {
	db *gorm.DB
}

// NewChallengeRepo создает новый репозиторий челленджей
func NewChallengeRepo(db *gorm.DB) *ChallengeRepo {
	return &ChallengeRepo{db: db}
}

// Create сохраняет новый челлендж. Коллизия ID возвращает repository.ErrDuplicateID.
func (r *ChallengeRepo) Create(ctx context.Context, challenge *entity.Challenge) error {
	if err := r.db.WithContext(ctx).Create(challenge).Error; err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", repository.ErrDuplicateID, challenge.ID)
		}
		return fmt.Errorf("create challenge %s: %w", challenge.ID, err)
	}
	return nil
}

// GetByID возвращает челлендж по ID
func (r *ChallengeRepo) GetByID(ctx context.Context, id string) (*entity.Challenge, error) {
	var challenge entity.Challenge
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&challenge).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, err
	}
	return &challenge, nil
}

// StartRace атомарно переводит lobby → running.
// RowsAffected == 0 → челлендж не в lobby (или не существует).
func (r *ChallengeRepo) StartRace(ctx context.Context, id string, startsAt time.Time) (bool, error) {
	result := r.db.WithContext(ctx).Model(&entity.Challenge{}).
		Where("id = ? AND status = ?", id, entity.ChallengeStatusLobby).
		Updates(map[string]interface{}{
			"status":    entity.ChallengeStatusRunning,
			"starts_at": startsAt,
		})
	if result.Error != nil {
		return false, fmt.Errorf("start race %s failed: %w", id, result.Error)
	}
	return result.RowsAffected == 1, nil
}

// ClaimRoundWinner - единственная точка сериализации раунда.
// Один условный UPDATE: из нескольких конкурентных вызовов разных игроков
// предикат выполнится только для одного. Повторный вызов того же победителя,
// пока раунд в running, снова возвращает true: так закрытие раунда можно
// повторить после сбоя записи. round_ended_at остается от первого вызова.
func (r *ChallengeRepo) ClaimRoundWinner(ctx context.Context, id string, round int, winner entity.PlayerRef, endedAt time.Time) (bool, error) {
	result := r.db.WithContext(ctx).Model(&entity.Challenge{}).
		Where("id = ? AND status = ? AND current_round = ? AND (round_winner_player_id IS NULL OR round_winner_player_id = ?)",
			id, entity.ChallengeStatusRunning, round, winner.PlayerID).
		Updates(map[string]interface{}{
			"round_winner_player_id": winner.PlayerID,
			"round_winner_name":      winner.Name,
			"round_ended_at":         gorm.Expr("COALESCE(round_ended_at, ?)", endedAt),
		})
	if result.Error != nil {
		return false, fmt.Errorf("claim round %d of %s failed: %w", round, id, result.Error)
	}
	return result.RowsAffected == 1, nil
}

// CloseRound переводит running → round_over/match_over. Выполняется только
// тем, кто выиграл ClaimRoundWinner в этом раунде.
func (r *ChallengeRepo) CloseRound(ctx context.Context, id string, round int, winnerID string, matchWinner *entity.PlayerRef) (bool, error) {
	updates := map[string]interface{}{
		"status": entity.ChallengeStatusRoundOver,
	}
	if matchWinner != nil {
		updates["status"] = entity.ChallengeStatusMatchOver
		updates["match_winner_player_id"] = matchWinner.PlayerID
		updates["match_winner_name"] = matchWinner.Name
	}

	result := r.db.WithContext(ctx).Model(&entity.Challenge{}).
		Where("id = ? AND status = ? AND current_round = ? AND round_winner_player_id = ?",
			id, entity.ChallengeStatusRunning, round, winnerID).
		Updates(updates)
	if result.Error != nil {
		return false, fmt.Errorf("close round %d of %s failed: %w", round, id, result.Error)
	}
	return result.RowsAffected == 1, nil
}

// AdvanceRound возвращает челлендж в lobby со следующим раундом и новым словом.
// host_key, length и match_target_wins не меняются.
func (r *ChallengeRepo) AdvanceRound(ctx context.Context, id string, fromRound int, word string) (bool, error) {
	result := r.db.WithContext(ctx).Model(&entity.Challenge{}).
		Where("id = ? AND current_round = ? AND status IN ?", id, fromRound, []string{
			entity.ChallengeStatusRoundOver,
			entity.ChallengeStatusMatchOver,
			entity.ChallengeStatusFinished,
		}).
		Updates(map[string]interface{}{
			"word":                   word,
			"status":                 entity.ChallengeStatusLobby,
			"current_round":          gorm.Expr("current_round + 1"),
			"starts_at":              nil,
			"round_winner_player_id": nil,
			"round_winner_name":      nil,
			"round_ended_at":         nil,
		})
	if result.Error != nil {
		return false, fmt.Errorf("advance round of %s failed: %w", id, result.Error)
	}
	return result.RowsAffected == 1, nil
}

// isUniqueViolation проверяет unique violation для pgconn, lib/pq и
// переведенной gorm ошибки (sqlite)
func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	// pgx/v5 driver (pgconn.PgError)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return true
	}
	// lib/pq driver
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return true
	}
	return false
}
