package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/yourusername/buildle-api/internal/domain/entity"
	"github.com/yourusername/buildle-api/internal/domain/repository"
	apperrors "github.com/yourusername/buildle-api/internal/pkg/errors"
)

const standingsCacheKeyPrefix = "standings:"

// LeaderboardService строит таблицу раунда и счет матча
type LeaderboardService struct {
	challengeRepo repository.ChallengeRepository
	resultRepo    repository.ResultRepository
	cache         repository.CacheRepository
	cacheTTL      time.Duration
	logger        zerolog.Logger
}

// NewLeaderboardService создает сервис лидербордов. cache может быть nil.
func NewLeaderboardService(
	challengeRepo repository.ChallengeRepository,
	resultRepo repository.ResultRepository,
	cache repository.CacheRepository,
	cacheTTL time.Duration,
	logger zerolog.Logger,
) *LeaderboardService {
	return &LeaderboardService{
		challengeRepo: challengeRepo,
		resultRepo:    resultRepo,
		cache:         cache,
		cacheTTL:      cacheTTL,
		logger:        logger.With().Str("component", "leaderboard_service").Logger(),
	}
}

// RoundResults возвращает результаты раунда в порядке лидерборда
func (s *LeaderboardService) RoundResults(ctx context.Context, challengeID string, round int) ([]entity.ChallengeResult, error) {
	if round < 1 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidRound, round)
	}
	if _, err := s.challengeRepo.GetByID(ctx, challengeID); err != nil {
		return nil, err
	}
	results, err := s.resultRepo.ListRound(ctx, challengeID, round)
	if err != nil {
		return nil, fmt.Errorf("failed to list round results: %w", err)
	}
	SortRoundResults(results)
	return results, nil
}

// Standings возвращает счет матча: победы в раундах по игрокам.
//
// Ключ кеша включает раунд и статус челленджа, поэтому каждое закрытие
// раунда переводит читателей на новый ключ. Пока победитель раунда уже
// захвачен, но статус еще running, кеш не читается и не пишется:
// is_round_winner в этот момент может быть еще не выставлен.
func (s *LeaderboardService) Standings(ctx context.Context, challengeID string) ([]entity.MatchScore, error) {
	challenge, err := s.challengeRepo.GetByID(ctx, challengeID)
	if err != nil {
		return nil, err
	}

	useCache := s.cache != nil && !closingRound(challenge)
	key := standingsCacheKey(challenge)
	if useCache {
		var cached []entity.MatchScore
		err := s.cache.GetJSON(ctx, key, &cached)
		if err == nil {
			return cached, nil
		}
		if !errors.Is(err, apperrors.ErrNotFound) {
			s.logger.Warn().Err(err).Str("challenge_id", challengeID).Msg("standings cache read failed")
		}
	}

	winners, err := s.resultRepo.ListRoundWinners(ctx, challengeID)
	if err != nil {
		return nil, fmt.Errorf("failed to list round winners: %w", err)
	}
	standings := ComputeStandings(winners)

	if useCache && s.cacheTTL > 0 {
		if err := s.cache.SetJSON(ctx, key, standings, s.cacheTTL); err != nil {
			s.logger.Warn().Err(err).Str("challenge_id", challengeID).Msg("standings cache write failed")
		}
	}
	return standings, nil
}

// standingsCacheKey - standings:<id>:<round>:<status>
func standingsCacheKey(c *entity.Challenge) string {
	return fmt.Sprintf("%s%s:%d:%s", standingsCacheKeyPrefix, c.ID, c.CurrentRound, c.Status)
}

// closingRound - победитель захвачен, закрытие раунда еще не завершено
func closingRound(c *entity.Challenge) bool {
	return c.IsRunning() && c.RoundWinner() != nil
}

// lessRoundResult: победившие выше, затем меньше попыток, быстрее, больше очков
func lessRoundResult(a, b entity.ChallengeResult) bool {
	if a.Won != b.Won {
		return a.Won
	}
	if a.Tries != b.Tries {
		return a.Tries < b.Tries
	}
	if a.DurationSec != b.DurationSec {
		return a.DurationSec < b.DurationSec
	}
	return a.Score > b.Score
}

// SortRoundResults сортирует результаты раунда стабильно на месте
func SortRoundResults(results []entity.ChallengeResult) {
	sort.SliceStable(results, func(i, j int) bool {
		return lessRoundResult(results[i], results[j])
	})
}

// ComputeStandings считает победы по строкам is_round_winner.
// Имя берется из первой строки игрока. Сортировка стабильная по убыванию побед,
// поэтому равные счета сохраняют порядок первой победы.
func ComputeStandings(winners []entity.ChallengeResult) []entity.MatchScore {
	index := make(map[string]int)
	standings := make([]entity.MatchScore, 0)
	for _, r := range winners {
		if !r.IsRoundWinner {
			continue
		}
		i, ok := index[r.PlayerID]
		if !ok {
			index[r.PlayerID] = len(standings)
			standings = append(standings, entity.MatchScore{PlayerID: r.PlayerID, Name: r.Name})
			i = len(standings) - 1
		}
		standings[i].Wins++
	}
	sort.SliceStable(standings, func(i, j int) bool {
		return standings[i].Wins > standings[j].Wins
	})
	return standings
}
