package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/yourusername/buildle-api/internal/domain/entity"
	"github.com/yourusername/buildle-api/internal/domain/repository"
	"github.com/yourusername/buildle-api/internal/feed"
	"github.com/yourusername/buildle-api/internal/game"
	"github.com/yourusername/buildle-api/internal/metrics"
)

// RoundService разрешает раунд: записывает результат игрока и, если он
// победил первым, закрывает раунд и при необходимости матч.
//
// Единственная точка сериализации - условный UPDATE строки челленджа
// (ClaimRoundWinner). Все остальные записи идемпотентны.
type RoundService struct {
	challengeRepo repository.ChallengeRepository
	resultRepo    repository.ResultRepository
	publisher     feed.Publisher
	metrics       *metrics.Metrics
	logger        zerolog.Logger
	now           func() time.Time
}

// NewRoundService создает сервис разрешения раундов
func NewRoundService(
	challengeRepo repository.ChallengeRepository,
	resultRepo repository.ResultRepository,
	publisher feed.Publisher,
	m *metrics.Metrics,
	logger zerolog.Logger,
) *RoundService {
	return &RoundService{
		challengeRepo: challengeRepo,
		resultRepo:    resultRepo,
		publisher:     publisher,
		metrics:       m,
		logger:        logger.With().Str("component", "round_service").Logger(),
		now:           time.Now,
	}
}

// SubmitInput - итог доски игрока за раунд
type SubmitInput struct {
	ChallengeID string
	Round       int
	PlayerID    string
	Name        string
	Won         bool
	Tries       int
	// StartedAt - локальный старт раунда у игрока; нулевое значение дает длительность 1с
	StartedAt  time.Time
	FinishedAt time.Time
}

// Outcome - результат Submit
type Outcome struct {
	Result *entity.ChallengeResult
	// ClosedRound - этот вызов выиграл CAS и закрыл раунд
	ClosedRound bool
	MatchOver   bool
	// Wins - счет побед закрывшего игрока после закрытия раунда
	Wins      int64
	Challenge *entity.Challenge
}

// DurationSec возвращает длительность раунда в целых секундах, не меньше 1
func DurationSec(startedAt, finishedAt time.Time) int {
	if startedAt.IsZero() || finishedAt.Before(startedAt) {
		return 1
	}
	d := int(finishedAt.Sub(startedAt) / time.Second)
	if d < 1 {
		return 1
	}
	return d
}

// Submit записывает результат и, для победителя, пытается закрыть раунд.
// Проигрыш в гонке за закрытие не является ошибкой: Outcome.ClosedRound = false.
func (s *RoundService) Submit(ctx context.Context, in SubmitInput) (*Outcome, error) {
	if in.Round < 1 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidRound, in.Round)
	}
	tries := in.Tries
	if !in.Won {
		tries = game.MaxGuesses
	}
	if tries < 1 || tries > game.MaxGuesses {
		return nil, fmt.Errorf("%w: %d", ErrInvalidTries, tries)
	}

	finishedAt := in.FinishedAt
	if finishedAt.IsZero() {
		finishedAt = s.now()
	}
	duration := DurationSec(in.StartedAt, finishedAt)
	name := entity.NormalizePlayerName(in.Name)

	result := &entity.ChallengeResult{
		ChallengeID: in.ChallengeID,
		Round:       in.Round,
		PlayerID:    in.PlayerID,
		Name:        name,
		Tries:       tries,
		Won:         in.Won,
		DurationSec: duration,
		Score:       game.Score(in.Won, tries, duration),
	}
	if err := s.resultRepo.Upsert(ctx, result); err != nil {
		return nil, fmt.Errorf("failed to save result: %w", err)
	}
	s.metrics.ResultRecorded(in.Won)
	s.publish(ctx, feed.ResultChanged(*result))

	outcome := &Outcome{Result: result}
	if !in.Won {
		return outcome, nil
	}

	claimed, err := s.challengeRepo.ClaimRoundWinner(ctx, in.ChallengeID, in.Round,
		entity.PlayerRef{PlayerID: in.PlayerID, Name: name}, s.now())
	if err != nil {
		return nil, fmt.Errorf("failed to claim round: %w", err)
	}
	if !claimed {
		s.metrics.ClaimLost()
		s.logger.Debug().
			Str("challenge_id", in.ChallengeID).
			Int("round", in.Round).
			Str("player_id", in.PlayerID).
			Msg("round already claimed")
		return outcome, nil
	}

	if err := s.closeRound(ctx, in.ChallengeID, in.Round, entity.PlayerRef{PlayerID: in.PlayerID, Name: name}, outcome); err != nil {
		return nil, err
	}
	return outcome, nil
}

// closeRound выполняется только победителем CAS
func (s *RoundService) closeRound(ctx context.Context, challengeID string, round int, winner entity.PlayerRef, outcome *Outcome) error {
	outcome.ClosedRound = true
	outcome.Result.IsRoundWinner = true

	if err := s.resultRepo.MarkRoundWinner(ctx, challengeID, round, winner.PlayerID); err != nil {
		return fmt.Errorf("failed to mark round winner: %w", err)
	}
	s.publish(ctx, feed.ResultChanged(*outcome.Result))

	wins, err := s.resultRepo.CountWins(ctx, challengeID, winner.PlayerID)
	if err != nil {
		return fmt.Errorf("failed to count wins: %w", err)
	}
	outcome.Wins = wins

	// Строка после CAS: цель матча могла быть задана при создании
	claimed, err := s.challengeRepo.GetByID(ctx, challengeID)
	if err != nil {
		return err
	}

	var matchWinner *entity.PlayerRef
	status := entity.ChallengeStatusRoundOver
	if wins >= int64(claimed.TargetWins()) {
		matchWinner = &winner
		status = entity.ChallengeStatusMatchOver
	}

	closed, err := s.challengeRepo.CloseRound(ctx, challengeID, round, winner.PlayerID, matchWinner)
	if err != nil {
		return fmt.Errorf("failed to close round: %w", err)
	}
	if !closed {
		// Строка ушла из running без нас (например, хост перезапустил раунд)
		s.logger.Warn().
			Str("challenge_id", challengeID).
			Int("round", round).
			Msg("round closed by another transition")
	}

	updated, err := s.challengeRepo.GetByID(ctx, challengeID)
	if err != nil {
		return err
	}
	outcome.Challenge = updated
	outcome.MatchOver = updated.IsMatchOver()

	s.metrics.RoundClosed(status)
	s.publish(ctx, feed.ChallengeChanged(*updated))

	s.logger.Info().
		Str("challenge_id", challengeID).
		Int("round", round).
		Str("winner", winner.PlayerID).
		Int64("wins", wins).
		Str("status", updated.Status).
		Msg("round closed")
	return nil
}

func (s *RoundService) publish(ctx context.Context, change feed.Change) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, change); err != nil {
		s.logger.Error().Err(err).
			Str("challenge_id", change.ChallengeID).
			Str("kind", string(change.Kind)).
			Msg("failed to publish change")
	}
}
