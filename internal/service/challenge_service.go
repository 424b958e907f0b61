package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/url"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/yourusername/buildle-api/internal/domain/entity"
	"github.com/yourusername/buildle-api/internal/domain/repository"
	"github.com/yourusername/buildle-api/internal/feed"
	"github.com/yourusername/buildle-api/internal/metrics"
	apperrors "github.com/yourusername/buildle-api/internal/pkg/errors"
)

// maxCreateAttempts - сколько раз пробуем сгенерировать свободный ID челленджа
const maxCreateAttempts = 5

const maxPlayerIDLength = 64

// WordSource выдает случайные слова заданной длины
type WordSource interface {
	Random(length int) (string, error)
	Supports(length int) bool
}

// ChallengeConfig содержит настройки создания и запуска челленджей
type ChallengeConfig struct {
	PublicURL         string
	DefaultLength     int
	DefaultTargetWins int
	StartDelay        time.Duration
}

// ChallengeService управляет жизненным циклом челленджа:
// создание, вход игроков и действия хоста (старт гонки, следующий раунд)
type ChallengeService struct {
	challengeRepo repository.ChallengeRepository
	playerRepo    repository.PlayerRepository
	words         WordSource
	publisher     feed.Publisher
	metrics       *metrics.Metrics
	cfg           ChallengeConfig
	logger        zerolog.Logger
	now           func() time.Time
}

// NewChallengeService создает новый сервис челленджей
func NewChallengeService(
	challengeRepo repository.ChallengeRepository,
	playerRepo repository.PlayerRepository,
	words WordSource,
	publisher feed.Publisher,
	m *metrics.Metrics,
	cfg ChallengeConfig,
	logger zerolog.Logger,
) *ChallengeService {
	if cfg.DefaultTargetWins <= 0 {
		cfg.DefaultTargetWins = entity.DefaultMatchTargetWins
	}
	if cfg.StartDelay <= 0 {
		cfg.StartDelay = entity.RaceStartDelay
	}
	return &ChallengeService{
		challengeRepo: challengeRepo,
		playerRepo:    playerRepo,
		words:         words,
		publisher:     publisher,
		metrics:       m,
		cfg:           cfg,
		logger:        logger.With().Str("component", "challenge_service").Logger(),
		now:           time.Now,
	}
}

// CreateChallengeInput - параметры нового челленджа
type CreateChallengeInput struct {
	PlayerID        string
	Name            string
	Length          int
	MatchTargetWins int
}

// CreatedChallenge - результат создания: строка челленджа, ключ хоста,
// ссылка для приглашения и запись хоста в составе
type CreatedChallenge struct {
	Challenge *entity.Challenge
	HostKey   string
	Link      string
	Player    *entity.ChallengePlayer
}

// Create создает челлендж в статусе lobby и сразу добавляет создателя в состав
func (s *ChallengeService) Create(ctx context.Context, in CreateChallengeInput) (*CreatedChallenge, error) {
	length := in.Length
	if length == 0 {
		length = s.cfg.DefaultLength
	}
	if !s.words.Supports(length) {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedLength, length)
	}

	targetWins := in.MatchTargetWins
	if targetWins == 0 {
		targetWins = s.cfg.DefaultTargetWins
	}
	if targetWins < 1 || targetWins > entity.MaxMatchTargetWins {
		return nil, fmt.Errorf("%w: %d", ErrInvalidTargetWins, targetWins)
	}

	word, err := s.words.Random(length)
	if err != nil {
		return nil, fmt.Errorf("failed to pick word: %w", err)
	}
	hostKey, err := NewHostKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate host key: %w", err)
	}

	var challenge *entity.Challenge
	for attempt := 1; attempt <= maxCreateAttempts; attempt++ {
		id, genErr := NewChallengeID()
		if genErr != nil {
			return nil, fmt.Errorf("failed to generate challenge id: %w", genErr)
		}
		challenge = &entity.Challenge{
			ID:              id,
			Word:            word,
			Length:          length,
			Status:          entity.ChallengeStatusLobby,
			CurrentRound:    1,
			HostKey:         hostKey,
			MatchTargetWins: targetWins,
		}
		err = s.challengeRepo.Create(ctx, challenge)
		if err == nil {
			break
		}
		if !errors.Is(err, repository.ErrDuplicateID) {
			return nil, fmt.Errorf("failed to create challenge: %w", err)
		}
		s.logger.Warn().Str("challenge_id", id).Int("attempt", attempt).Msg("challenge id collision, retrying")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create challenge after %d attempts: %w", maxCreateAttempts, err)
	}

	s.metrics.ChallengeCreated()
	s.logger.Info().
		Str("challenge_id", challenge.ID).
		Int("length", length).
		Int("target_wins", targetWins).
		Msg("challenge created")

	player, err := s.Join(ctx, JoinInput{ChallengeID: challenge.ID, PlayerID: in.PlayerID, Name: in.Name})
	if err != nil {
		return nil, err
	}

	return &CreatedChallenge{
		Challenge: challenge,
		HostKey:   hostKey,
		Link:      BuildLink(s.cfg.PublicURL, challenge.ID, hostKey),
		Player:    player,
	}, nil
}

// Get возвращает челлендж по ID
func (s *ChallengeService) Get(ctx context.Context, id string) (*entity.Challenge, error) {
	return s.challengeRepo.GetByID(ctx, id)
}

// JoinInput - параметры входа игрока в челлендж
type JoinInput struct {
	ChallengeID string
	PlayerID    string
	Name        string
}

// Join идемпотентно добавляет игрока в состав. Пустой PlayerID заменяется
// сгенерированным, пустое имя - именем по умолчанию.
func (s *ChallengeService) Join(ctx context.Context, in JoinInput) (*entity.ChallengePlayer, error) {
	if _, err := s.challengeRepo.GetByID(ctx, in.ChallengeID); err != nil {
		return nil, err
	}

	playerID := in.PlayerID
	if playerID == "" {
		id, err := NewPlayerID()
		if err != nil {
			return nil, fmt.Errorf("failed to generate player id: %w", err)
		}
		playerID = id
	}
	if utf8.RuneCountInString(playerID) > maxPlayerIDLength {
		return nil, fmt.Errorf("%w: player id too long", apperrors.ErrValidation)
	}

	player := &entity.ChallengePlayer{
		ChallengeID: in.ChallengeID,
		PlayerID:    playerID,
		Name:        entity.NormalizePlayerName(in.Name),
		JoinedAt:    s.now(),
	}
	if err := s.playerRepo.Upsert(ctx, player); err != nil {
		return nil, fmt.Errorf("failed to join challenge: %w", err)
	}

	// Повторный вход сохраняет исходный joined_at, поэтому перечитываем строку
	stored, err := s.playerRepo.Get(ctx, in.ChallengeID, playerID)
	if err != nil {
		return nil, fmt.Errorf("failed to reload player: %w", err)
	}
	s.publish(ctx, feed.PlayerChanged(*stored))
	return stored, nil
}

// Players возвращает состав челленджа в порядке входа
func (s *ChallengeService) Players(ctx context.Context, challengeID string) ([]entity.ChallengePlayer, error) {
	if _, err := s.challengeRepo.GetByID(ctx, challengeID); err != nil {
		return nil, err
	}
	return s.playerRepo.List(ctx, challengeID)
}

// StartRace переводит lobby → running со стартом через StartDelay. Только для хоста.
func (s *ChallengeService) StartRace(ctx context.Context, challengeID, hostKey string) (*entity.Challenge, error) {
	challenge, err := s.authorizeHost(ctx, challengeID, hostKey)
	if err != nil {
		return nil, err
	}
	if !challenge.IsLobby() {
		return nil, fmt.Errorf("%w: cannot start race from %s", ErrInvalidTransition, challenge.Status)
	}

	startsAt := s.now().Add(s.cfg.StartDelay)
	ok, err := s.challengeRepo.StartRace(ctx, challengeID, startsAt)
	if err != nil {
		return nil, fmt.Errorf("failed to start race: %w", err)
	}
	if !ok {
		// Другой запрос хоста успел раньше
		return nil, fmt.Errorf("%w: race already started", ErrInvalidTransition)
	}

	updated, err := s.challengeRepo.GetByID(ctx, challengeID)
	if err != nil {
		return nil, err
	}
	s.metrics.RoundStarted()
	s.publish(ctx, feed.ChallengeChanged(*updated))
	s.logger.Info().
		Str("challenge_id", challengeID).
		Int("round", updated.CurrentRound).
		Time("starts_at", startsAt).
		Msg("race started")
	return updated, nil
}

// NextRound готовит следующий раунд того же челленджа: новое слово той же длины,
// current_round+1, сброс победителя раунда, статус lobby. Только для хоста.
func (s *ChallengeService) NextRound(ctx context.Context, challengeID, hostKey string) (*entity.Challenge, error) {
	challenge, err := s.authorizeHost(ctx, challengeID, hostKey)
	if err != nil {
		return nil, err
	}
	if !challenge.CanAdvanceRound() {
		return nil, fmt.Errorf("%w: cannot advance round from %s", ErrInvalidTransition, challenge.Status)
	}
	if !s.words.Supports(challenge.Length) {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedLength, challenge.Length)
	}

	word, err := s.words.Random(challenge.Length)
	if err != nil {
		return nil, fmt.Errorf("failed to pick word: %w", err)
	}

	ok, err := s.challengeRepo.AdvanceRound(ctx, challengeID, challenge.CurrentRound, word)
	if err != nil {
		return nil, fmt.Errorf("failed to advance round: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: round %d already advanced", ErrInvalidTransition, challenge.CurrentRound)
	}

	updated, err := s.challengeRepo.GetByID(ctx, challengeID)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, feed.ChallengeChanged(*updated))
	s.logger.Info().
		Str("challenge_id", challengeID).
		Int("round", updated.CurrentRound).
		Msg("next round prepared")
	return updated, nil
}

func (s *ChallengeService) authorizeHost(ctx context.Context, challengeID, hostKey string) (*entity.Challenge, error) {
	challenge, err := s.challengeRepo.GetByID(ctx, challengeID)
	if err != nil {
		return nil, err
	}
	if !IsHost(challenge, hostKey) {
		s.metrics.HostRejected()
		s.logger.Warn().Str("challenge_id", challengeID).Msg("host action rejected")
		return nil, ErrNotHost
	}
	return challenge, nil
}

// publish рассылает событие. Ошибка шины не отменяет уже выполненную запись:
// подписчики догонят состояние при следующем событии или resync.
func (s *ChallengeService) publish(ctx context.Context, change feed.Change) {
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

// IsHost сравнивает переданный ключ с ключом хоста за постоянное время
func IsHost(challenge *entity.Challenge, hostKey string) bool {
	if challenge == nil || hostKey == "" || challenge.HostKey == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(challenge.HostKey), []byte(hostKey)) == 1
}

// BuildLink собирает ссылку-приглашение вида <publicURL>?c=<id>&h=<hostKey>
func BuildLink(publicURL, challengeID, hostKey string) string {
	q := url.Values{}
	q.Set("c", challengeID)
	if hostKey != "" {
		q.Set("h", hostKey)
	}
	u, err := url.Parse(publicURL)
	if err != nil || publicURL == "" {
		return "?" + q.Encode()
	}
	u.RawQuery = q.Encode()
	return u.String()
}
