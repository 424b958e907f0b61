// Package session держит состояние одного подключения игрока к челленджу.
//
// Сессия хранит слово раунда на сервере, сама оценивает догадки игрока и,
// когда доска завершена, отправляет результат в RoundService. Изменения
// других игроков приходят из feed.Bus: на каждое событие сессия перечитывает
// соответствующий агрегат и заменяет свой снимок целиком.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/yourusername/buildle-api/internal/domain/entity"
	"github.com/yourusername/buildle-api/internal/feed"
	"github.com/yourusername/buildle-api/internal/game"
	"github.com/yourusername/buildle-api/internal/handler/dto"
	"github.com/yourusername/buildle-api/internal/metrics"
	"github.com/yourusername/buildle-api/internal/service"
)

// DefaultTickInterval - период пересчета обратного отсчета
const DefaultTickInterval = 300 * time.Millisecond

// ErrNotPlaying возвращается на догадку вне фазы playing
var ErrNotPlaying = errors.New("round is not being played")

// ChallengeReader - чтение челленджа и состава
type ChallengeReader interface {
	Get(ctx context.Context, id string) (*entity.Challenge, error)
	Players(ctx context.Context, challengeID string) ([]entity.ChallengePlayer, error)
}

// LeaderboardReader - чтение таблицы раунда и счета матча
type LeaderboardReader interface {
	RoundResults(ctx context.Context, challengeID string, round int) ([]entity.ChallengeResult, error)
	Standings(ctx context.Context, challengeID string) ([]entity.MatchScore, error)
}

// RoundSubmitter - отправка итога доски
type RoundSubmitter interface {
	Submit(ctx context.Context, in service.SubmitInput) (*service.Outcome, error)
}

// Subscriber - подписка на изменения челленджа
type Subscriber interface {
	Subscribe(ctx context.Context, challengeID string) (<-chan feed.Change, error)
}

// Deps - зависимости сессии, общие для всех подключений
type Deps struct {
	Challenges   ChallengeReader
	Leaderboard  LeaderboardReader
	Rounds       RoundSubmitter
	Feed         Subscriber
	Metrics      *metrics.Metrics
	Logger       zerolog.Logger
	TickInterval time.Duration
}

// EventType - тип исходящего события сессии
type EventType string

const (
	EventSnapshot    EventType = "snapshot"
	EventRoundClosed EventType = "round_closed"
	EventError       EventType = "error"
)

// Event - исходящее событие; Payload - Snapshot, RoundClosed или ErrorPayload
type Event struct {
	Type    EventType
	Payload interface{}
}

// Emitter получает события сессии. Emit не должен блокироваться.
type Emitter interface {
	Emit(Event)
}

// EmitterFunc адаптирует функцию к Emitter
type EmitterFunc func(Event)

func (f EmitterFunc) Emit(e Event) { f(e) }

// BoardView - доска игрока в снимке
type BoardView struct {
	Round     int          `json:"round"`
	Length    int          `json:"length"`
	Guesses   []game.Guess `json:"guesses"`
	Remaining int          `json:"remaining"`
	Finished  bool         `json:"finished"`
	Won       bool         `json:"won"`
	Submitted bool         `json:"submitted"`
}

// Snapshot - полное состояние, которое видит игрок
type Snapshot struct {
	Challenge *dto.ChallengeResponse   `json:"challenge"`
	Phase     Phase                    `json:"phase"`
	Countdown int                      `json:"countdown"`
	Me        entity.PlayerRef         `json:"me"`
	Players   []entity.ChallengePlayer `json:"players"`
	Results   []entity.ChallengeResult `json:"results"`
	Standings []entity.MatchScore      `json:"standings"`
	Board     BoardView                `json:"board"`
}

// GuessResult - оценка одной догадки
type GuessResult struct {
	Guess     game.Guess `json:"guess"`
	Remaining int        `json:"remaining"`
	Finished  bool       `json:"finished"`
	Won       bool       `json:"won"`
}

// RoundClosed отправляется сессии, закрывшей раунд своим результатом
type RoundClosed struct {
	Round     int                    `json:"closed_round"`
	MatchOver bool                   `json:"match_over"`
	Wins      int64                  `json:"wins"`
	Challenge *dto.ChallengeResponse `json:"challenge"`
}

// ErrorPayload - ошибка для клиента
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Session - состояние одного подключения. Run, Guess и Resync можно
// вызывать из разных горутин.
type Session struct {
	deps        Deps
	challengeID string
	me          entity.PlayerRef
	emitter     Emitter
	logger      zerolog.Logger
	now         func() time.Time

	resync chan struct{}

	mu             sync.Mutex
	challenge      *entity.Challenge
	players        []entity.ChallengePlayer
	results        []entity.ChallengeResult
	standings      []entity.MatchScore
	board          *game.Board
	boardRound     int
	roundStartedAt time.Time
	phase          Phase
	countdown      int
	pending        *service.SubmitInput
	submitting     bool
	submitted      bool
}

// New создает сессию игрока me в челлендже challengeID
func New(deps Deps, challengeID string, me entity.PlayerRef, emitter Emitter) *Session {
	if deps.TickInterval <= 0 {
		deps.TickInterval = DefaultTickInterval
	}
	return &Session{
		deps:        deps,
		challengeID: challengeID,
		me:          me,
		emitter:     emitter,
		logger: deps.Logger.With().
			Str("component", "session").
			Str("challenge_id", challengeID).
			Str("player_id", me.PlayerID).
			Logger(),
		now:    time.Now,
		resync: make(chan struct{}, 1),
	}
}

// ChallengeID возвращает ID челленджа сессии
func (s *Session) ChallengeID() string { return s.challengeID }

// Player возвращает игрока сессии
func (s *Session) Player() entity.PlayerRef { return s.me }

// Run загружает состояние, подписывается на изменения и обслуживает сессию
// до отмены ctx. Несуществующий челлендж возвращает apperrors.ErrNotFound.
func (s *Session) Run(ctx context.Context) error {
	changes, err := s.deps.Feed.Subscribe(ctx, s.challengeID)
	if err != nil {
		return err
	}
	if err := s.refreshAll(ctx); err != nil {
		return err
	}
	s.emitSnapshot()

	ticker := time.NewTicker(s.deps.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case change, ok := <-changes:
			if !ok {
				return nil
			}
			s.handleChange(ctx, change)
		case <-s.resync:
			if err := s.refreshAll(ctx); err != nil {
				s.logger.Warn().Err(err).Msg("resync failed, keeping previous state")
			}
			s.emitSnapshot()
		case <-ticker.C:
			if s.tick() {
				s.emitSnapshot()
			}
			s.trySubmit(ctx)
		}
	}
}

// Resync просит Run перечитать все агрегаты и прислать снимок
func (s *Session) Resync() {
	select {
	case s.resync <- struct{}{}:
	default:
	}
}

func (s *Session) handleChange(ctx context.Context, change feed.Change) {
	var err error
	switch change.Kind {
	case feed.KindPlayer:
		err = s.refreshPlayers(ctx)
	case feed.KindResult:
		err = s.refreshResults(ctx)
	case feed.KindChallenge:
		if err = s.refreshChallenge(ctx); err == nil {
			err = s.refreshResults(ctx)
		}
	default:
		s.logger.Warn().Str("kind", string(change.Kind)).Msg("unknown change kind")
		return
	}
	if err != nil {
		// Прежнее состояние остается; следующее событие или resync догонит
		s.logger.Warn().Err(err).Str("kind", string(change.Kind)).Msg("refetch failed")
		return
	}
	s.emitSnapshot()
}

func (s *Session) refreshAll(ctx context.Context) error {
	if err := s.refreshChallenge(ctx); err != nil {
		return err
	}
	if err := s.refreshPlayers(ctx); err != nil {
		return err
	}
	return s.refreshResults(ctx)
}

func (s *Session) refreshChallenge(ctx context.Context) error {
	c, err := s.deps.Challenges.Get(ctx, s.challengeID)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.applyChallengeLocked(c)
	return nil
}

// applyChallengeLocked заменяет строку челленджа; новый раунд сбрасывает доску
func (s *Session) applyChallengeLocked(c *entity.Challenge) {
	s.challenge = c
	if s.board == nil || c.CurrentRound != s.boardRound {
		s.board = game.NewBoard(c.Word)
		s.boardRound = c.CurrentRound
		s.roundStartedAt = time.Time{}
		s.pending = nil
		s.submitted = false
		s.results = nil
	}
	s.updatePhaseLocked()
}

// updatePhaseLocked пересчитывает фазу; возвращает true, если снимок изменился
func (s *Session) updatePhaseLocked() bool {
	now := s.now()
	phase, countdown := DerivePhase(s.challenge, now)
	changed := phase != s.phase || countdown != s.countdown
	if phase == PhasePlaying && s.roundStartedAt.IsZero() {
		s.roundStartedAt = now
	}
	s.phase, s.countdown = phase, countdown
	return changed
}

func (s *Session) refreshPlayers(ctx context.Context) error {
	players, err := s.deps.Challenges.Players(ctx, s.challengeID)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.players = players
	s.mu.Unlock()
	return nil
}

func (s *Session) refreshResults(ctx context.Context) error {
	s.mu.Lock()
	round := s.boardRound
	s.mu.Unlock()

	results, err := s.deps.Leaderboard.RoundResults(ctx, s.challengeID, round)
	if err != nil {
		return err
	}
	standings, err := s.deps.Leaderboard.Standings(ctx, s.challengeID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if round != s.boardRound {
		// Пока читали, пришел новый раунд
		return nil
	}
	s.results = results
	s.standings = standings
	return nil
}

func (s *Session) tick() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.challenge == nil {
		return false
	}
	return s.updatePhaseLocked()
}

// Guess оценивает догадку игрока. Завершенная доска отправляется в RoundService.
func (s *Session) Guess(ctx context.Context, raw string) (*GuessResult, error) {
	s.mu.Lock()
	if s.board == nil {
		s.mu.Unlock()
		return nil, ErrNotPlaying
	}
	s.updatePhaseLocked()
	if s.phase != PhasePlaying {
		s.mu.Unlock()
		s.deps.Metrics.GuessRejected("phase")
		return nil, ErrNotPlaying
	}
	g, err := s.board.Submit(raw)
	if err != nil {
		s.mu.Unlock()
		s.deps.Metrics.GuessRejected(rejectReason(err))
		return nil, err
	}
	res := &GuessResult{
		Guess:     g,
		Remaining: game.MaxGuesses - len(s.board.Guesses()),
		Finished:  s.board.Finished(),
		Won:       s.board.Won(),
	}
	if res.Finished && s.pending == nil && !s.submitted {
		s.pending = &service.SubmitInput{
			ChallengeID: s.challengeID,
			Round:       s.boardRound,
			PlayerID:    s.me.PlayerID,
			Name:        s.me.Name,
			Won:         s.board.Won(),
			Tries:       s.board.Tries(),
			StartedAt:   s.roundStartedAt,
			FinishedAt:  s.now(),
		}
	}
	s.mu.Unlock()

	if res.Finished {
		s.trySubmit(ctx)
	}
	return res, nil
}

// trySubmit отправляет ожидающий итог доски. Ошибка оставляет итог в ожидании:
// следующий тик повторит отправку.
func (s *Session) trySubmit(ctx context.Context) {
	s.mu.Lock()
	if s.pending == nil || s.submitting {
		s.mu.Unlock()
		return
	}
	in := *s.pending
	s.submitting = true
	s.mu.Unlock()

	out, err := s.deps.Rounds.Submit(ctx, in)

	s.mu.Lock()
	s.submitting = false
	if err != nil {
		s.mu.Unlock()
		s.logger.Error().Err(err).Int("round", in.Round).Msg("failed to submit result")
		s.emit(Event{Type: EventError, Payload: ErrorPayload{Code: "submit_failed", Message: "result not saved yet, retrying"}})
		return
	}
	if s.pending != nil && s.pending.Round == in.Round {
		s.pending = nil
		s.submitted = true
	}
	s.mu.Unlock()

	if out.ClosedRound {
		s.emit(Event{Type: EventRoundClosed, Payload: RoundClosed{
			Round:     in.Round,
			MatchOver: out.MatchOver,
			Wins:      out.Wins,
			Challenge: dto.NewChallengeResponse(out.Challenge),
		}})
	}
}

// Snapshot возвращает копию текущего состояния
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		Challenge: dto.NewChallengeResponse(s.challenge),
		Phase:     s.phase,
		Countdown: s.countdown,
		Me:        s.me,
		Players:   append([]entity.ChallengePlayer(nil), s.players...),
		Results:   append([]entity.ChallengeResult(nil), s.results...),
		Standings: append([]entity.MatchScore(nil), s.standings...),
	}
	if s.board != nil {
		guesses := s.board.Guesses()
		snap.Board = BoardView{
			Round:     s.boardRound,
			Length:    s.board.Length(),
			Guesses:   guesses,
			Remaining: game.MaxGuesses - len(guesses),
			Finished:  s.board.Finished(),
			Won:       s.board.Won(),
			Submitted: s.submitted,
		}
	}
	return snap
}

func (s *Session) emitSnapshot() {
	s.emit(Event{Type: EventSnapshot, Payload: s.Snapshot()})
}

func (s *Session) emit(e Event) {
	if s.emitter != nil {
		s.emitter.Emit(e)
	}
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, game.ErrIncompleteGuess):
		return "incomplete"
	case errors.Is(err, game.ErrLengthMismatch):
		return "length"
	case errors.Is(err, game.ErrInvalidLetter):
		return "letter"
	case errors.Is(err, game.ErrBoardFinished):
		return "finished"
	default:
		return "other"
	}
}
