package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/buildle-api/internal/domain/entity"
	"github.com/yourusername/buildle-api/internal/domain/repository"
	"github.com/yourusername/buildle-api/internal/feed"
	"github.com/yourusername/buildle-api/internal/game"
)

func TestDurationSec(t *testing.T) {
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name     string
		started  time.Time
		finished time.Time
		want     int
	}{
		{"zero start", time.Time{}, base, 1},
		{"sub-second", base, base.Add(400 * time.Millisecond), 1},
		{"floors", base, base.Add(42900 * time.Millisecond), 42},
		{"clock skew", base.Add(time.Second), base, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DurationSec(tt.started, tt.finished))
		})
	}
}

func TestRoundService_LoserRecordsResultOnly(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	created := env.createRunning(t, 5)
	id := created.Challenge.ID

	now := time.Now()
	out, err := env.round.Submit(ctx, SubmitInput{
		ChallengeID: id, Round: 1, PlayerID: "p_loser", Name: "Loser",
		Won: false, Tries: 3, StartedAt: now.Add(-90 * time.Second), FinishedAt: now,
	})
	require.NoError(t, err)
	assert.False(t, out.ClosedRound)
	assert.Nil(t, out.Challenge)
	assert.Equal(t, game.MaxGuesses, out.Result.Tries, "lost board counts as all guesses used")
	assert.Equal(t, 0, out.Result.Score)
	assert.Equal(t, 90, out.Result.DurationSec)

	c, err := env.challenge.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, entity.ChallengeStatusRunning, c.Status)
	assert.Nil(t, c.RoundWinnerPlayerID)
}

func TestRoundService_WinnerClosesRound(t *testing.T) {
	env := newTestEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	created := env.createRunning(t, 5)
	id := created.Challenge.ID

	changes, err := env.bus.Subscribe(ctx, id)
	require.NoError(t, err)

	now := time.Now()
	out, err := env.round.Submit(ctx, SubmitInput{
		ChallengeID: id, Round: 1, PlayerID: "p_fast", Name: "Fast",
		Won: true, Tries: 2, StartedAt: now.Add(-25 * time.Second), FinishedAt: now,
	})
	require.NoError(t, err)
	assert.True(t, out.ClosedRound)
	assert.False(t, out.MatchOver)
	assert.Equal(t, int64(1), out.Wins)
	assert.Equal(t, 50+18, out.Result.Score)
	assert.True(t, out.Result.IsRoundWinner)

	require.NotNil(t, out.Challenge)
	assert.Equal(t, entity.ChallengeStatusRoundOver, out.Challenge.Status)
	require.NotNil(t, out.Challenge.RoundWinnerPlayerID)
	assert.Equal(t, "p_fast", *out.Challenge.RoundWinnerPlayerID)
	assert.Equal(t, "Fast", *out.Challenge.RoundWinnerName)
	assert.NotNil(t, out.Challenge.RoundEndedAt)
	assert.Nil(t, out.Challenge.MatchWinnerPlayerID)

	results, err := env.leaderboard.RoundResults(ctx, id, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.True(t, results[0].IsRoundWinner)

	// result upsert, winner flag, challenge close
	kinds := []feed.Kind{}
	for i := 0; i < 3; i++ {
		kinds = append(kinds, receiveChange(t, changes).Kind)
	}
	assert.Equal(t, []feed.Kind{feed.KindResult, feed.KindResult, feed.KindChallenge}, kinds)
}

func TestRoundService_ConcurrentWinnersSingleCloser(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	created := env.createRunning(t, 5)
	id := created.Challenge.ID

	const racers = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		closers []string
		errs    []error
	)
	start := make(chan struct{})
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			pid := fmt.Sprintf("p_racer%d", i)
			out, err := env.round.Submit(ctx, SubmitInput{
				ChallengeID: id, Round: 1, PlayerID: pid, Name: pid,
				Won: true, Tries: 1 + i%6, StartedAt: time.Now().Add(-10 * time.Second),
			})
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			if out.ClosedRound {
				closers = append(closers, pid)
			}
		}(i)
	}
	close(start)
	wg.Wait()

	require.Empty(t, errs)
	require.Len(t, closers, 1, "exactly one submission closes the round")

	c, err := env.challenge.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, entity.ChallengeStatusRoundOver, c.Status)
	require.NotNil(t, c.RoundWinnerPlayerID)
	assert.Equal(t, closers[0], *c.RoundWinnerPlayerID)

	results, err := env.leaderboard.RoundResults(ctx, id, 1)
	require.NoError(t, err)
	assert.Len(t, results, racers, "every racer's result is recorded")
	flagged := 0
	for _, r := range results {
		if r.IsRoundWinner {
			flagged++
			assert.Equal(t, closers[0], r.PlayerID)
		}
	}
	assert.Equal(t, 1, flagged)
}

func TestRoundService_LateFinisherAfterClose(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	created := env.createRunning(t, 5)
	id := created.Challenge.ID

	first := env.win(t, id, 1, "p_first", 4)
	require.True(t, first.ClosedRound)

	late := env.win(t, id, 1, "p_late", 2)
	assert.False(t, late.ClosedRound)
	assert.False(t, late.Result.IsRoundWinner)

	results, err := env.leaderboard.RoundResults(ctx, id, 1)
	require.NoError(t, err)
	require.Len(t, results, 2)
	// Лидерборд раунда упорядочен по попыткам, а не по времени закрытия
	assert.Equal(t, "p_late", results[0].PlayerID)
	assert.Equal(t, "p_first", results[1].PlayerID)

	standings, err := env.leaderboard.Standings(ctx, id)
	require.NoError(t, err)
	require.Len(t, standings, 1)
	assert.Equal(t, "p_first", standings[0].PlayerID)
}

func TestRoundService_MatchOverAtTarget(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	created := env.createRunning(t, 2)
	id := created.Challenge.ID

	out := env.win(t, id, 1, "p_champ", 3)
	require.True(t, out.ClosedRound)
	assert.False(t, out.MatchOver)

	_, err := env.challenge.NextRound(ctx, id, created.HostKey)
	require.NoError(t, err)
	_, err = env.challenge.StartRace(ctx, id, created.HostKey)
	require.NoError(t, err)

	out = env.win(t, id, 2, "p_champ", 5)
	require.True(t, out.ClosedRound)
	assert.True(t, out.MatchOver)
	assert.Equal(t, int64(2), out.Wins)
	assert.Equal(t, entity.ChallengeStatusMatchOver, out.Challenge.Status)
	require.NotNil(t, out.Challenge.MatchWinnerPlayerID)
	assert.Equal(t, "p_champ", *out.Challenge.MatchWinnerPlayerID)

	// После конца матча раунд больше никто не закрывает
	again := env.win(t, id, 2, "p_other", 1)
	assert.False(t, again.ClosedRound)
}

func TestRoundService_StaleRoundDoesNotClaim(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	created := env.createRunning(t, 5)
	id := created.Challenge.ID

	require.True(t, env.win(t, id, 1, "p_a", 3).ClosedRound)
	_, err := env.challenge.NextRound(ctx, id, created.HostKey)
	require.NoError(t, err)
	_, err = env.challenge.StartRace(ctx, id, created.HostKey)
	require.NoError(t, err)

	// Сессия, застрявшая в первом раунде, не может закрыть второй
	stale := env.win(t, id, 1, "p_b", 2)
	assert.False(t, stale.ClosedRound)

	c, err := env.challenge.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, entity.ChallengeStatusRunning, c.Status)
	assert.Equal(t, 2, c.CurrentRound)
	assert.Nil(t, c.RoundWinnerPlayerID)
}

func TestRoundService_LobbyRejectsClaim(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	created, err := env.challenge.Create(ctx, CreateChallengeInput{PlayerID: "p_host"})
	require.NoError(t, err)

	out := env.win(t, created.Challenge.ID, 1, "p_early", 1)
	assert.False(t, out.ClosedRound)
}

func TestRoundService_Validation(t *testing.T) {
	svc := NewRoundService(new(MockChallengeRepo), nil, nil, nil, zerolog.Nop())
	ctx := context.Background()

	_, err := svc.Submit(ctx, SubmitInput{ChallengeID: "c", Round: 0, Won: true, Tries: 1})
	assert.ErrorIs(t, err, ErrInvalidRound)

	_, err = svc.Submit(ctx, SubmitInput{ChallengeID: "c", Round: 1, Won: true, Tries: 0})
	assert.ErrorIs(t, err, ErrInvalidTries)

	_, err = svc.Submit(ctx, SubmitInput{ChallengeID: "c", Round: 1, Won: true, Tries: game.MaxGuesses + 1})
	assert.ErrorIs(t, err, ErrInvalidTries)
}

func TestRoundService_ClaimErrorIsReturned(t *testing.T) {
	env := newTestEnv(t)
	created := env.createRunning(t, 5)
	id := created.Challenge.ID

	challengeRepo := new(MockChallengeRepo)
	challengeRepo.On("ClaimRoundWinner", mock.Anything, id, 1, mock.Anything, mock.Anything).
		Return(false, assert.AnError)
	svc := NewRoundService(challengeRepo, env.results, nil, nil, zerolog.Nop())

	_, err := svc.Submit(context.Background(), SubmitInput{ChallengeID: id, Round: 1, PlayerID: "p", Won: true, Tries: 1})
	assert.ErrorIs(t, err, assert.AnError)
	challengeRepo.AssertExpectations(t)
}

// failingMarkRepo отказывает в первых failures вызовах MarkRoundWinner
type failingMarkRepo struct {
	repository.ResultRepository
	failures int
}

func (r *failingMarkRepo) MarkRoundWinner(ctx context.Context, challengeID string, round int, playerID string) error {
	if r.failures > 0 {
		r.failures--
		return assert.AnError
	}
	return r.ResultRepository.MarkRoundWinner(ctx, challengeID, round, playerID)
}

func TestRoundService_RetryAfterFailedCloseFinishesRound(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	created := env.createRunning(t, 5)
	id := created.Challenge.ID

	svc := NewRoundService(env.challenges, &failingMarkRepo{ResultRepository: env.results, failures: 1},
		env.bus, nil, zerolog.Nop())
	now := time.Now()
	in := SubmitInput{
		ChallengeID: id, Round: 1, PlayerID: "p_w", Name: "Winner",
		Won: true, Tries: 2, StartedAt: now.Add(-20 * time.Second), FinishedAt: now,
	}

	_, err := svc.Submit(ctx, in)
	require.ErrorIs(t, err, assert.AnError)

	c, err := env.challenge.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, entity.ChallengeStatusRunning, c.Status)
	require.NotNil(t, c.RoundWinnerPlayerID)
	require.NotNil(t, c.RoundEndedAt)
	endedAt := *c.RoundEndedAt

	// Повтор того же итога доводит закрытие до конца
	in.FinishedAt = now.Add(2 * time.Second)
	out, err := svc.Submit(ctx, in)
	require.NoError(t, err)
	assert.True(t, out.ClosedRound)
	require.NotNil(t, out.Challenge)
	assert.Equal(t, entity.ChallengeStatusRoundOver, out.Challenge.Status)
	require.NotNil(t, out.Challenge.RoundEndedAt)
	assert.True(t, out.Challenge.RoundEndedAt.Equal(endedAt), "round end time is kept from the first claim")

	standings, err := env.leaderboard.Standings(ctx, id)
	require.NoError(t, err)
	require.Len(t, standings, 1)
	assert.Equal(t, "p_w", standings[0].PlayerID)

	// Другой победитель после чужого захвата по-прежнему проигрывает
	late := env.win(t, id, 1, "p_late", 1)
	assert.False(t, late.ClosedRound)

	next, err := env.challenge.NextRound(ctx, id, created.HostKey)
	require.NoError(t, err)
	assert.Equal(t, 2, next.CurrentRound)
}
