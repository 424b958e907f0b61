package service

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/buildle-api/internal/domain/entity"
	"github.com/yourusername/buildle-api/internal/feed"
	"github.com/yourusername/buildle-api/internal/metrics"
	"github.com/yourusername/buildle-api/internal/repository/postgres"
	"github.com/yourusername/buildle-api/internal/words"
	"github.com/yourusername/buildle-api/pkg/database"
)

const (
	testWord4 = "كتاب"
	testWord5 = "سلامة"
)

// testEnv - сервисы поверх настоящих репозиториев на SQLite
type testEnv struct {
	challenges  *postgres.ChallengeRepo
	players     *postgres.PlayerRepo
	results     *postgres.ResultRepo
	bus         *feed.LocalBus
	challenge   *ChallengeService
	round       *RoundService
	leaderboard *LeaderboardService
	faker       *gofakeit.Faker
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := database.NewSQLiteDB(filepath.Join(t.TempDir(), "service.db"))
	require.NoError(t, err)
	require.NoError(t, database.MigrateDB(db, database.DriverSQLite))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	logger := zerolog.Nop()
	m := metrics.New(nil)
	bus := feed.NewLocalBus(16, m, logger)
	t.Cleanup(func() { _ = bus.Close() })

	env := &testEnv{
		challenges: postgres.NewChallengeRepo(db),
		players:    postgres.NewPlayerRepo(db),
		results:    postgres.NewResultRepo(db),
		bus:        bus,
		faker:      gofakeit.New(42),
	}
	dict := words.New([]string{testWord4}, []string{testWord5})

	env.leaderboard = NewLeaderboardService(env.challenges, env.results, nil, 0, logger)
	env.challenge = NewChallengeService(env.challenges, env.players, dict, bus, m, ChallengeConfig{
		PublicURL:     "https://buildle.example/play",
		DefaultLength: 4,
	}, logger)
	env.round = NewRoundService(env.challenges, env.results, bus, m, logger)
	return env
}

// createRunning создает челлендж и сразу запускает гонку
func (e *testEnv) createRunning(t *testing.T, targetWins int) *CreatedChallenge {
	t.Helper()
	ctx := context.Background()
	created, err := e.challenge.Create(ctx, CreateChallengeInput{
		PlayerID:        "p_host",
		Name:            e.faker.Name(),
		MatchTargetWins: targetWins,
	})
	require.NoError(t, err)
	_, err = e.challenge.StartRace(ctx, created.Challenge.ID, created.HostKey)
	require.NoError(t, err)
	return created
}

func (e *testEnv) win(t *testing.T, challengeID string, round int, playerID string, tries int) *Outcome {
	t.Helper()
	now := time.Now()
	out, err := e.round.Submit(context.Background(), SubmitInput{
		ChallengeID: challengeID,
		Round:       round,
		PlayerID:    playerID,
		Name:        e.faker.FirstName(),
		Won:         true,
		Tries:       tries,
		StartedAt:   now.Add(-30 * time.Second),
		FinishedAt:  now,
	})
	require.NoError(t, err)
	return out
}

func receiveChange(t *testing.T, ch <-chan feed.Change) feed.Change {
	t.Helper()
	select {
	case c, ok := <-ch:
		require.True(t, ok, "subscription closed")
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for change")
		return feed.Change{}
	}
}

// ============================================================================
// Моки репозиториев
// ============================================================================

type MockChallengeRepo struct {
	mock.Mock
}

func (m *MockChallengeRepo) Create(ctx context.Context, challenge *entity.Challenge) error {
	args := m.Called(ctx, challenge)
	return args.Error(0)
}

func (m *MockChallengeRepo) GetByID(ctx context.Context, id string) (*entity.Challenge, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.Challenge), args.Error(1)
}

func (m *MockChallengeRepo) StartRace(ctx context.Context, id string, startsAt time.Time) (bool, error) {
	args := m.Called(ctx, id, startsAt)
	return args.Bool(0), args.Error(1)
}

func (m *MockChallengeRepo) ClaimRoundWinner(ctx context.Context, id string, round int, winner entity.PlayerRef, endedAt time.Time) (bool, error) {
	args := m.Called(ctx, id, round, winner, endedAt)
	return args.Bool(0), args.Error(1)
}

func (m *MockChallengeRepo) CloseRound(ctx context.Context, id string, round int, winnerID string, matchWinner *entity.PlayerRef) (bool, error) {
	args := m.Called(ctx, id, round, winnerID, matchWinner)
	return args.Bool(0), args.Error(1)
}

func (m *MockChallengeRepo) AdvanceRound(ctx context.Context, id string, fromRound int, word string) (bool, error) {
	args := m.Called(ctx, id, fromRound, word)
	return args.Bool(0), args.Error(1)
}

type MockPlayerRepo struct {
	mock.Mock
}

func (m *MockPlayerRepo) Upsert(ctx context.Context, player *entity.ChallengePlayer) error {
	args := m.Called(ctx, player)
	return args.Error(0)
}

func (m *MockPlayerRepo) Get(ctx context.Context, challengeID, playerID string) (*entity.ChallengePlayer, error) {
	args := m.Called(ctx, challengeID, playerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.ChallengePlayer), args.Error(1)
}

func (m *MockPlayerRepo) List(ctx context.Context, challengeID string) ([]entity.ChallengePlayer, error) {
	args := m.Called(ctx, challengeID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]entity.ChallengePlayer), args.Error(1)
}

type MockCacheRepo struct {
	mock.Mock
}

func (m *MockCacheRepo) SetJSON(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	args := m.Called(ctx, key, value, expiration)
	return args.Error(0)
}

func (m *MockCacheRepo) GetJSON(ctx context.Context, key string, dest interface{}) error {
	args := m.Called(ctx, key, dest)
	return args.Error(0)
}

func (m *MockCacheRepo) IncrWindow(ctx context.Context, key string, window time.Duration) (int64, error) {
	args := m.Called(ctx, key, window)
	return args.Get(0).(int64), args.Error(1)
}
