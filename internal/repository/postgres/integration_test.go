//go:build integration

package postgres

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"gorm.io/gorm"

	"github.com/yourusername/buildle-api/internal/domain/entity"
	"github.com/yourusername/buildle-api/internal/domain/repository"
	"github.com/yourusername/buildle-api/pkg/database"
)

// newPostgresDB поднимает PostgreSQL в контейнере и применяет миграции
func newPostgresDB(t *testing.T) *gorm.DB {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("buildle"),
		tcpostgres.WithUsername("buildle"),
		tcpostgres.WithPassword("buildle"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := database.NewPostgresDB(dsn, 25, 10)
	require.NoError(t, err)
	require.NoError(t, database.MigrateDB(db, database.DriverPostgres))
	return db
}

func TestPostgres_ClaimRoundWinnerUnderContention(t *testing.T) {
	ctx := context.Background()
	db := newPostgresDB(t)
	repo := NewChallengeRepo(db)
	results := NewResultRepo(db)
	createTestChallenge(t, repo, "pgrace1")
	startTestRace(t, repo, "pgrace1")

	const racers = 32
	var (
		wg      sync.WaitGroup
		start   = make(chan struct{})
		winners atomic.Int32
	)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("p_%02d", i)
			<-start
			assert.NoError(t, results.Upsert(ctx, newResult("pgrace1", 1, id, true, 3, 30, 57)))
			ok, err := repo.ClaimRoundWinner(ctx, "pgrace1", 1, entity.PlayerRef{PlayerID: id, Name: id}, time.Now())
			assert.NoError(t, err)
			if ok {
				winners.Add(1)
			}
		}(i)
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), winners.Load())

	rows, err := results.ListRound(ctx, "pgrace1", 1)
	require.NoError(t, err)
	assert.Len(t, rows, racers, "every finisher keeps its result")
}

func TestPostgres_DuplicateIDTranslated(t *testing.T) {
	db := newPostgresDB(t)
	repo := NewChallengeRepo(db)
	createTestChallenge(t, repo, "dup0001")

	err := repo.Create(context.Background(), &entity.Challenge{
		ID: "dup0001", Word: "سماء", Length: 4, Status: entity.ChallengeStatusLobby,
		CurrentRound: 1, HostKey: "k", MatchTargetWins: 5,
	})
	assert.ErrorIs(t, err, repository.ErrDuplicateID)
}
