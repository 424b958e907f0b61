package postgres

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/yourusername/buildle-api/internal/domain/entity"
	"github.com/yourusername/buildle-api/pkg/database"
)

// newTestDB открывает мигрированную SQLite-базу во временном каталоге
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.NewSQLiteDB(filepath.Join(t.TempDir(), "repo.db"))
	require.NoError(t, err)
	require.NoError(t, database.MigrateDB(db, database.DriverSQLite))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func createTestChallenge(t *testing.T, repo *ChallengeRepo, id string) *entity.Challenge {
	t.Helper()
	c := &entity.Challenge{
		ID:              id,
		Word:            "كتاب",
		Length:          4,
		Status:          entity.ChallengeStatusLobby,
		CurrentRound:    1,
		HostKey:         "hostkey123",
		MatchTargetWins: entity.DefaultMatchTargetWins,
	}
	require.NoError(t, repo.Create(context.Background(), c))
	return c
}

func startTestRace(t *testing.T, repo *ChallengeRepo, id string) {
	t.Helper()
	ok, err := repo.StartRace(context.Background(), id, time.Now())
	require.NoError(t, err)
	require.True(t, ok)
}
