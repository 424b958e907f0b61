package dto

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/buildle-api/internal/domain/entity"
)

func TestNewChallengeResponse_HidesWordWhileRoundIsOpen(t *testing.T) {
	winner := "p_1"
	tests := []struct {
		status   string
		winnerID *string
		wantWord bool
	}{
		{entity.ChallengeStatusLobby, nil, false},
		{entity.ChallengeStatusRunning, nil, false},
		{entity.ChallengeStatusRunning, &winner, false},
		{entity.ChallengeStatusRoundOver, &winner, true},
		{entity.ChallengeStatusMatchOver, &winner, true},
		{entity.ChallengeStatusFinished, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.status, func(t *testing.T) {
			c := &entity.Challenge{ID: "c1", Word: "كتاب", Length: 4, Status: tt.status, HostKey: "secret-key", RoundWinnerPlayerID: tt.winnerID}
			resp := NewChallengeResponse(c)

			data, err := json.Marshal(resp)
			require.NoError(t, err)
			assert.NotContains(t, string(data), "secret-key")
			if tt.wantWord {
				assert.Equal(t, "كتاب", resp.Word)
			} else {
				assert.Empty(t, resp.Word)
				assert.NotContains(t, string(data), `"word"`)
			}
		})
	}
}

func TestNewChallengeResponse_Defaults(t *testing.T) {
	assert.Nil(t, NewChallengeResponse(nil))

	resp := NewChallengeResponse(&entity.Challenge{ID: "c1", Status: entity.ChallengeStatusLobby})
	assert.Equal(t, entity.DefaultMatchTargetWins, resp.MatchTargetWins)
	assert.Nil(t, resp.RoundWinner)
	assert.Nil(t, resp.MatchWinner)
}
