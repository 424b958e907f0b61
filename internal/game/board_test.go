package game

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBoard_Win(t *testing.T) {
	b := NewBoard("كتاب")
	assert.Equal(t, 4, b.Length())

	g, err := b.Submit("بكبك")
	require.NoError(t, err)
	assert.False(t, AllCorrect(g.Statuses))
	assert.False(t, b.Finished())

	g, err = b.Submit("كتاب")
	require.NoError(t, err)
	assert.True(t, AllCorrect(g.Statuses))
	assert.True(t, b.Finished())
	assert.True(t, b.Won())
	assert.Equal(t, 2, b.Tries())

	_, err = b.Submit("كتاب")
	assert.ErrorIs(t, err, ErrBoardFinished)
}

func TestBoard_LossAfterSixGuesses(t *testing.T) {
	b := NewBoard("كتاب")
	for i := 0; i < MaxGuesses; i++ {
		_, err := b.Submit("سماء")
		require.NoError(t, err)
	}
	assert.True(t, b.Finished())
	assert.False(t, b.Won())
	assert.Equal(t, MaxGuesses, b.Tries())
	assert.Len(t, b.Guesses(), MaxGuesses)
}

func TestBoard_RejectedGuessDoesNotCount(t *testing.T) {
	b := NewBoard("كتاب")
	_, err := b.Submit("كت")
	assert.ErrorIs(t, err, ErrIncompleteGuess)
	assert.Empty(t, b.Guesses())
}
