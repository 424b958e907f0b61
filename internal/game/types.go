// Package game содержит правила игры: оценку попытки, очки и доску игрока на раунд.
package game

import "errors"

// LetterStatus - оценка одной буквы попытки
type LetterStatus string

const (
	StatusCorrect LetterStatus = "correct"
	StatusPresent LetterStatus = "present"
	StatusAbsent  LetterStatus = "absent"
)

// MaxGuesses - число попыток игрока за раунд
const MaxGuesses = 6

var (
	// ErrIncompleteGuess - попытка короче слова
	ErrIncompleteGuess = errors.New("guess is incomplete")
	// ErrLengthMismatch - длины попытки и слова не совпадают
	ErrLengthMismatch = errors.New("guess and target lengths differ")
	// ErrInvalidLetter - в попытке есть буква не из арабского алфавита
	ErrInvalidLetter = errors.New("guess contains an invalid letter")
	// ErrBoardFinished - попытка на уже завершенной доске
	ErrBoardFinished = errors.New("board is finished")
)
