package game

import (
	"strings"
	"unicode/utf8"
)

// Evaluate сравнивает попытку со словом в два прохода.
//
// Первый проход отмечает точные совпадения и занимает букву с обеих сторон.
// Второй проход ищет для каждой оставшейся буквы попытки первую свободную
// такую же букву слова слева направо; найденная помечается present и занимается.
// Буквы сравниваются как руны.
func Evaluate(guess, target string) ([]LetterStatus, error) {
	g := []rune(guess)
	t := []rune(target)
	if len(g) != len(t) {
		return nil, ErrLengthMismatch
	}

	res := make([]LetterStatus, len(g))
	usedG := make([]bool, len(g))
	usedT := make([]bool, len(t))

	for i := range g {
		if g[i] == t[i] {
			res[i] = StatusCorrect
			usedG[i], usedT[i] = true, true
		}
	}

	for i := range g {
		if usedG[i] {
			continue
		}
		res[i] = StatusAbsent
		for j := range t {
			if !usedT[j] && t[j] == g[i] {
				res[i] = StatusPresent
				usedT[j] = true
				break
			}
		}
	}
	return res, nil
}

// AllCorrect проверяет, что все буквы отмечены correct
func AllCorrect(statuses []LetterStatus) bool {
	if len(statuses) == 0 {
		return false
	}
	for _, s := range statuses {
		if s != StatusCorrect {
			return false
		}
	}
	return true
}

// IsArabicLetter проверяет, входит ли r в допустимый алфавит (U+0621..U+064A и U+0671)
func IsArabicLetter(r rune) bool {
	return (r >= 0x0621 && r <= 0x064A) || r == 0x0671
}

// NormalizeGuess обрезает пробелы и проверяет длину и алфавит попытки.
// Короткая попытка - ErrIncompleteGuess, длинная - ErrLengthMismatch.
func NormalizeGuess(guess string, length int) (string, error) {
	guess = strings.TrimSpace(guess)
	n := utf8.RuneCountInString(guess)
	switch {
	case n < length:
		return "", ErrIncompleteGuess
	case n > length:
		return "", ErrLengthMismatch
	}
	for _, r := range guess {
		if !IsArabicLetter(r) {
			return "", ErrInvalidLetter
		}
	}
	return guess, nil
}
