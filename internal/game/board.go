package game

// Guess - оцененная строка доски
type Guess struct {
	Word     string         `json:"word"`
	Statuses []LetterStatus `json:"statuses"`
}

// Board - доска одного игрока на один раунд. Не потокобезопасна.
type Board struct {
	target  string
	length  int
	guesses []Guess
	won     bool
}

// NewBoard создает пустую доску для слова target
func NewBoard(target string) *Board {
	return &Board{target: target, length: len([]rune(target))}
}

// Submit проверяет и оценивает попытку и добавляет ее на доску
func (b *Board) Submit(raw string) (Guess, error) {
	if b.Finished() {
		return Guess{}, ErrBoardFinished
	}
	word, err := NormalizeGuess(raw, b.length)
	if err != nil {
		return Guess{}, err
	}
	statuses, err := Evaluate(word, b.target)
	if err != nil {
		return Guess{}, err
	}
	g := Guess{Word: word, Statuses: statuses}
	b.guesses = append(b.guesses, g)
	b.won = AllCorrect(statuses)
	return g, nil
}

// Finished проверяет, отгадано ли слово или закончились попытки
func (b *Board) Finished() bool {
	return b.won || len(b.guesses) >= MaxGuesses
}

// Won проверяет, отгадано ли слово
func (b *Board) Won() bool { return b.won }

// Tries возвращает число использованных попыток, для проигрыша - MaxGuesses
func (b *Board) Tries() int {
	if b.won {
		return len(b.guesses)
	}
	return MaxGuesses
}

// Length возвращает длину слова в буквах
func (b *Board) Length() int { return b.length }

// Guesses возвращает копию оцененных строк
func (b *Board) Guesses() []Guess {
	out := make([]Guess, len(b.guesses))
	copy(out, b.guesses)
	return out
}
