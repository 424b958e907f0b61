package service

import (
	"crypto/rand"
	"math/big"
)

const (
	idAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

	challengeIDLength = 7
	hostKeyLength     = 10
	playerIDLength    = 12
	playerIDPrefix    = "p_"
)

var idAlphabetSize = big.NewInt(int64(len(idAlphabet)))

// randomID возвращает строку из n случайных символов base36
func randomID(n int) (string, error) {
	buf := make([]byte, n)
	for i := range buf {
		idx, err := rand.Int(rand.Reader, idAlphabetSize)
		if err != nil {
			return "", err
		}
		buf[i] = idAlphabet[idx.Int64()]
	}
	return string(buf), nil
}

// NewChallengeID генерирует короткий ID челленджа для ссылки
func NewChallengeID() (string, error) {
	return randomID(challengeIDLength)
}

// NewHostKey генерирует ключ хоста
func NewHostKey() (string, error) {
	return randomID(hostKeyLength)
}

// NewPlayerID генерирует ID игрока вида p_xxxxxxxxxxxx
func NewPlayerID() (string, error) {
	id, err := randomID(playerIDLength)
	if err != nil {
		return "", err
	}
	return playerIDPrefix + id, nil
}
