// Package feed разносит изменения строк хранилища по подписчикам челленджа.
//
// Change - размеченное объединение по трем таблицам: в каждом событии ровно
// одна полная строка (игрок, результат или челлендж). Подписчики не применяют
// дельты, а перечитывают соответствующий агрегат, поэтому повтор и
// перестановка событий безопасны.
package feed

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/yourusername/buildle-api/internal/domain/entity"
)

// Kind - тег события
type Kind string

const (
	KindPlayer    Kind = "player"
	KindResult    Kind = "result"
	KindChallenge Kind = "challenge"
)

// ErrClosed возвращается при работе с закрытой шиной
var ErrClosed = errors.New("feed bus is closed")

// Change - событие изменения одной строки
type Change struct {
	Kind        Kind                    `json:"kind"`
	ChallengeID string                  `json:"challenge_id"`
	Player      *entity.ChallengePlayer `json:"player,omitempty"`
	Result      *entity.ChallengeResult `json:"result,omitempty"`
	Challenge   *entity.Challenge       `json:"challenge,omitempty"`
	At          time.Time               `json:"at"`
}

// PlayerChanged создает событие изменения состава
func PlayerChanged(p entity.ChallengePlayer) Change {
	return Change{Kind: KindPlayer, ChallengeID: p.ChallengeID, Player: &p, At: time.Now()}
}

// ResultChanged создает событие изменения результата
func ResultChanged(r entity.ChallengeResult) Change {
	return Change{Kind: KindResult, ChallengeID: r.ChallengeID, Result: &r, At: time.Now()}
}

// ChallengeChanged создает событие изменения строки челленджа
func ChallengeChanged(c entity.Challenge) Change {
	return Change{Kind: KindChallenge, ChallengeID: c.ID, Challenge: &c, At: time.Now()}
}

// Validate проверяет, что тег соответствует заполненной строке
func (c Change) Validate() error {
	if c.ChallengeID == "" {
		return errors.New("change without challenge id")
	}
	switch c.Kind {
	case KindPlayer:
		if c.Player == nil {
			return errors.New("player change without row")
		}
	case KindResult:
		if c.Result == nil {
			return errors.New("result change without row")
		}
	case KindChallenge:
		if c.Challenge == nil {
			return errors.New("challenge change without row")
		}
	default:
		return fmt.Errorf("unknown change kind %q", c.Kind)
	}
	return nil
}

// Bus публикует события и выдает подписки по ID челленджа.
// Подписка живет, пока не отменен ctx; после этого канал закрывается.
type Bus interface {
	Publish(ctx context.Context, change Change) error
	Subscribe(ctx context.Context, challengeID string) (<-chan Change, error)
	Close() error
}

// Publisher - часть Bus, нужная сервисам
type Publisher interface {
	Publish(ctx context.Context, change Change) error
}
