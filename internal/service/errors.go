package service

import (
	"fmt"

	apperrors "github.com/yourusername/buildle-api/internal/pkg/errors"
)

// Ошибки сервисного слоя. Каждая оборачивает общую ошибку из apperrors,
// по которой HTTP-слой выбирает код ответа.
var (
	// ErrNotHost - ключ хоста отсутствует или не совпадает; состояние не меняется
	ErrNotHost = fmt.Errorf("%w: host key mismatch", apperrors.ErrForbidden)

	// ErrInvalidTransition - действие недопустимо в текущем статусе челленджа
	ErrInvalidTransition = fmt.Errorf("%w: invalid status transition", apperrors.ErrConflict)

	ErrUnsupportedLength = fmt.Errorf("%w: unsupported word length", apperrors.ErrValidation)
	ErrInvalidTargetWins = fmt.Errorf("%w: match target wins out of range", apperrors.ErrValidation)
	ErrInvalidRound      = fmt.Errorf("%w: invalid round", apperrors.ErrValidation)
	ErrInvalidTries      = fmt.Errorf("%w: invalid tries", apperrors.ErrValidation)
)
