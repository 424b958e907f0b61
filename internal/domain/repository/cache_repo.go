package repository

import (
	"context"
	"time"
)

// CacheRepository определяет методы для работы с кешем.
// Промахи кеша возвращают apperrors.ErrNotFound.
type CacheRepository interface {
	SetJSON(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	GetJSON(ctx context.Context, key string, dest interface{}) error
	// IncrWindow увеличивает счетчик и при первом инкременте задает ему TTL
	IncrWindow(ctx context.Context, key string, window time.Duration) (int64, error)
}
