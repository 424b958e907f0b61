package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"

	apperrors "github.com/yourusername/buildle-api/internal/pkg/errors"
)

const (
	ticketUsage    = "websocket_auth"
	ticketAudience = "buildle-ws"

	defaultTicketExpiry = 60 * time.Second
)

// TicketClaims - полезная нагрузка WS-тикета: игрок и челлендж, к которому он подключается
type TicketClaims struct {
	ChallengeID string `json:"challenge_id"`
	PlayerID    string `json:"player_id"`
	Name        string `json:"name"`
	Usage       string `json:"usage"`
	jwt.RegisteredClaims
}

// TicketService выпускает и проверяет короткоживущие тикеты для WebSocket.
// Тикет выдается при входе в челлендж и связывает соединение с игроком.
type TicketService struct {
	secret []byte
	expiry time.Duration
	issuer string
	now    func() time.Time
}

// NewTicketService создает сервис тикетов
func NewTicketService(secret string, expiry time.Duration, issuer string) (*TicketService, error) {
	if secret == "" {
		return nil, errors.New("ticket secret cannot be empty")
	}
	if expiry <= 0 {
		expiry = defaultTicketExpiry
	}
	if issuer == "" {
		issuer = "buildle-api"
	}
	return &TicketService{secret: []byte(secret), expiry: expiry, issuer: issuer, now: time.Now}, nil
}

// Expiry возвращает время жизни тикета
func (s *TicketService) Expiry() time.Duration {
	return s.expiry
}

// Generate создает тикет для игрока в челлендже
func (s *TicketService) Generate(challengeID, playerID, name string) (string, error) {
	if challengeID == "" || playerID == "" {
		return "", fmt.Errorf("%w: ticket requires challenge and player", apperrors.ErrValidation)
	}
	now := s.now()
	claims := &TicketClaims{
		ChallengeID: challengeID,
		PlayerID:    playerID,
		Name:        name,
		Usage:       ticketUsage,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(s.expiry)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    s.issuer,
			Subject:   playerID,
			Audience:  jwt.ClaimStrings{ticketAudience},
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// Parse проверяет подпись, срок действия и назначение тикета
func (s *TicketService) Parse(ticket string) (*TicketClaims, error) {
	claims := &TicketClaims{}
	token, err := jwt.ParseWithClaims(ticket, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		var ve *jwt.ValidationError
		if errors.As(err, &ve) && ve.Errors&jwt.ValidationErrorExpired != 0 {
			return nil, apperrors.ErrExpiredToken
		}
		return nil, fmt.Errorf("%w: invalid ticket: %v", apperrors.ErrUnauthorized, err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("%w: invalid ticket", apperrors.ErrUnauthorized)
	}
	if claims.Usage != ticketUsage {
		return nil, fmt.Errorf("%w: invalid ticket usage", apperrors.ErrUnauthorized)
	}
	if !claims.VerifyAudience(ticketAudience, true) {
		return nil, fmt.Errorf("%w: invalid ticket audience", apperrors.ErrUnauthorized)
	}
	if claims.ChallengeID == "" || claims.PlayerID == "" {
		return nil, fmt.Errorf("%w: ticket without player binding", apperrors.ErrUnauthorized)
	}
	return claims, nil
}
