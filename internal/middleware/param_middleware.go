package middleware

import (
	"fmt"
	"net/http"
	"regexp"
	"strconv"

	"github.com/gin-gonic/gin"
)

// Ключи контекста Gin
const (
	ChallengeIDKey = "challenge_id"
	RoundKey       = "round"
)

var challengeIDPattern = regexp.MustCompile(`^[a-z0-9]{1,16}$`)

// ExtractChallengeID проверяет параметр :id и сохраняет его в контексте.
// Идентификатор челленджа - base36 в нижнем регистре.
func ExtractChallengeID(paramName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param(paramName)
		if !challengeIDPattern.MatchString(id) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("Invalid %s", paramName)})
			return
		}
		c.Set(ChallengeIDKey, id)
		c.Next()
	}
}

// ExtractPositiveIntParam создает middleware для извлечения числового параметра URL >= 1.
// paramName - имя параметра в URL (например, "round").
// contextKey - ключ, под которым значение будет сохранено в контексте Gin.
func ExtractPositiveIntParam(paramName, contextKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		n, err := strconv.Atoi(c.Param(paramName))
		if err != nil || n < 1 {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("Invalid %s", paramName)})
			return
		}
		c.Set(contextKey, n)
		c.Next()
	}
}
