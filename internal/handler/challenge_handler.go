package handler

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"

	"github.com/yourusername/buildle-api/internal/domain/entity"
	"github.com/yourusername/buildle-api/internal/handler/dto"
	"github.com/yourusername/buildle-api/internal/middleware"
	apperrors "github.com/yourusername/buildle-api/internal/pkg/errors"
	"github.com/yourusername/buildle-api/internal/service"
	"github.com/yourusername/buildle-api/pkg/auth"
)

// HostKeyHeader - заголовок с ключом хоста; альтернатива - параметр ?h=
const HostKeyHeader = "X-Host-Key"

// ChallengeHandler обрабатывает HTTP-запросы челленджей
type ChallengeHandler struct {
	challenges    *service.ChallengeService
	leaderboard   *service.LeaderboardService
	words         service.WordSource
	tickets       *auth.TicketService
	defaultLength int
	logger        zerolog.Logger
}

// NewChallengeHandler создает новый обработчик челленджей
func NewChallengeHandler(
	challenges *service.ChallengeService,
	leaderboard *service.LeaderboardService,
	words service.WordSource,
	tickets *auth.TicketService,
	defaultLength int,
	logger zerolog.Logger,
) *ChallengeHandler {
	return &ChallengeHandler{
		challenges:    challenges,
		leaderboard:   leaderboard,
		words:         words,
		tickets:       tickets,
		defaultLength: defaultLength,
		logger:        logger.With().Str("component", "challenge_handler").Logger(),
	}
}

// CreateChallenge создает челлендж; создатель становится хостом и первым игроком
// POST /api/challenges
func (h *ChallengeHandler) CreateChallenge(c *gin.Context) {
	var req dto.CreateChallengeRequest
	if !bindOptionalJSON(c, &req) {
		return
	}

	created, err := h.challenges.Create(c.Request.Context(), service.CreateChallengeInput{
		PlayerID:        req.PlayerID,
		Name:            req.Name,
		Length:          req.Length,
		MatchTargetWins: req.MatchTargetWins,
	})
	if err != nil {
		h.handleError(c, err)
		return
	}

	ticket, err := h.tickets.Generate(created.Challenge.ID, created.Player.PlayerID, created.Player.Name)
	if err != nil {
		h.handleError(c, err)
		return
	}

	view := dto.NewChallengeResponse(created.Challenge)
	view.IsHost = true
	c.JSON(http.StatusCreated, dto.CreateChallengeResponse{
		Challenge: view,
		HostKey:   created.HostKey,
		Link:      created.Link,
		Player:    created.Player,
		Ticket:    ticket,
		ExpiresIn: int(h.tickets.Expiry().Seconds()),
	})
}

// GetChallenge возвращает публичное представление челленджа
// GET /api/challenges/:id
func (h *ChallengeHandler) GetChallenge(c *gin.Context) {
	id := c.GetString(middleware.ChallengeIDKey)

	challenge, err := h.challenges.Get(c.Request.Context(), id)
	if err != nil {
		h.handleError(c, err)
		return
	}

	view := dto.NewChallengeResponse(challenge)
	view.IsHost = service.IsHost(challenge, hostKey(c))
	c.JSON(http.StatusOK, view)
}

// JoinChallenge добавляет игрока в состав и выдает WS-тикет
// POST /api/challenges/:id/join
func (h *ChallengeHandler) JoinChallenge(c *gin.Context) {
	var req dto.JoinChallengeRequest
	if !bindOptionalJSON(c, &req) {
		return
	}

	player, err := h.challenges.Join(c.Request.Context(), service.JoinInput{
		ChallengeID: c.GetString(middleware.ChallengeIDKey),
		PlayerID:    req.PlayerID,
		Name:        req.Name,
	})
	if err != nil {
		h.handleError(c, err)
		return
	}

	ticket, err := h.tickets.Generate(player.ChallengeID, player.PlayerID, player.Name)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.JoinChallengeResponse{
		Player:    player,
		Ticket:    ticket,
		ExpiresIn: int(h.tickets.Expiry().Seconds()),
	})
}

// StartRace запускает обратный отсчет текущего раунда (только хост)
// POST /api/challenges/:id/start
func (h *ChallengeHandler) StartRace(c *gin.Context) {
	challenge, err := h.challenges.StartRace(c.Request.Context(), c.GetString(middleware.ChallengeIDKey), hostKey(c))
	if err != nil {
		h.handleError(c, err)
		return
	}
	view := dto.NewChallengeResponse(challenge)
	view.IsHost = true
	c.JSON(http.StatusOK, view)
}

// NextRound переводит челлендж в следующий раунд с новым словом (только хост)
// POST /api/challenges/:id/next-round
func (h *ChallengeHandler) NextRound(c *gin.Context) {
	challenge, err := h.challenges.NextRound(c.Request.Context(), c.GetString(middleware.ChallengeIDKey), hostKey(c))
	if err != nil {
		h.handleError(c, err)
		return
	}
	view := dto.NewChallengeResponse(challenge)
	view.IsHost = true
	c.JSON(http.StatusOK, view)
}

// ListPlayers возвращает состав в порядке входа
// GET /api/challenges/:id/players
func (h *ChallengeHandler) ListPlayers(c *gin.Context) {
	id := c.GetString(middleware.ChallengeIDKey)
	players, err := h.challenges.Players(c.Request.Context(), id)
	if err != nil {
		h.handleError(c, err)
		return
	}
	if players == nil {
		players = []entity.ChallengePlayer{}
	}
	c.JSON(http.StatusOK, gin.H{"challenge_id": id, "players": players})
}

// RoundResults возвращает лидерборд раунда
// GET /api/challenges/:id/rounds/:round/results
func (h *ChallengeHandler) RoundResults(c *gin.Context) {
	id := c.GetString(middleware.ChallengeIDKey)
	round := c.GetInt(middleware.RoundKey)

	results, err := h.leaderboard.RoundResults(c.Request.Context(), id, round)
	if err != nil {
		h.handleError(c, err)
		return
	}
	if results == nil {
		results = []entity.ChallengeResult{}
	}
	c.JSON(http.StatusOK, dto.RoundResultsResponse{ChallengeID: id, Round: round, Results: results})
}

// Standings возвращает счет матча
// GET /api/challenges/:id/standings
func (h *ChallengeHandler) Standings(c *gin.Context) {
	challenge, standings, ok := h.loadStandings(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, dto.StandingsResponse{
		ChallengeID: challenge.ID,
		TargetWins:  challenge.TargetWins(),
		Standings:   standings,
	})
}

// ExportStandings экспортирует счет матча в CSV или Excel формате
// GET /api/challenges/:id/standings/export?format=csv|xlsx
func (h *ChallengeHandler) ExportStandings(c *gin.Context) {
	format := c.DefaultQuery("format", "csv")
	if format != "csv" && format != "xlsx" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "format must be csv or xlsx"})
		return
	}

	challenge, standings, ok := h.loadStandings(c)
	if !ok {
		return
	}

	filename := fmt.Sprintf("challenge_%s_standings_%s", challenge.ID, time.Now().Format("2006-01-02"))
	if format == "xlsx" {
		h.exportXLSX(c, standings, filename)
		return
	}
	h.exportCSV(c, standings, filename)
}

// RandomWord выдает слово для одиночной игры
// GET /api/words/random?length=
func (h *ChallengeHandler) RandomWord(c *gin.Context) {
	length := h.defaultLength
	if raw := c.Query("length"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid length"})
			return
		}
		length = n
	}
	if !h.words.Supports(length) {
		h.handleError(c, fmt.Errorf("%w: %d", service.ErrUnsupportedLength, length))
		return
	}

	word, err := h.words.Random(length)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.RandomWordResponse{Word: word, Length: length})
}

func (h *ChallengeHandler) loadStandings(c *gin.Context) (*entity.Challenge, []entity.MatchScore, bool) {
	id := c.GetString(middleware.ChallengeIDKey)
	challenge, err := h.challenges.Get(c.Request.Context(), id)
	if err != nil {
		h.handleError(c, err)
		return nil, nil, false
	}
	standings, err := h.leaderboard.Standings(c.Request.Context(), id)
	if err != nil {
		h.handleError(c, err)
		return nil, nil, false
	}
	return challenge, standings, true
}

var exportHeaders = []string{"Rank", "Player", "Player ID", "Wins"}

// exportCSV экспортирует счет в CSV с правильным экранированием спецсимволов
func (h *ChallengeHandler) exportCSV(c *gin.Context, standings []entity.MatchScore, filename string) {
	c.Header("Content-Type", "text/csv; charset=utf-8")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s.csv\"", filename))

	// BOM для корректного отображения UTF-8 (арабских имен) в Excel
	c.Writer.Write([]byte{0xEF, 0xBB, 0xBF})

	writer := csv.NewWriter(c.Writer)
	defer writer.Flush()

	writer.Write(exportHeaders)
	for i, s := range standings {
		writer.Write([]string{
			strconv.Itoa(i + 1),
			sanitizeForExcel(s.Name),
			sanitizeForExcel(s.PlayerID),
			strconv.Itoa(s.Wins),
		})
	}
}

// exportXLSX экспортирует счет в Excel с использованием StreamWriter
func (h *ChallengeHandler) exportXLSX(c *gin.Context, standings []entity.MatchScore, filename string) {
	f := excelize.NewFile()
	defer f.Close()

	sheetName := "Standings"
	f.SetSheetName("Sheet1", sheetName)

	sw, err := f.NewStreamWriter(sheetName)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to create stream writer")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create Excel file"})
		return
	}

	headers := make([]interface{}, len(exportHeaders))
	for i, v := range exportHeaders {
		headers[i] = v
	}
	if err := sw.SetRow("A1", headers); err != nil {
		h.logger.Error().Err(err).Msg("failed to write header row")
	}
	for i, s := range standings {
		cell := fmt.Sprintf("A%d", i+2)
		row := []interface{}{i + 1, sanitizeForExcel(s.Name), sanitizeForExcel(s.PlayerID), s.Wins}
		if err := sw.SetRow(cell, row); err != nil {
			h.logger.Error().Err(err).Int("row", i+2).Msg("failed to write row")
		}
	}
	if err := sw.Flush(); err != nil {
		h.logger.Error().Err(err).Msg("failed to flush stream writer")
	}

	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s.xlsx\"", filename))
	if err := f.Write(c.Writer); err != nil {
		h.logger.Error().Err(err).Msg("failed to write xlsx response")
	}
}

// sanitizeForExcel экранирует данные для защиты от formula injection в Excel/CSV
func sanitizeForExcel(s string) string {
	if len(s) == 0 {
		return s
	}
	// Символы, начинающие формулу в Excel/LibreOffice: = + - @ \t \r
	if s[0] == '=' || s[0] == '+' || s[0] == '-' || s[0] == '@' || s[0] == '\t' || s[0] == '\r' {
		return "'" + s
	}
	return s
}

// hostKey достает ключ хоста из заголовка или из параметра ссылки ?h=
func hostKey(c *gin.Context) string {
	if key := c.GetHeader(HostKeyHeader); key != "" {
		return key
	}
	return c.Query("h")
}

// bindOptionalJSON разбирает тело запроса; пустое тело допустимо
func bindOptionalJSON(c *gin.Context, dest interface{}) bool {
	if err := c.ShouldBindJSON(dest); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return false
	}
	return true
}

// handleError обрабатывает ошибки сервисов и отправляет соответствующий HTTP ответ
func (h *ChallengeHandler) handleError(c *gin.Context, err error) {
	if errors.Is(err, apperrors.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	} else if errors.Is(err, apperrors.ErrConflict) {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	} else if errors.Is(err, apperrors.ErrValidation) {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	} else if errors.Is(err, apperrors.ErrUnauthorized) || errors.Is(err, apperrors.ErrExpiredToken) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
	} else if errors.Is(err, apperrors.ErrForbidden) {
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	} else {
		h.logger.Error().Err(err).Str("path", c.FullPath()).Msg("internal server error")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}
