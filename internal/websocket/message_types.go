package websocket

// Типы сообщений от клиента к серверу
const (
	// TypeGuessSubmit - догадка игрока
	TypeGuessSubmit = "guess:submit"

	// TypeUserHeartbeat - проверка соединения со стороны клиента
	TypeUserHeartbeat = "user:heartbeat"

	// TypeSessionResync - запрос полного снимка
	TypeSessionResync = "session:resync"
)

// Типы сообщений от сервера к клиенту
const (
	// TypeSessionSnapshot - полное состояние сессии
	TypeSessionSnapshot = "session:snapshot"

	// TypeGuessResult - оценка догадки
	TypeGuessResult = "guess:result"

	// TypeRoundClosed - результат игрока закрыл раунд
	TypeRoundClosed = "round:closed"

	// TypeServerError - ошибка обработки
	TypeServerError = "server:error"

	// TypeServerHeartbeat - ответ на user:heartbeat
	TypeServerHeartbeat = "server:heartbeat"
)

// Коды ошибок server:error
const (
	CodeInvalidPayload  = "invalid_payload"
	CodeUnknownType     = "unknown_type"
	CodeRateLimited     = "rate_limited"
	CodeNotPlaying      = "not_playing"
	CodeIncompleteGuess = "incomplete_guess"
	CodeInvalidLetter   = "invalid_letter"
	CodeLengthMismatch  = "length_mismatch"
	CodeBoardFinished   = "board_finished"
	CodeNotFound        = "not_found"
	CodeInternal        = "internal_error"
)

// GuessSubmitData - данные guess:submit
type GuessSubmitData struct {
	Guess string `json:"guess"`
}

// HeartbeatData - данные server:heartbeat
type HeartbeatData struct {
	Timestamp int64 `json:"timestamp"`
}

// ErrorData - данные server:error
type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
