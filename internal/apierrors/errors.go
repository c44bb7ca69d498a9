// apierrors стандартизирует ответы об ошибках HTTP-слоя.
// На вход он принимает ошибку доменного слоя (service), а на выход даёт:
//   - корректный HTTP-статус;
//   - краткое безопасное message без утечки деталей.
//
// Наружу все проблемы с учётными данными и токенами (неверный пароль,
// неизвестный пользователь, просроченный/битый/вытесненный токен) отдаются
// одной категорией 401/unauthenticated: детальная причина остаётся в логах
// и не должна служить оракулом для перебора.
package apierrors

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/AntonZelenin/mess-auth/internal/service"
)

// Нестандартный код, часто используемый для "клиент закрыл соединение".
const StatusClientClosedRequest = 499

// APIError — единый формат для клиента.
// Code — короткий стабильный код для машиночитаемой обработки.
// Message — безопасное человекочитаемое описание.
// RequestID — прокидывается из X-Request-Id, если есть (для трассировки).
type APIError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

// ErrorResponse — корневой объект в ответе.
type ErrorResponse struct {
	Error APIError `json:"error"`
}

// ErrBadRequest — локальная ошибка транспортного слоя (битый JSON и т.п.).
var ErrBadRequest = errors.New("bad request")

// ToHTTP конвертирует ошибку доменного слоя в HTTP-статус и унифицированный ответ.
//
// Поведение:
//   - err == nil — это программная ошибка вызова: возвращаем 500/internal,
//     чтобы не послать "200 OK" с телом ошибки и не маскировать баг;
//   - ErrUsernameTaken -> 409;
//   - ErrEmptyUsername/ErrEmptyPassword/ErrBadRequest -> 400;
//   - ErrInvalidCredentials/ErrInvalidToken/ErrTokenExpired -> 401
//     (одно и то же тело для всех трёх);
//   - контекстные ошибки -> 499/504;
//   - прочее (отказ хранилища и т.д.) -> 500/internal без деталей.
func ToHTTP(err error) (int, ErrorResponse) {
	switch {
	case err == nil:
		return http.StatusInternalServerError, newResponse("internal", "internal error")
	case errors.Is(err, service.ErrUsernameTaken):
		return http.StatusConflict, newResponse("already_exists", "username already taken")
	case errors.Is(err, service.ErrEmptyUsername) || errors.Is(err, service.ErrEmptyPassword) || errors.Is(err, ErrBadRequest):
		return http.StatusBadRequest, newResponse("invalid_argument", "invalid argument")
	case errors.Is(err, service.ErrInvalidCredentials),
		errors.Is(err, service.ErrInvalidToken),
		errors.Is(err, service.ErrTokenExpired):
		return http.StatusUnauthorized, newResponse("unauthenticated", "invalid credentials")
	case errors.Is(err, context.Canceled):
		return StatusClientClosedRequest, newResponse("canceled", "canceled")
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, newResponse("deadline_exceeded", "deadline exceeded")
	default:
		return http.StatusInternalServerError, newResponse("internal", "internal error")
	}
}

// WriteError — хелпер для HTTP-хендлеров.
// Пишет корректный статус/тело, добавляет request_id из заголовка, если он есть.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	status, resp := ToHTTP(err)

	// Прокидываем request_id, чтобы клиент мог репортить баги с привязкой.
	if rid := r.Header.Get("X-Request-Id"); rid != "" {
		resp.Error.RequestID = rid
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}

func newResponse(code, msg string) ErrorResponse {
	return ErrorResponse{Error: APIError{Code: code, Message: msg}}
}
