package models

import (
	"time"

	"github.com/google/uuid"
)

// Виды токенов, различаемые клеймом token_type.
const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

// Claims — проверенные данные из подписанного токена,
// возвращаемые вызывающему слою после авторизации.
type Claims struct {
	UserID    uuid.UUID
	Username  string
	TokenType string
	ExpiresAt time.Time
}
