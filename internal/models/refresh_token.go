package models

import (
	"time"

	"github.com/google/uuid"
)

// RefreshToken — текущий refresh-токен пользователя.
//
// На пользователя существует не более одной записи: выпуск новой пары
// токенов перезаписывает строку, и предыдущий refresh-токен перестаёт
// приниматься, даже если его подпись и срок действия ещё валидны.
// В TokenHash хранится SHA-256-дайджест токена (base64url), а не сам токен.
type RefreshToken struct {
	UserID    uuid.UUID
	TokenHash string
	ExpiresAt time.Time
	UpdatedAt time.Time
}
