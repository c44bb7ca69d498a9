package models

import (
	"time"

	"github.com/google/uuid"
)

// User — модель пользователя в системе.
//
// Username уникален (точное, регистрозависимое совпадение) и не меняется
// после создания; PasswordHash хранит только bcrypt-хэш, никогда пароль.
type User struct {
	ID           uuid.UUID
	Username     string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
