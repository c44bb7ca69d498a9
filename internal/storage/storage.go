package storage

import (
	"context"
	"errors"
	"time"

	"github.com/AntonZelenin/mess-auth/internal/models"

	"github.com/google/uuid"
)

var (
	// ErrNotFound — запись не найдена (пользователь/токен).
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists — нарушение уникальности (username).
	ErrAlreadyExists = errors.New("already exists")
)

// UserStorage выполняет операции над пользователями.
type UserStorage interface {
	// SaveUser создает нового пользователя в БД.
	SaveUser(ctx context.Context, user *models.User) error
	// UserByUsername находит пользователя по имени (точное совпадение).
	UserByUsername(ctx context.Context, username string) (*models.User, error)
	// UserByID находит пользователя по ID.
	UserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// RefreshTokenStorage выполняет операции над refresh-токенами.
//
// Контракт "одна активная запись на пользователя": UpsertRefreshToken
// атомарно создаёт или перезаписывает строку по user_id, так что
// чтение-затем-запись одной строки не теряет обновлений.
type RefreshTokenStorage interface {
	// UpsertRefreshToken создаёт или перезаписывает текущий refresh-токен пользователя.
	UpsertRefreshToken(ctx context.Context, token *models.RefreshToken) error
	// RefreshTokenByUserID возвращает текущий refresh-токен пользователя.
	RefreshTokenByUserID(ctx context.Context, userID uuid.UUID) (*models.RefreshToken, error)
	// DeleteExpiredTokens удаляет все просроченные токены.
	DeleteExpiredTokens(ctx context.Context, now time.Time) error
}

// Storage задает контракт работы с БД.
type Storage interface {
	UserStorage
	RefreshTokenStorage
	Close()
}
