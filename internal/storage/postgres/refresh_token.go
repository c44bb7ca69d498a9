package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/AntonZelenin/mess-auth/internal/models"
	"github.com/AntonZelenin/mess-auth/internal/storage"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// UpsertRefreshToken создаёт или перезаписывает текущий refresh-токен пользователя.
// Одна атомарная команда: конкурентные login/refresh одного пользователя
// не теряют обновлений, побеждает последняя запись.
func (s *Storage) UpsertRefreshToken(ctx context.Context, token *models.RefreshToken) error {
	const op = "storage.postgres.UpsertRefreshToken"

	query := `
        INSERT INTO refresh_tokens(user_id, token_hash, expires_at, updated_at)
        VALUES ($1, $2, $3, $4)
        ON CONFLICT (user_id) DO UPDATE
        SET token_hash = EXCLUDED.token_hash,
            expires_at = EXCLUDED.expires_at,
            updated_at = EXCLUDED.updated_at
    `

	_, err := s.db.Exec(ctx, query,
		token.UserID,
		token.TokenHash,
		token.ExpiresAt,
		token.UpdatedAt,
	)

	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// RefreshTokenByUserID возвращает текущий refresh-токен пользователя.
func (s *Storage) RefreshTokenByUserID(ctx context.Context, userID uuid.UUID) (*models.RefreshToken, error) {
	const op = "storage.postgres.RefreshTokenByUserID"

	query := `
        SELECT user_id, token_hash, expires_at, updated_at
        FROM refresh_tokens
        WHERE user_id = $1
    `

	var token models.RefreshToken
	err := s.db.QueryRow(ctx, query, userID).Scan(
		&token.UserID,
		&token.TokenHash,
		&token.ExpiresAt,
		&token.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &token, nil
}

// DeleteExpiredTokens удаляет все просроченные токены.
func (s *Storage) DeleteExpiredTokens(ctx context.Context, now time.Time) error {
	const op = "storage.postgres.DeleteExpiredTokens"

	query := `
        DELETE FROM refresh_tokens
        WHERE expires_at <= $1
    `

	_, err := s.db.Exec(ctx, query, now)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}
