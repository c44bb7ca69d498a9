package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/AntonZelenin/mess-auth/internal/models"
	"github.com/AntonZelenin/mess-auth/internal/pkg/log"
	"github.com/AntonZelenin/mess-auth/internal/pkg/redact"
	"github.com/AntonZelenin/mess-auth/internal/storage"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// RegisterUser регистрирует нового пользователя и возвращает его ID.
// Токены при регистрации не выпускаются. Имя сравнивается точно,
// с учётом регистра; занятое имя — ErrUsernameTaken.
func (s *Service) RegisterUser(ctx context.Context, username, password string) (uuid.UUID, error) {
	const op = "service.auth.RegisterUser"

	if username == "" {
		return uuid.Nil, fmt.Errorf("%s: %w", op, ErrEmptyUsername)
	}

	if password == "" {
		return uuid.Nil, fmt.Errorf("%s: %w", op, ErrEmptyPassword)
	}

	_, err := s.storage.UserByUsername(ctx, username)
	if err == nil {
		return uuid.Nil, fmt.Errorf("%s: %w", op, ErrUsernameTaken)
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return uuid.Nil, fmt.Errorf("%s: %w", op, err)
	}

	hashedPassword, err := hashPassword(password)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%s: %w", op, err)
	}

	now := s.now()
	user := &models.User{
		ID:           uuid.New(),
		Username:     username,
		PasswordHash: hashedPassword,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.storage.SaveUser(ctx, user); err != nil {
		if errors.Is(err, storage.ErrAlreadyExists) {
			return uuid.Nil, fmt.Errorf("%s: %w", op, ErrUsernameTaken)
		}

		return uuid.Nil, fmt.Errorf("%s: %w", op, err)
	}

	return user.ID, nil
}

// LoginUser выполняет вход по имени и паролю и выпускает пару токенов.
// Для неизвестного имени и неверного пароля возвращается одна и та же
// ошибка, чтобы не раскрывать, что именно не совпало.
func (s *Service) LoginUser(ctx context.Context, username, password string) (*models.TokenPair, uuid.UUID, error) {
	const op = "service.auth.LoginUser"

	lg := log.From(ctx)

	if username == "" || password == "" {
		return nil, uuid.Nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
	}

	user, err := s.storage.UserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			lg.Info("login_unknown_username",
				slog.String("op", op),
				slog.String("username", redact.Username(username)),
			)
			return nil, uuid.Nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
		}

		return nil, uuid.Nil, fmt.Errorf("%s: %w", op, err)
	}

	if !checkPassword(user.PasswordHash, password) {
		lg.Info("login_wrong_password",
			slog.String("op", op),
			slog.String("user_id", user.ID.String()),
		)
		return nil, uuid.Nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
	}

	pair, err := s.issueTokenPair(ctx, user)
	if err != nil {
		return nil, uuid.Nil, fmt.Errorf("%s: %w", op, err)
	}

	return pair, user.ID, nil
}

// RefreshToken обновляет пару токенов по refresh-токену.
//
// Предъявленный токен обязан и пройти криптографическую проверку, и совпасть
// с текущим сохранённым токеном пользователя: ранее выпущенный refresh-токен,
// вытесненный более поздним login/refresh, отклоняется навсегда, даже если
// его подпись и срок действия ещё валидны.
func (s *Service) RefreshToken(ctx context.Context, refreshToken string) (*models.TokenPair, uuid.UUID, error) {
	const op = "service.auth.RefreshToken"

	lg := log.From(ctx)

	claims, err := s.parseToken(refreshToken, models.TokenTypeRefresh)
	if err != nil {
		lg.Info("refresh_token_rejected",
			slog.String("op", op),
			slog.String("err", err.Error()),
		)
		return nil, uuid.Nil, fmt.Errorf("%s: %w", op, err)
	}

	userID, err := subjectID(claims)
	if err != nil {
		lg.Info("refresh_subject_missing", slog.String("op", op))
		return nil, uuid.Nil, fmt.Errorf("%s: %w", op, err)
	}

	user, err := s.storage.UserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			lg.Info("refresh_user_not_found",
				slog.String("op", op),
				slog.String("user_id", userID.String()),
			)
			return nil, uuid.Nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
		}

		return nil, uuid.Nil, fmt.Errorf("%s: %w", op, err)
	}

	stored, err := s.currentRefreshHash(ctx, userID)
	if err != nil {
		return nil, uuid.Nil, fmt.Errorf("%s: %w", op, err)
	}

	if !matchRefreshHash(refreshTokenHash(refreshToken), stored) {
		lg.Warn("refresh_superseded",
			slog.String("op", op),
			slog.String("user_id", userID.String()),
		)
		return nil, uuid.Nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}

	pair, err := s.issueTokenPair(ctx, user)
	if err != nil {
		return nil, uuid.Nil, fmt.Errorf("%s: %w", op, err)
	}

	return pair, user.ID, nil
}

// AuthorizeToken проверяет access-токен и возвращает его клеймы.
// Refresh-токен здесь не принимается (token_type != access), а клеймы
// токена удалённого пользователя бесполезны: существование пользователя
// проверяется по БД.
func (s *Service) AuthorizeToken(ctx context.Context, accessToken string) (*models.Claims, error) {
	const op = "service.auth.AuthorizeToken"

	lg := log.From(ctx)

	claims, err := s.parseToken(accessToken, models.TokenTypeAccess)
	if err != nil {
		lg.Info("access_token_rejected",
			slog.String("op", op),
			slog.String("err", err.Error()),
		)
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	userID, err := subjectID(claims)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if _, err := s.storage.UserByID(ctx, userID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			lg.Info("authorize_user_not_found",
				slog.String("op", op),
				slog.String("user_id", userID.String()),
			)
			return nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	var expiresAt time.Time
	if claims.ExpiresAt != nil {
		expiresAt = claims.ExpiresAt.Time.UTC()
	}

	return &models.Claims{
		UserID:    userID,
		Username:  claims.Username,
		TokenType: claims.TokenType,
		ExpiresAt: expiresAt,
	}, nil
}

// hashPassword хэширует пароль с помощью bcrypt.
func hashPassword(password string) (string, error) {
	const op = "service.auth.hashPassword"

	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	return string(bytes), nil
}

// checkPassword сравнивает пароль с хэшем. Любая ошибка (включая битый хэш
// из БД) трактуется как несовпадение, без паники на чужом вводе.
func checkPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
