package service

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/AntonZelenin/mess-auth/internal/cache"
	"github.com/AntonZelenin/mess-auth/internal/models"
	"github.com/AntonZelenin/mess-auth/internal/pkg/log"
	"github.com/AntonZelenin/mess-auth/internal/storage"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// authClaims — клеймы выпускаемых токенов.
// TokenType разделяет access и refresh: refresh-токен не принимается
// там, где ожидается access, и наоборот.
type authClaims struct {
	Username  string `json:"username,omitempty"`
	TokenType string `json:"token_type"`
	jwt.RegisteredClaims
}

// generateAccessToken генерирует access-токен.
func (s *Service) generateAccessToken(user *models.User, now time.Time) (string, error) {
	const op = "service.token.generateAccessToken"

	claims := authClaims{
		Username:  user.Username,
		TokenType: models.TokenTypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.AccessTokenTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    s.cfg.Issuer,
			Subject:   user.ID.String(),
		},
	}

	signed, err := s.signToken(claims)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	return signed, nil
}

// generateRefreshToken генерирует refresh-токен.
// Клеймы минимальны: только subject и служебные поля, без username.
// jti делает токен уникальным: без него две пары, выпущенные в одну
// секунду, совпали бы побайтово и ротация ничего бы не вытесняла.
func (s *Service) generateRefreshToken(userID uuid.UUID, now time.Time) (string, error) {
	const op = "service.token.generateRefreshToken"

	claims := authClaims{
		TokenType: models.TokenTypeRefresh,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.RefreshTokenTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    s.cfg.Issuer,
			Subject:   userID.String(),
			ID:        uuid.NewString(),
		},
	}

	signed, err := s.signToken(claims)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	return signed, nil
}

// signToken подписывает клеймы HS256 и проставляет зарезервированный
// заголовок kid (ключ подписи пока один, поле нужно для будущей ротации).
func (s *Service) signToken(claims authClaims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	if s.cfg.KeyID != "" {
		token.Header["kid"] = s.cfg.KeyID
	}

	return token.SignedString([]byte(s.cfg.JWTSecret))
}

// parseToken валидирует подпись и срок действия токена и проверяет его вид.
//
// Граница истечения включительная: exp == now считается просроченным
// (leeway не используется). Клеймы не читаются до успешной проверки подписи.
func (s *Service) parseToken(tokenStr, wantType string) (*authClaims, error) {
	const op = "service.token.parseToken"

	token, err := jwt.ParseWithClaims(tokenStr, &authClaims{},
		func(t *jwt.Token) (interface{}, error) {
			if t.Method != jwt.SigningMethodHS256 {
				return nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
			}

			return []byte(s.cfg.JWTSecret), nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.cfg.Issuer),
		jwt.WithTimeFunc(s.now),
	)

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%s: %w", op, ErrTokenExpired)
		}

		return nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}

	claims, ok := token.Claims.(*authClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}

	if claims.TokenType != wantType {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}

	return claims, nil
}

// subjectID извлекает идентификатор пользователя из клейма sub.
func subjectID(claims *authClaims) (uuid.UUID, error) {
	const op = "service.token.subjectID"

	if claims.Subject == "" {
		return uuid.Nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}

	uid, err := uuid.Parse(claims.Subject)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}

	return uid, nil
}

// refreshTokenHash возвращает SHA-256-дайджест refresh-токена (base64url).
// В БД и кэше хранится только дайджест; равенство дайджестов эквивалентно
// побайтовому равенству самих токенов.
func refreshTokenHash(token string) string {
	sum := sha256.Sum256([]byte(token))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// issueTokenPair выпускает новую пару access+refresh токенов и атомарно
// перезаписывает текущую запись refresh-токена пользователя: предыдущий
// refresh-токен с этого момента отклоняется независимо от его срока действия.
func (s *Service) issueTokenPair(ctx context.Context, user *models.User) (*models.TokenPair, error) {
	const op = "service.token.issueTokenPair"

	lg := log.From(ctx)
	now := s.now()

	accessToken, err := s.generateAccessToken(user, now)
	if err != nil {
		lg.Error("access_token_sign_failed",
			slog.String("op", op),
			slog.String("err", err.Error()),
		)
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	refreshToken, err := s.generateRefreshToken(user.ID, now)
	if err != nil {
		lg.Error("refresh_token_sign_failed",
			slog.String("op", op),
			slog.String("err", err.Error()),
		)
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	record := &models.RefreshToken{
		UserID:    user.ID,
		TokenHash: refreshTokenHash(refreshToken),
		ExpiresAt: now.Add(s.cfg.RefreshTokenTTL),
		UpdatedAt: now,
	}

	// Кэш не должен пережить ротацию: сносим запись ДО записи в БД,
	// иначе при сбое Set в кэше остался бы дайджест вытесненного токена
	// и чтение из кэша выглядело бы свежее строки в БД.
	if s.rcache != nil {
		if err := s.rcache.Del(ctx, user.ID); err != nil {
			lg.Error("refresh_cache_del_failed",
				slog.String("op", op),
				slog.String("err", err.Error()),
			)
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	}

	if err := s.storage.UpsertRefreshToken(ctx, record); err != nil {
		lg.Error("upsert_refresh_token_failed",
			slog.String("op", op),
			slog.String("err", err.Error()),
		)
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	// Ошибка Set не ломает выпуск пары, но после неё ключ обязан быть
	// пуст (Set мог записаться частично); если и Del не прошёл —
	// пару не отдаём.
	if s.rcache != nil {
		entry := &cache.RefreshEntry{
			TokenHash: record.TokenHash,
			ExpiresAt: record.ExpiresAt,
		}
		if err := s.rcache.Set(ctx, user.ID, entry, s.cfg.RefreshTokenTTL); err != nil {
			lg.Warn("refresh_cache_set_failed",
				slog.String("op", op),
				slog.String("err", err.Error()),
			)
			if derr := s.rcache.Del(ctx, user.ID); derr != nil {
				lg.Error("refresh_cache_del_failed",
					slog.String("op", op),
					slog.String("err", derr.Error()),
				)
				return nil, fmt.Errorf("%s: %w", op, derr)
			}
		}
	}

	return &models.TokenPair{
		AccessToken:     accessToken,
		RefreshToken:    refreshToken,
		AccessExpiresAt: now.Add(s.cfg.AccessTokenTTL),
	}, nil
}

// currentRefreshHash возвращает дайджест текущего refresh-токена пользователя:
// сначала из кэша (если он сконфигурирован), при промахе или ошибке — из БД.
func (s *Service) currentRefreshHash(ctx context.Context, userID uuid.UUID) (string, error) {
	const op = "service.token.currentRefreshHash"

	lg := log.From(ctx)

	if s.rcache != nil {
		entry, ok, err := s.rcache.Get(ctx, userID)
		if err != nil {
			lg.Warn("refresh_cache_get_failed",
				slog.String("op", op),
				slog.String("err", err.Error()),
			)
		} else if ok {
			return entry.TokenHash, nil
		}
	}

	record, err := s.storage.RefreshTokenByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return "", fmt.Errorf("%s: %w", op, ErrInvalidToken)
		}

		return "", fmt.Errorf("%s: %w", op, err)
	}

	return record.TokenHash, nil
}

// matchRefreshHash сравнивает дайджест предъявленного токена с сохранённым
// без раннего выхода по длине совпавшего префикса.
func matchRefreshHash(presented, stored string) bool {
	return subtle.ConstantTimeCompare([]byte(presented), []byte(stored)) == 1
}
