package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/AntonZelenin/mess-auth/internal/config"
	"github.com/AntonZelenin/mess-auth/internal/models"
	"github.com/AntonZelenin/mess-auth/internal/storage"
	"github.com/AntonZelenin/mess-auth/mocks"

	"github.com/golang/mock/gomock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func testCfg() config.AuthConfig {
	return config.AuthConfig{
		JWTSecret:       "unit-secret",
		KeyID:           "v1",
		AccessTokenTTL:  5 * time.Minute,
		RefreshTokenTTL: 24 * time.Hour,
		Issuer:          "mess-auth",
	}
}

func newSvc(t *testing.T) (*Service, *mocks.MockStorage, *gomock.Controller) {
	t.Helper()
	ctrl := gomock.NewController(t)
	st := mocks.NewMockStorage(ctrl)
	svc := New(st, testCfg())
	return svc, st, ctrl
}

func mustHashPW(t *testing.T, pw string) string {
	t.Helper()
	h, err := hashPassword(pw)
	require.NoError(t, err)
	return h
}

func TestRegisterUser_OK(t *testing.T) {
	t.Parallel()

	svc, st, ctrl := newSvc(t)
	defer ctrl.Finish()

	ctx := context.Background()

	var saved *models.User
	st.EXPECT().UserByUsername(gomock.Any(), "alice").Return(nil, storage.ErrNotFound)
	st.EXPECT().SaveUser(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, u *models.User) error {
			saved = u
			return nil
		})

	uid, err := svc.RegisterUser(ctx, "alice", "correct horse")
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, uid)

	require.Equal(t, uid, saved.ID)
	require.Equal(t, "alice", saved.Username)
	// В БД уходит bcrypt-хэш, не сам пароль.
	require.NotEqual(t, "correct horse", saved.PasswordHash)
	require.True(t, checkPassword(saved.PasswordHash, "correct horse"))
}

func TestRegisterUser_EmptyUsernameOrPassword(t *testing.T) {
	t.Parallel()

	svc, _, ctrl := newSvc(t)
	defer ctrl.Finish()

	_, err := svc.RegisterUser(context.Background(), "", "pw")
	require.Error(t, err)
	require.ErrorIs(t, err, ErrEmptyUsername)

	_, err = svc.RegisterUser(context.Background(), "alice", "")
	require.Error(t, err)
	require.ErrorIs(t, err, ErrEmptyPassword)
}

func TestRegisterUser_UsernameTaken_OnLookup(t *testing.T) {
	t.Parallel()

	svc, st, ctrl := newSvc(t)
	defer ctrl.Finish()

	// UserByUsername вернул пользователя (err == nil) — имя занято.
	st.EXPECT().UserByUsername(gomock.Any(), "alice").
		Return(&models.User{ID: uuid.New(), Username: "alice"}, nil)

	_, err := svc.RegisterUser(context.Background(), "alice", "pw")
	require.Error(t, err)
	require.ErrorIs(t, err, ErrUsernameTaken)
}

func TestRegisterUser_SaveUserAlreadyExists_MapsToUsernameTaken(t *testing.T) {
	t.Parallel()

	svc, st, ctrl := newSvc(t)
	defer ctrl.Finish()

	// Гонка двух одновременных регистраций: lookup промахнулся,
	// но insert упёрся в уникальный индекс.
	st.EXPECT().UserByUsername(gomock.Any(), "alice").Return(nil, storage.ErrNotFound)
	st.EXPECT().SaveUser(gomock.Any(), gomock.Any()).Return(storage.ErrAlreadyExists)

	_, err := svc.RegisterUser(context.Background(), "alice", "pw")
	require.Error(t, err)
	require.ErrorIs(t, err, ErrUsernameTaken)
}

func TestRegisterUser_StorageErrors_Propagated(t *testing.T) {
	t.Parallel()

	svc, st, ctrl := newSvc(t)
	defer ctrl.Finish()

	st.EXPECT().UserByUsername(gomock.Any(), "alice").Return(nil, errors.New("db down"))
	_, err := svc.RegisterUser(context.Background(), "alice", "pw")
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrUsernameTaken)

	st.EXPECT().UserByUsername(gomock.Any(), "alice").Return(nil, storage.ErrNotFound)
	st.EXPECT().SaveUser(gomock.Any(), gomock.Any()).Return(errors.New("insert failed"))
	_, err = svc.RegisterUser(context.Background(), "alice", "pw")
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrUsernameTaken)
}

func TestLoginUser_OK(t *testing.T) {
	t.Parallel()

	svc, st, ctrl := newSvc(t)
	defer ctrl.Finish()

	ctx := context.Background()
	user := &models.User{
		ID:           uuid.New(),
		Username:     "alice",
		PasswordHash: mustHashPW(t, "correct horse"),
	}

	var record *models.RefreshToken
	st.EXPECT().UserByUsername(gomock.Any(), "alice").Return(user, nil)
	st.EXPECT().UpsertRefreshToken(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, rt *models.RefreshToken) error {
			record = rt
			return nil
		})

	tp, uid, err := svc.LoginUser(ctx, "alice", "correct horse")
	require.NoError(t, err)
	require.Equal(t, user.ID, uid)
	require.NotEmpty(t, tp.AccessToken)
	require.NotEmpty(t, tp.RefreshToken)
	require.WithinDuration(t, time.Now().Add(svc.cfg.AccessTokenTTL), tp.AccessExpiresAt, 2*time.Second)

	// В БД уходит дайджест refresh-токена, не сам токен.
	require.Equal(t, user.ID, record.UserID)
	require.Equal(t, refreshTokenHash(tp.RefreshToken), record.TokenHash)
	require.NotEqual(t, tp.RefreshToken, record.TokenHash)
	require.WithinDuration(t, time.Now().Add(svc.cfg.RefreshTokenTTL), record.ExpiresAt, 2*time.Second)
}

func TestLoginUser_EmptyInput(t *testing.T) {
	t.Parallel()

	svc, _, ctrl := newSvc(t)
	defer ctrl.Finish()

	_, _, err := svc.LoginUser(context.Background(), "", "pw")
	require.Error(t, err)
	require.ErrorIs(t, err, ErrInvalidCredentials)

	_, _, err = svc.LoginUser(context.Background(), "alice", "")
	require.Error(t, err)
	require.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLoginUser_UnknownUser_OrWrongPassword_SameError(t *testing.T) {
	t.Parallel()

	svc, st, ctrl := newSvc(t)
	defer ctrl.Finish()

	// Неизвестное имя.
	st.EXPECT().UserByUsername(gomock.Any(), "ghost").Return(nil, storage.ErrNotFound)
	_, _, errUnknown := svc.LoginUser(context.Background(), "ghost", "pw")
	require.Error(t, errUnknown)
	require.ErrorIs(t, errUnknown, ErrInvalidCredentials)

	// Неверный пароль — та же самая ошибка, различие не раскрывается.
	user := &models.User{ID: uuid.New(), Username: "alice", PasswordHash: mustHashPW(t, "correct horse")}
	st.EXPECT().UserByUsername(gomock.Any(), "alice").Return(user, nil)
	_, _, errWrongPW := svc.LoginUser(context.Background(), "alice", "wrong")
	require.Error(t, errWrongPW)
	require.ErrorIs(t, errWrongPW, ErrInvalidCredentials)
}

func TestLoginUser_StorageErrorOnLookup_Propagated(t *testing.T) {
	t.Parallel()

	svc, st, ctrl := newSvc(t)
	defer ctrl.Finish()

	st.EXPECT().UserByUsername(gomock.Any(), "alice").Return(nil, errors.New("db problem"))

	_, _, err := svc.LoginUser(context.Background(), "alice", "pw")
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrInvalidCredentials)
}

// loginAlice логинит пользователя через мок и возвращает пару токенов
// вместе с записью, ушедшей в хранилище.
func loginAlice(t *testing.T, svc *Service, st *mocks.MockStorage, user *models.User) (*models.TokenPair, *models.RefreshToken) {
	t.Helper()

	var record *models.RefreshToken
	st.EXPECT().UserByUsername(gomock.Any(), user.Username).Return(user, nil)
	st.EXPECT().UpsertRefreshToken(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, rt *models.RefreshToken) error {
			record = rt
			return nil
		})

	tp, _, err := svc.LoginUser(context.Background(), user.Username, "correct horse")
	require.NoError(t, err)
	return tp, record
}

func TestRefreshToken_OK_WithRotation(t *testing.T) {
	t.Parallel()

	svc, st, ctrl := newSvc(t)
	defer ctrl.Finish()

	user := &models.User{ID: uuid.New(), Username: "alice", PasswordHash: mustHashPW(t, "correct horse")}
	tp, record := loginAlice(t, svc, st, user)

	var rotated *models.RefreshToken
	st.EXPECT().UserByID(gomock.Any(), user.ID).Return(user, nil)
	st.EXPECT().RefreshTokenByUserID(gomock.Any(), user.ID).Return(record, nil)
	st.EXPECT().UpsertRefreshToken(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, rt *models.RefreshToken) error {
			rotated = rt
			return nil
		})

	tp2, uid, err := svc.RefreshToken(context.Background(), tp.RefreshToken)
	require.NoError(t, err)
	require.Equal(t, user.ID, uid)
	require.NotEmpty(t, tp2.AccessToken)
	require.NotEmpty(t, tp2.RefreshToken)

	// Ротация: запись перезаписана дайджестом нового токена.
	require.NotEqual(t, tp.RefreshToken, tp2.RefreshToken)
	require.Equal(t, refreshTokenHash(tp2.RefreshToken), rotated.TokenHash)
	require.NotEqual(t, record.TokenHash, rotated.TokenHash)
}

func TestRefreshToken_Superseded_Rejected(t *testing.T) {
	t.Parallel()

	svc, st, ctrl := newSvc(t)
	defer ctrl.Finish()

	user := &models.User{ID: uuid.New(), Username: "alice", PasswordHash: mustHashPW(t, "correct horse")}

	// Первый логин выдал токен, второй — вытеснил его.
	tpOld, _ := loginAlice(t, svc, st, user)
	_, recordNew := loginAlice(t, svc, st, user)

	st.EXPECT().UserByID(gomock.Any(), user.ID).Return(user, nil)
	st.EXPECT().RefreshTokenByUserID(gomock.Any(), user.ID).Return(recordNew, nil)

	// Старый токен криптографически валиден, но больше не текущий.
	_, _, err := svc.RefreshToken(context.Background(), tpOld.RefreshToken)
	require.Error(t, err)
	require.ErrorIs(t, err, ErrInvalidToken)

	// И отклоняется навсегда, не только один раз.
	st.EXPECT().UserByID(gomock.Any(), user.ID).Return(user, nil)
	st.EXPECT().RefreshTokenByUserID(gomock.Any(), user.ID).Return(recordNew, nil)
	_, _, err = svc.RefreshToken(context.Background(), tpOld.RefreshToken)
	require.Error(t, err)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestRefreshToken_AccessTokenNotAccepted(t *testing.T) {
	t.Parallel()

	svc, st, ctrl := newSvc(t)
	defer ctrl.Finish()

	user := &models.User{ID: uuid.New(), Username: "alice", PasswordHash: mustHashPW(t, "correct horse")}
	tp, _ := loginAlice(t, svc, st, user)

	// access-токен подписан тем же ключом, но token_type не тот.
	_, _, err := svc.RefreshToken(context.Background(), tp.AccessToken)
	require.Error(t, err)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestRefreshToken_GarbageToken(t *testing.T) {
	t.Parallel()

	svc, _, ctrl := newSvc(t)
	defer ctrl.Finish()

	_, _, err := svc.RefreshToken(context.Background(), "not-a-jwt")
	require.Error(t, err)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestRefreshToken_Expired(t *testing.T) {
	t.Parallel()

	svc, st, ctrl := newSvc(t)
	defer ctrl.Finish()

	user := &models.User{ID: uuid.New(), Username: "alice", PasswordHash: mustHashPW(t, "correct horse")}
	tp, _ := loginAlice(t, svc, st, user)

	// Сдвигаем часы за срок действия refresh-токена.
	svc.SetClock(func() time.Time {
		return time.Now().UTC().Add(svc.cfg.RefreshTokenTTL + time.Minute)
	})

	_, _, err := svc.RefreshToken(context.Background(), tp.RefreshToken)
	require.Error(t, err)
	require.ErrorIs(t, err, ErrTokenExpired)
}

func TestRefreshToken_UserDeleted(t *testing.T) {
	t.Parallel()

	svc, st, ctrl := newSvc(t)
	defer ctrl.Finish()

	user := &models.User{ID: uuid.New(), Username: "alice", PasswordHash: mustHashPW(t, "correct horse")}
	tp, _ := loginAlice(t, svc, st, user)

	st.EXPECT().UserByID(gomock.Any(), user.ID).Return(nil, storage.ErrNotFound)

	_, _, err := svc.RefreshToken(context.Background(), tp.RefreshToken)
	require.Error(t, err)
	require.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestRefreshToken_NoStoredToken(t *testing.T) {
	t.Parallel()

	svc, st, ctrl := newSvc(t)
	defer ctrl.Finish()

	user := &models.User{ID: uuid.New(), Username: "alice", PasswordHash: mustHashPW(t, "correct horse")}
	tp, _ := loginAlice(t, svc, st, user)

	st.EXPECT().UserByID(gomock.Any(), user.ID).Return(user, nil)
	st.EXPECT().RefreshTokenByUserID(gomock.Any(), user.ID).Return(nil, storage.ErrNotFound)

	_, _, err := svc.RefreshToken(context.Background(), tp.RefreshToken)
	require.Error(t, err)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestRefreshToken_StorageErrors_Propagated(t *testing.T) {
	t.Parallel()

	svc, st, ctrl := newSvc(t)
	defer ctrl.Finish()

	user := &models.User{ID: uuid.New(), Username: "alice", PasswordHash: mustHashPW(t, "correct horse")}
	tp, record := loginAlice(t, svc, st, user)

	// UserByID падает.
	st.EXPECT().UserByID(gomock.Any(), user.ID).Return(nil, errors.New("db user fail"))
	_, _, err := svc.RefreshToken(context.Background(), tp.RefreshToken)
	require.Error(t, err)

	// Чтение записи refresh-токена падает.
	st.EXPECT().UserByID(gomock.Any(), user.ID).Return(user, nil)
	st.EXPECT().RefreshTokenByUserID(gomock.Any(), user.ID).Return(nil, errors.New("db get fail"))
	_, _, err = svc.RefreshToken(context.Background(), tp.RefreshToken)
	require.Error(t, err)

	// Перезапись при ротации падает.
	st.EXPECT().UserByID(gomock.Any(), user.ID).Return(user, nil)
	st.EXPECT().RefreshTokenByUserID(gomock.Any(), user.ID).Return(record, nil)
	st.EXPECT().UpsertRefreshToken(gomock.Any(), gomock.Any()).Return(errors.New("db upsert fail"))
	_, _, err = svc.RefreshToken(context.Background(), tp.RefreshToken)
	require.Error(t, err)
}

func TestAuthorizeToken_OK(t *testing.T) {
	t.Parallel()

	svc, st, ctrl := newSvc(t)
	defer ctrl.Finish()

	user := &models.User{ID: uuid.New(), Username: "alice", PasswordHash: mustHashPW(t, "correct horse")}
	tp, _ := loginAlice(t, svc, st, user)

	st.EXPECT().UserByID(gomock.Any(), user.ID).Return(user, nil)

	claims, err := svc.AuthorizeToken(context.Background(), tp.AccessToken)
	require.NoError(t, err)
	require.Equal(t, user.ID, claims.UserID)
	require.Equal(t, "alice", claims.Username)
	require.Equal(t, models.TokenTypeAccess, claims.TokenType)
	require.WithinDuration(t, time.Now().Add(svc.cfg.AccessTokenTTL), claims.ExpiresAt, 2*time.Second)
}

func TestAuthorizeToken_RefreshTokenNotAccepted(t *testing.T) {
	t.Parallel()

	svc, st, ctrl := newSvc(t)
	defer ctrl.Finish()

	user := &models.User{ID: uuid.New(), Username: "alice", PasswordHash: mustHashPW(t, "correct horse")}
	tp, _ := loginAlice(t, svc, st, user)

	// refresh-токен не проходит авторизацию, хотя подпись валидна.
	_, err := svc.AuthorizeToken(context.Background(), tp.RefreshToken)
	require.Error(t, err)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestAuthorizeToken_UserDeleted(t *testing.T) {
	t.Parallel()

	svc, st, ctrl := newSvc(t)
	defer ctrl.Finish()

	user := &models.User{ID: uuid.New(), Username: "alice", PasswordHash: mustHashPW(t, "correct horse")}
	tp, _ := loginAlice(t, svc, st, user)

	st.EXPECT().UserByID(gomock.Any(), user.ID).Return(nil, storage.ErrNotFound)

	_, err := svc.AuthorizeToken(context.Background(), tp.AccessToken)
	require.Error(t, err)
	require.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestAuthorizeToken_GarbageAndForeignKey(t *testing.T) {
	t.Parallel()

	svc, st, ctrl := newSvc(t)
	defer ctrl.Finish()

	_, err := svc.AuthorizeToken(context.Background(), "not-a-jwt")
	require.Error(t, err)
	require.ErrorIs(t, err, ErrInvalidToken)

	// Токен, подписанный другим ключом.
	user := &models.User{ID: uuid.New(), Username: "alice", PasswordHash: mustHashPW(t, "correct horse")}
	other := New(st, config.AuthConfig{
		JWTSecret:       "another-secret",
		AccessTokenTTL:  5 * time.Minute,
		RefreshTokenTTL: 24 * time.Hour,
		Issuer:          "mess-auth",
	})
	foreign, err := other.generateAccessToken(user, time.Now().UTC())
	require.NoError(t, err)

	_, err = svc.AuthorizeToken(context.Background(), foreign)
	require.Error(t, err)
	require.ErrorIs(t, err, ErrInvalidToken)
}

// Полный жизненный цикл: регистрация → логин → обновление пары →
// старый refresh отклонён → access из новой пары авторизуется.
func TestFullFlow_RegisterLoginRefreshAuthorize(t *testing.T) {
	t.Parallel()

	svc, st, ctrl := newSvc(t)
	defer ctrl.Finish()

	ctx := context.Background()

	// Мок с состоянием: сохраняем пользователя и текущий refresh-дайджест.
	var (
		savedUser     *models.User
		currentRecord *models.RefreshToken
	)

	st.EXPECT().UserByUsername(gomock.Any(), "alice").
		DoAndReturn(func(_ context.Context, _ string) (*models.User, error) {
			if savedUser == nil {
				return nil, storage.ErrNotFound
			}
			return savedUser, nil
		}).AnyTimes()
	st.EXPECT().SaveUser(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, u *models.User) error {
			savedUser = u
			return nil
		})
	st.EXPECT().UserByID(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, id uuid.UUID) (*models.User, error) {
			if savedUser == nil || savedUser.ID != id {
				return nil, storage.ErrNotFound
			}
			return savedUser, nil
		}).AnyTimes()
	st.EXPECT().UpsertRefreshToken(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, rt *models.RefreshToken) error {
			currentRecord = rt
			return nil
		}).AnyTimes()
	st.EXPECT().RefreshTokenByUserID(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, id uuid.UUID) (*models.RefreshToken, error) {
			if currentRecord == nil || currentRecord.UserID != id {
				return nil, storage.ErrNotFound
			}
			return currentRecord, nil
		}).AnyTimes()

	uid, err := svc.RegisterUser(ctx, "alice", "correct horse")
	require.NoError(t, err)

	tp1, loginUID, err := svc.LoginUser(ctx, "alice", "correct horse")
	require.NoError(t, err)
	require.Equal(t, uid, loginUID)

	tp2, refreshUID, err := svc.RefreshToken(ctx, tp1.RefreshToken)
	require.NoError(t, err)
	require.Equal(t, uid, refreshUID)

	// Старый refresh вытеснен ротацией.
	_, _, err = svc.RefreshToken(ctx, tp1.RefreshToken)
	require.Error(t, err)
	require.ErrorIs(t, err, ErrInvalidToken)

	// Access из новой пары работает.
	claims, err := svc.AuthorizeToken(ctx, tp2.AccessToken)
	require.NoError(t, err)
	require.Equal(t, uid, claims.UserID)
	require.Equal(t, "alice", claims.Username)
}
