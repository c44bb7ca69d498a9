package http

import (
	"encoding/json"
	"net/http"

	"github.com/AntonZelenin/mess-auth/internal/apierrors"
	"github.com/AntonZelenin/mess-auth/internal/service"
)

// Handlers агрегирует зависимости эндпоинтов (доменный сервис).
type Handlers struct {
	service *service.Service
}

func NewHandlers(svc *service.Service) *Handlers {
	return &Handlers{service: svc}
}

type registerRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type registerResponse struct {
	UserID string `json:"user_id"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type tokenPairResponse struct {
	UserID          string `json:"user_id"`
	AccessToken     string `json:"access_token"`
	RefreshToken    string `json:"refresh_token"`
	TokenType       string `json:"token_type"`
	AccessExpiresAt int64  `json:"access_expires_at"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type authorizeRequest struct {
	AccessToken string `json:"access_token"`
}

type claimsResponse struct {
	UserID    string `json:"user_id"`
	Username  string `json:"username,omitempty"`
	ExpiresAt int64  `json:"expires_at"`
}

// RegisterUser регистрирует пользователя и возвращает его ID.
// Токены при регистрации не выдаются — клиент делает отдельный login.
func (h *Handlers) RegisterUser(w http.ResponseWriter, r *http.Request) {
	var in registerRequest
	if err := decodeStrict(r, &in); err != nil {
		apierrors.WriteError(w, r, apierrors.ErrBadRequest)
		return
	}

	uid, err := h.service.RegisterUser(r.Context(), in.Username, in.Password)
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, registerResponse{UserID: uid.String()})
}

// LoginUser аутентифицирует пользователя и возвращает пару токенов.
func (h *Handlers) LoginUser(w http.ResponseWriter, r *http.Request) {
	var in loginRequest
	if err := decodeStrict(r, &in); err != nil {
		apierrors.WriteError(w, r, apierrors.ErrBadRequest)
		return
	}

	pair, uid, err := h.service.LoginUser(r.Context(), in.Username, in.Password)
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, tokenPairResponse{
		UserID:          uid.String(),
		AccessToken:     pair.AccessToken,
		RefreshToken:    pair.RefreshToken,
		TokenType:       "bearer",
		AccessExpiresAt: pair.AccessExpiresAt.Unix(),
	})
}

// RefreshToken выпускает новую пару токенов по валидному refresh-токену.
func (h *Handlers) RefreshToken(w http.ResponseWriter, r *http.Request) {
	var in refreshRequest
	if err := decodeStrict(r, &in); err != nil {
		apierrors.WriteError(w, r, apierrors.ErrBadRequest)
		return
	}

	pair, uid, err := h.service.RefreshToken(r.Context(), in.RefreshToken)
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, tokenPairResponse{
		UserID:          uid.String(),
		AccessToken:     pair.AccessToken,
		RefreshToken:    pair.RefreshToken,
		TokenType:       "bearer",
		AccessExpiresAt: pair.AccessExpiresAt.Unix(),
	})
}

// AuthorizeToken проверяет access-токен и возвращает его клеймы.
func (h *Handlers) AuthorizeToken(w http.ResponseWriter, r *http.Request) {
	var in authorizeRequest
	if err := decodeStrict(r, &in); err != nil {
		apierrors.WriteError(w, r, apierrors.ErrBadRequest)
		return
	}

	claims, err := h.service.AuthorizeToken(r.Context(), in.AccessToken)
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, claimsResponse{
		UserID:    claims.UserID.String(),
		Username:  claims.Username,
		ExpiresAt: claims.ExpiresAt.Unix(),
	})
}

// writeJSON — единый ответ JSON с нужным Content-Type.
// Ошибки выводим через apierrors.WriteError.
func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

// decodeStrict — строгий JSON-декодер: запрещаем неизвестные поля.
func decodeStrict(r *http.Request, value any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(value)
}
