// service содержит бизнес-логику auth-сервиса:
// регистрацию/аутентификацию пользователей, выпуск/проверку токенов
// и работу с хранилищем через интерфейсы из пакета storage.
//
// Основные аспекты:
//   - Пакет не хранит состояние запроса внутри Service; экземпляр Service
//     безопасен для конкурентного использования из разных горутин при условии,
//     что переданное хранилище (storage.Storage) потокобезопасно.
//   - Ошибки возвращаются и далее маппятся транспортом на HTTP-статусы
//     (см. комментарии к переменным ошибок ниже). Наружу все проблемы с
//     токенами и учётными данными схлопываются в одну категорию 401,
//     детальная причина остаётся только в логах.
package service

import (
	"errors"
	"time"

	"github.com/AntonZelenin/mess-auth/internal/cache"
	"github.com/AntonZelenin/mess-auth/internal/config"
	"github.com/AntonZelenin/mess-auth/internal/storage"
)

var (
	// ErrInvalidCredentials — пара логин/пароль неверна или пользователь не найден.
	// Транспорт: HTTP 401. Одна и та же ошибка для "нет такого пользователя"
	// и "неверный пароль" — различие не раскрывается.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrInvalidToken — токен некорректен по формату/подписи, без subject,
	// не того вида или не совпадает с сохранённым. Только для логов;
	// транспорт отдаёт ту же категорию, что и ErrInvalidCredentials (HTTP 401).
	ErrInvalidToken = errors.New("invalid token")

	// ErrTokenExpired — срок действия токена истёк. Только для логов;
	// транспорт: HTTP 401, та же категория.
	ErrTokenExpired = errors.New("token expired")

	// ErrUsernameTaken — имя пользователя уже занято.
	// Транспорт: HTTP 409.
	ErrUsernameTaken = errors.New("username already taken")

	// ErrEmptyUsername — имя пользователя пустое.
	// Транспорт: HTTP 400.
	ErrEmptyUsername = errors.New("username is empty")

	// ErrEmptyPassword — пароль пустой.
	// Транспорт: HTTP 400.
	ErrEmptyPassword = errors.New("password is empty")
)

// Service описывает бизнес-логику auth-сервиса.
type Service struct {
	storage storage.Storage
	cfg     config.AuthConfig
	rcache  cache.RefreshCache // может быть nil, если кэш не сконфигурирован
	now     func() time.Time
}

// New создаёт новый экземпляр Service.
func New(storage storage.Storage, cfg config.AuthConfig) *Service {
	return &Service{
		storage: storage,
		cfg:     cfg,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// SetRefreshCache устанавливает кэш refresh-токенов (опционально).
func (s *Service) SetRefreshCache(c cache.RefreshCache) {
	s.rcache = c
}

// SetClock подменяет источник времени (для детерминированных тестов истечения).
func (s *Service) SetClock(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}
