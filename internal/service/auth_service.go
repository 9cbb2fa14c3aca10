package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/google/uuid"

	"github.com/mis-sentinel/backend/internal/logger"
	"github.com/mis-sentinel/backend/internal/models"
	"github.com/mis-sentinel/backend/internal/pkg/apperror"
	"github.com/mis-sentinel/backend/internal/repository"
	"github.com/mis-sentinel/backend/internal/validation"
)

// AuthRepository описывает зависимости AuthService от слоя хранилища.
type AuthRepository interface {
	Create(ctx context.Context, user *models.User) error
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	UpdateLastLoginAt(ctx context.Context, userID uuid.UUID) error
	CreateSession(ctx context.Context, session *models.Session) error
	GetSessionByToken(ctx context.Context, refreshToken string) (*models.Session, error)
	DeleteSession(ctx context.Context, refreshToken string) error
}

// AuthService инкапсулирует бизнес-логику регистрации и аутентификации
// пользователей дашборда.
type AuthService struct {
	repo         AuthRepository
	tokenManager *TokenManager
}

// RegisterInput содержит данные пользователя при регистрации.
type RegisterInput struct {
	Email    string
	Password string
	Username string
	Role     string
}

// LoginInput содержит данные для входа.
type LoginInput struct {
	Email    string
	Password string
}

// AuthResult возвращает итог регистрации или авторизации.
type AuthResult struct {
	User      *models.User
	TokenPair *TokenPair
}

// NewAuthService создаёт сервис аутентификации.
func NewAuthService(repo AuthRepository, tokenManager *TokenManager) *AuthService {
	return &AuthService{
		repo:         repo,
		tokenManager: tokenManager,
	}
}

// Register создаёт нового пользователя.
func (s *AuthService) Register(ctx context.Context, in RegisterInput, meta map[string]string) (*AuthResult, error) {
	if err := validation.ValidateEmail(in.Email); err != nil {
		return nil, fmt.Errorf("auth service: %w", err)
	}
	if err := validation.ValidatePassword(in.Password); err != nil {
		return nil, fmt.Errorf("auth service: %w", err)
	}

	if _, err := s.repo.GetByEmail(ctx, strings.ToLower(in.Email)); err == nil {
		return nil, fmt.Errorf("auth service: email уже зарегистрирован")
	} else if !errors.Is(err, repository.ErrUserNotFound) {
		return nil, err
	}

	username := in.Username
	if username == "" {
		username = deriveUsername(in.Email)
	} else if err := validation.ValidateUsername(username); err != nil {
		return nil, fmt.Errorf("auth service: %w", err)
	}

	role := in.Role
	if role == "" {
		role = "operator"
	}

	passHash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("auth service: не удалось захешировать пароль: %w", err)
	}

	user := &models.User{
		Email:        strings.ToLower(in.Email),
		Username:     username,
		PasswordHash: string(passHash),
		Role:         role,
	}

	if err := s.repo.Create(ctx, user); err != nil {
		return nil, err
	}

	tokenPair, err := s.issueSession(ctx, user, meta)
	if err != nil {
		return nil, err
	}

	return &AuthResult{User: user, TokenPair: tokenPair}, nil
}

// Login проверяет учётные данные и возвращает токены.
func (s *AuthService) Login(ctx context.Context, in LoginInput, meta map[string]string) (*AuthResult, error) {
	if err := validation.ValidateEmail(in.Email); err != nil {
		return nil, fmt.Errorf("auth service: %w", err)
	}

	user, err := s.repo.GetByEmail(ctx, strings.ToLower(in.Email))
	if err != nil {
		return nil, apperror.ErrInvalidCredentials
	}

	if !user.IsActive {
		return nil, fmt.Errorf("auth service: аккаунт заблокирован")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(in.Password)); err != nil {
		return nil, apperror.ErrInvalidCredentials
	}

	if err := s.repo.UpdateLastLoginAt(ctx, user.ID); err != nil {
		// Не прерываем вход из-за несохранённой метки времени.
		logger.WithComponent("auth").WithField("user_id", user.ID).
			WithError(err).Warn("не удалось обновить last_login_at")
	}

	tokenPair, err := s.issueSession(ctx, user, meta)
	if err != nil {
		return nil, err
	}

	return &AuthResult{User: user, TokenPair: tokenPair}, nil
}

// Refresh выпускает новую пару токенов и ротирует сессию.
func (s *AuthService) Refresh(ctx context.Context, oldToken string, meta map[string]string) (*TokenPair, error) {
	claims, err := s.tokenManager.ParseRefresh(oldToken)
	if err != nil {
		return nil, fmt.Errorf("auth service: refresh токен невалиден: %w", err)
	}

	// Токен должен соответствовать живой сессии: после logout он мёртв.
	if _, err := s.repo.GetSessionByToken(ctx, oldToken); err != nil {
		return nil, apperror.ErrUnauthorized
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, fmt.Errorf("auth service: некорректный subject: %w", err)
	}

	user, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	if err := s.repo.DeleteSession(ctx, oldToken); err != nil {
		return nil, err
	}

	return s.issueSession(ctx, user, meta)
}

// Logout удаляет сессию по refresh токену.
func (s *AuthService) Logout(ctx context.Context, refreshToken string) error {
	return s.repo.DeleteSession(ctx, refreshToken)
}

func (s *AuthService) issueSession(ctx context.Context, user *models.User, meta map[string]string) (*TokenPair, error) {
	tokenPair, refreshExp, err := s.tokenManager.GeneratePair(user)
	if err != nil {
		return nil, err
	}

	session := &models.Session{
		UserID:       user.ID,
		RefreshToken: tokenPair.RefreshToken,
		ExpiresAt:    refreshExp,
	}
	if meta != nil {
		if ua, ok := meta["user_agent"]; ok {
			session.UserAgent = &ua
		}
		if ip, ok := meta["ip"]; ok {
			session.IPAddress = &ip
		}
	}

	if err := s.repo.CreateSession(ctx, session); err != nil {
		return nil, err
	}

	return tokenPair, nil
}

// deriveUsername формирует username из email.
func deriveUsername(email string) string {
	name := strings.Split(email, "@")[0]
	name = strings.NewReplacer(".", "_", "+", "_").Replace(name)
	name = strings.ToLower(name)
	if len(name) < 3 {
		name = "user_" + uuid.NewString()[:6]
	}
	return name
}
