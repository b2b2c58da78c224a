// Package auth manages admin accounts and the bearer tokens that protect admin routes.
package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"smartq/internal/models"
	"smartq/internal/store"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
)

const (
	MinUsernameLength = 4
	MinPasswordLength = 6
)

var (
	ErrMissingCredentials = errors.New("username and password are required")
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrWeakCredentials    = errors.New("username or password too short")
	ErrAlreadyConfigured  = errors.New("admin account already exists")
	ErrNotAuthorized      = errors.New("not authorized")
	ErrAdminNotFound      = errors.New("admin not found")
)

type Session struct {
	Token string       `json:"token"`
	Admin models.Admin `json:"admin"`
}

type Service struct {
	store  store.AdminStore
	tokens *Manager
	now    func() time.Time
	logger zerolog.Logger
}

func NewService(st store.AdminStore, tokens *Manager, logger zerolog.Logger) *Service {
	return &Service{store: st, tokens: tokens, now: time.Now, logger: logger}
}

// Setup creates the first admin. It fails once any admin exists.
func (s *Service) Setup(ctx context.Context, username, password string) (Session, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return Session{}, ErrMissingCredentials
	}
	if len(username) < MinUsernameLength || len(password) < MinPasswordLength {
		return Session{}, ErrWeakCredentials
	}
	count, err := s.store.CountAdmins(ctx)
	if err != nil {
		return Session{}, err
	}
	if count > 0 {
		return Session{}, ErrAlreadyConfigured
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return Session{}, err
	}
	admin, err := s.store.CreateAdmin(ctx, models.Admin{
		ID:           uuid.NewString(),
		Username:     username,
		PasswordHash: string(hash),
		CreatedAt:    s.now(),
	})
	if errors.Is(err, store.ErrDuplicate) {
		return Session{}, ErrAlreadyConfigured
	}
	if err != nil {
		return Session{}, err
	}
	s.logger.Info().Str("admin_id", admin.ID).Str("username", admin.Username).Msg("initial admin created")
	return s.issue(admin)
}

func (s *Service) Login(ctx context.Context, username, password string) (Session, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return Session{}, ErrMissingCredentials
	}
	admin, err := s.store.GetAdminByUsername(ctx, username)
	if errors.Is(err, store.ErrAdminNotFound) {
		return Session{}, ErrInvalidCredentials
	}
	if err != nil {
		return Session{}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(admin.PasswordHash), []byte(password)); err != nil {
		s.logger.Warn().Str("username", username).Msg("admin login rejected")
		return Session{}, ErrInvalidCredentials
	}
	return s.issue(admin)
}

// Authenticate resolves a bearer token to the admin it was issued for.
func (s *Service) Authenticate(ctx context.Context, token string) (models.Admin, error) {
	claims, err := s.tokens.Validate(token)
	if err != nil {
		return models.Admin{}, ErrNotAuthorized
	}
	admin, err := s.store.GetAdmin(ctx, claims.AdminID)
	if errors.Is(err, store.ErrAdminNotFound) {
		return models.Admin{}, ErrAdminNotFound
	}
	if err != nil {
		return models.Admin{}, err
	}
	return admin, nil
}

func (s *Service) issue(admin models.Admin) (Session, error) {
	token, err := s.tokens.Generate(admin.ID)
	if err != nil {
		return Session{}, err
	}
	admin.PasswordHash = ""
	return Session{Token: token, Admin: admin}, nil
}

type contextKey struct{}

func WithAdmin(ctx context.Context, admin models.Admin) context.Context {
	return context.WithValue(ctx, contextKey{}, admin)
}

func AdminFrom(ctx context.Context) (models.Admin, bool) {
	admin, ok := ctx.Value(contextKey{}).(models.Admin)
	return admin, ok
}
