package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"go-token-auth/model"
	"go-token-auth/repository"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

var ErrAccountDisabled = errors.New("account is disabled")

// DefaultBcryptCost matches the cost used for every stored password hash.
const DefaultBcryptCost = 14

// rolePermissions is the role to permission table attached to access tokens.
var rolePermissions = map[model.Role][]string{
	model.RoleAdmin: {"profile:read", "profile:write", "tokens:read", "tokens:revoke", "tokens:cleanup", "users:read"},
	model.RoleUser:  {"profile:read", "profile:write", "tokens:read"},
}

// PermissionsFor returns a copy of the permissions granted to role.
func PermissionsFor(role model.Role) []string {
	return append([]string(nil), rolePermissions[role]...)
}

// IdentityClaims builds the custom access-token claims for an identity.
func IdentityClaims(identity *model.UserIdentity) map[string]any {
	claims := map[string]any{
		model.ClaimRole:        identity.Role,
		model.ClaimPermissions: append([]string(nil), identity.Permissions...),
	}
	if identity.Email != "" {
		claims[model.ClaimEmail] = identity.Email
	}
	return claims
}

// CredentialService checks passwords against the users table and resolves identities.
type CredentialService struct {
	users repository.IUserRepository
	cost  int
	log   logrus.FieldLogger
}

func NewCredentialService(users repository.IUserRepository, log logrus.FieldLogger) *CredentialService {
	return &CredentialService{users: users, cost: DefaultBcryptCost, log: log}
}

// WithCost overrides the bcrypt cost used by HashPassword.
func (s *CredentialService) WithCost(cost int) *CredentialService {
	s.cost = cost
	return s
}

func (s *CredentialService) HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		s.log.WithError(err).Error("Failed to hash password")
		return "", err
	}
	return string(bytes), nil
}

func (s *CredentialService) CheckPasswordHash(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}

func toIdentity(user *model.User) *model.UserIdentity {
	return &model.UserIdentity{
		ID:          strconv.Itoa(user.ID),
		Username:    user.Username,
		Email:       user.Email,
		Role:        string(user.Role),
		Permissions: PermissionsFor(user.Role),
		Active:      user.IsActive,
	}
}

// Validate returns the identity for a matching identifier and password, nil when the
// credentials do not match and ErrAccountDisabled for a matching but inactive account.
func (s *CredentialService) Validate(ctx context.Context, identifier, secret string) (*model.UserIdentity, error) {
	user, err := s.users.GetUserByIdentifier(ctx, strings.TrimSpace(identifier))
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("credential lookup failed: %w", err)
	}
	if !s.CheckPasswordHash(secret, user.Password) {
		return nil, nil
	}
	if !user.IsActive {
		return nil, ErrAccountDisabled
	}
	return toIdentity(user), nil
}

// FindByID resolves a token subject. Unknown or non-numeric ids give nil, nil.
func (s *CredentialService) FindByID(ctx context.Context, userID string) (*model.UserIdentity, error) {
	id, err := strconv.Atoi(userID)
	if err != nil {
		return nil, nil
	}
	user, err := s.users.GetUserByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return toIdentity(user), nil
}

// ClaimsFor re-resolves claims on rotation so role changes reach the next access token.
func (s *CredentialService) ClaimsFor(ctx context.Context, userID string) (map[string]any, error) {
	identity, err := s.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if identity == nil {
		return nil, repository.ErrUserNotFound
	}
	if !identity.Active {
		return nil, ErrAccountDisabled
	}
	return IdentityClaims(identity), nil
}

// Register creates an active account with a hashed password.
func (s *CredentialService) Register(ctx context.Context, req model.RegisterRequest) (*model.UserIdentity, error) {
	hash, err := s.HashPassword(req.Password)
	if err != nil {
		return nil, err
	}
	user := &model.User{
		Username: req.Username,
		Email:    strings.ToLower(req.Email),
		Password: hash,
		Role:     model.RoleUser,
		IsActive: true,
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{"user_id": user.ID, "username": user.Username}).Info("User registered")
	return toIdentity(user), nil
}
