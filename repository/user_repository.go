package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"go-token-auth/model"

	"github.com/lib/pq"
	"github.com/sirupsen/logrus"
)

var (
	ErrUserNotFound = errors.New("user not found")
	ErrUserExists   = errors.New("username or email already taken")
)

const userColumns = `id, username, email, password, role, is_active, created_at`

type UserRepository struct {
	DB  *sql.DB
	log logrus.FieldLogger
}

func NewUserRepository(database *sql.DB, log logrus.FieldLogger) *UserRepository {
	return &UserRepository{DB: database, log: log}
}

func scanUser(row rowScanner) (*model.User, error) {
	user := &model.User{}
	var role string
	if err := row.Scan(&user.ID, &user.Username, &user.Email, &user.Password, &role, &user.IsActive, &user.CreatedAt); err != nil {
		return nil, err
	}
	user.Role = model.Role(role)
	return user, nil
}

func (r *UserRepository) CreateUser(ctx context.Context, user *model.User) error {
	if user.Role == "" {
		user.Role = model.RoleUser
	}
	log := r.log.WithFields(logrus.Fields{
		"username": user.Username,
		"role":     user.Role,
	})
	log.Debug("Executing query to create a new user")

	query := `INSERT INTO users (username, email, password, role, is_active) VALUES ($1, $2, $3, $4, $5) RETURNING id, created_at`
	err := r.DB.QueryRowContext(ctx, query, user.Username, user.Email, user.Password, string(user.Role), user.IsActive).
		Scan(&user.ID, &user.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			log.Warn("User already exists")
			return ErrUserExists
		}
		log.WithError(err).Error("Failed to execute create user query")
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// GetUserByIdentifier looks a user up by username or email. Emails match case-insensitively.
func (r *UserRepository) GetUserByIdentifier(ctx context.Context, identifier string) (*model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE username = $1 OR LOWER(email) = $2 LIMIT 1`
	user, err := scanUser(r.DB.QueryRowContext(ctx, query, identifier, strings.ToLower(identifier)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		r.log.WithError(err).Error("Failed to execute get user by identifier query")
		return nil, fmt.Errorf("db error: %w", err)
	}
	return user, nil
}

func (r *UserRepository) GetUserByID(ctx context.Context, id int) (*model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	user, err := scanUser(r.DB.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		r.log.WithError(err).WithField("user_id", id).Error("Failed to execute get user by id query")
		return nil, fmt.Errorf("db error: %w", err)
	}
	return user, nil
}
