// Package services provides the report lifecycle, engagement, aggregation and notification logic.
package services

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"civicapp/internal/database"
	"civicapp/internal/models"
	"civicapp/internal/observability"
	contextutils "civicapp/internal/utils"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
)

// UserServiceInterface defines the user directory operations.
// Credentials are verified by the identity provider, not here.
type UserServiceInterface interface {
	CreateUser(ctx context.Context, name, email, mobile string, isAdmin bool) (*models.User, error)
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	ListUsers(ctx context.Context) ([]models.User, error)
	SetAdmin(ctx context.Context, id string, isAdmin bool) error
	IsAdmin(ctx context.Context, id string) (bool, error)
}

// UserService provides methods for user management.
type UserService struct {
	db     *sql.DB
	logger *observability.Logger
}

const userSelectFields = `id, name, email, mobile, is_admin, created_at`

// NewUserServiceWithLogger creates a new UserService instance with logger
func NewUserServiceWithLogger(db *sql.DB, logger *observability.Logger) *UserService {
	return &UserService{
		db:     db,
		logger: logger,
	}
}

func scanUser(row rowScanner) (*models.User, error) {
	user := &models.User{}
	if err := row.Scan(&user.ID, &user.Name, &user.Email, &user.Mobile, &user.IsAdmin, &user.CreatedAt); err != nil {
		return nil, err
	}
	return user, nil
}

// CreateUser registers a user; a duplicate email is RECORD_ALREADY_EXISTS
func (s *UserService) CreateUser(ctx context.Context, name, email, mobile string, isAdmin bool) (result *models.User, err error) {
	ctx, span := observability.TraceUserFunction(ctx, "create_user",
		attribute.String("user.email", contextutils.MaskEmail(email)),
		attribute.Bool("user.is_admin", isAdmin),
	)
	defer observability.FinishSpan(span, &err)

	name = strings.TrimSpace(name)
	email = strings.ToLower(strings.TrimSpace(email))
	if name == "" {
		return nil, contextutils.NewAppError(contextutils.ErrorCodeMissingRequired, contextutils.SeverityWarn, "name is required", "")
	}
	if !contextutils.IsValidEmail(email) {
		return nil, contextutils.NewAppError(contextutils.ErrorCodeInvalidFormat, contextutils.SeverityWarn, "invalid email address", "")
	}

	query := `
		INSERT INTO users (id, name, email, mobile, is_admin)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING ` + userSelectFields
	user, err := scanUser(s.db.QueryRowContext(ctx, query, uuid.NewString(), name, email, strings.TrimSpace(mobile), isAdmin))
	if err != nil {
		if database.IsUniqueViolation(err) {
			return nil, contextutils.WrapErrorf(contextutils.ErrRecordExists, "user with email %s already exists", email)
		}
		return nil, contextutils.WrapError(database.ClassifyError(err), "failed to create user")
	}

	s.logger.Info(ctx, "User created", map[string]interface{}{
		"user_id":  user.ID,
		"email":    contextutils.MaskEmail(user.Email),
		"is_admin": user.IsAdmin,
	})
	return user, nil
}

func (s *UserService) getUserByQuery(ctx context.Context, query string, args ...interface{}) (*models.User, error) {
	user, err := scanUser(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, contextutils.WrapError(contextutils.ErrRecordNotFound, "user not found")
	}
	if err != nil {
		return nil, contextutils.WrapError(database.ClassifyError(err), "failed to load user")
	}
	return user, nil
}

// GetUserByID looks up a user by id
func (s *UserService) GetUserByID(ctx context.Context, id string) (result *models.User, err error) {
	ctx, span := observability.TraceUserFunction(ctx, "get_user_by_id", observability.AttributeUserID(id))
	defer observability.FinishSpan(span, &err)

	if _, parseErr := uuid.Parse(id); parseErr != nil {
		return nil, contextutils.WrapError(contextutils.ErrRecordNotFound, "user not found")
	}
	return s.getUserByQuery(ctx, `SELECT `+userSelectFields+` FROM users WHERE id = $1`, id)
}

// GetUserByEmail looks up a user by email, case-insensitively
func (s *UserService) GetUserByEmail(ctx context.Context, email string) (result *models.User, err error) {
	ctx, span := observability.TraceUserFunction(ctx, "get_user_by_email")
	defer observability.FinishSpan(span, &err)

	return s.getUserByQuery(ctx, `SELECT `+userSelectFields+` FROM users WHERE email = $1`, strings.ToLower(strings.TrimSpace(email)))
}

// ListUsers returns all users ordered by creation time
func (s *UserService) ListUsers(ctx context.Context) (result []models.User, err error) {
	ctx, span := observability.TraceUserFunction(ctx, "list_users")
	defer observability.FinishSpan(span, &err)

	rows, err := s.db.QueryContext(ctx, `SELECT `+userSelectFields+` FROM users ORDER BY created_at, id`)
	if err != nil {
		return nil, contextutils.WrapError(database.ClassifyError(err), "failed to list users")
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			s.logger.Warn(ctx, "Warning: failed to close rows", map[string]interface{}{"error": closeErr.Error()})
		}
	}()

	users := []models.User{}
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, contextutils.WrapError(err, "failed to scan user")
		}
		users = append(users, *user)
	}
	if err := rows.Err(); err != nil {
		return nil, contextutils.WrapError(database.ClassifyError(err), "failed to iterate users")
	}
	return users, nil
}

// SetAdmin grants or revokes the administrator capability
func (s *UserService) SetAdmin(ctx context.Context, id string, isAdmin bool) (err error) {
	ctx, span := observability.TraceUserFunction(ctx, "set_admin",
		observability.AttributeUserID(id),
		attribute.Bool("user.is_admin", isAdmin),
	)
	defer observability.FinishSpan(span, &err)

	res, err := s.db.ExecContext(ctx, `UPDATE users SET is_admin = $2 WHERE id = $1`, id, isAdmin)
	if err != nil {
		return contextutils.WrapError(database.ClassifyError(err), "failed to update user")
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return contextutils.WrapError(err, "failed to read affected rows")
	}
	if affected == 0 {
		return contextutils.WrapErrorf(contextutils.ErrRecordNotFound, "user %s not found", id)
	}
	return nil
}

// IsAdmin reports whether the user holds the administrator capability; unknown users are not admins
func (s *UserService) IsAdmin(ctx context.Context, id string) (result bool, err error) {
	ctx, span := observability.TraceUserFunction(ctx, "is_admin", observability.AttributeUserID(id))
	defer observability.FinishSpan(span, &err)

	if _, parseErr := uuid.Parse(id); parseErr != nil {
		return false, nil
	}

	var isAdmin bool
	err = s.db.QueryRowContext(ctx, `SELECT is_admin FROM users WHERE id = $1`, id).Scan(&isAdmin)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, contextutils.WrapError(database.ClassifyError(err), "failed to check admin capability")
	}
	return isAdmin, nil
}
