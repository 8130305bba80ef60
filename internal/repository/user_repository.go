package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"

	"github.com/lib/pq"
	"golang.org/x/crypto/bcrypt"

	"github.com/Bhavyapatel3096/Urban-Issue-Reporting-Platform/internal/models"
)

type UserRepository interface {
	CreateUser(ctx context.Context, email, phone, password, firstName, lastName, department string, roles []models.UserRole) (models.User, error)
	AuthenticateUser(ctx context.Context, email, password string) (models.User, error)
	GetUserByID(ctx context.Context, userID string) (models.User, error)
	ListActiveByDepartmentRoles(ctx context.Context, department string, roles []models.UserRole) ([]models.User, error)
	UpdateNotificationPrefs(ctx context.Context, userID string, prefs models.NotificationPrefs) (models.User, error)
}

type userRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) UserRepository {
	return &userRepository{db: db}
}

const userColumns = `id, email, phone, first_name, last_name, password_hash, roles, department, is_active, notification_prefs`

func (u *userRepository) CreateUser(ctx context.Context, email, phone, password, firstName, lastName, department string, roles []models.UserRole) (models.User, error) {
	if len(roles) == 0 {
		roles = []models.UserRole{models.RoleCitizen}
	}
	if !models.IsValidRoleList(roles) {
		return models.User{}, errors.New("invalid roles")
	}
	normalized := models.EnsureDefaultRole(models.NormalizeRoles(roles))

	email = strings.TrimSpace(email)
	if email == "" {
		return models.User{}, errors.New("email is required")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return models.User{}, err
	}

	user := models.User{
		Email:        email,
		Phone:        strings.TrimSpace(phone),
		FirstName:    strings.TrimSpace(firstName),
		LastName:     strings.TrimSpace(lastName),
		PasswordHash: string(hash),
		Roles:        normalized,
		Department:   strings.TrimSpace(department),
		IsActive:     true,
	}

	prefs, err := json.Marshal(user.Prefs)
	if err != nil {
		return models.User{}, err
	}

	const query = `
		INSERT INTO civic.users (email, phone, first_name, last_name, password_hash, roles, department, is_active, notification_prefs)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`
	err = u.db.QueryRowContext(ctx, query,
		user.Email, user.Phone, user.FirstName, user.LastName, user.PasswordHash,
		pq.Array(toStringSlice(user.Roles)), user.Department, user.IsActive, prefs,
	).Scan(&user.ID)
	if err != nil {
		return models.User{}, err
	}

	return user, nil
}

func (u *userRepository) AuthenticateUser(ctx context.Context, email, password string) (models.User, error) {
	const query = `
		SELECT ` + userColumns + `
		FROM civic.users
		WHERE email = $1 AND deleted_at IS NULL`

	user, err := scanUser(u.db.QueryRowContext(ctx, query, strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.User{}, errors.New("invalid credentials")
		}
		return models.User{}, err
	}

	if !user.IsActive {
		return models.User{}, errors.New("user is inactive")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return models.User{}, errors.New("invalid credentials")
	}

	return user, nil
}

func (u *userRepository) GetUserByID(ctx context.Context, userID string) (models.User, error) {
	const query = `
		SELECT ` + userColumns + `
		FROM civic.users
		WHERE id = $1 AND deleted_at IS NULL`

	return scanUser(u.db.QueryRowContext(ctx, query, userID))
}

func (u *userRepository) ListActiveByDepartmentRoles(ctx context.Context, department string, roles []models.UserRole) ([]models.User, error) {
	const query = `
		SELECT ` + userColumns + `
		FROM civic.users
		WHERE department = $1 AND roles && $2 AND is_active AND deleted_at IS NULL
		ORDER BY email`

	rows, err := u.db.QueryContext(ctx, query, department, pq.Array(toStringSlice(roles)))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (u *userRepository) UpdateNotificationPrefs(ctx context.Context, userID string, prefs models.NotificationPrefs) (models.User, error) {
	raw, err := json.Marshal(prefs)
	if err != nil {
		return models.User{}, err
	}

	const query = `
		UPDATE civic.users
		SET notification_prefs = $2, updated_at = now()
		WHERE id = $1 AND deleted_at IS NULL
		RETURNING ` + userColumns

	return scanUser(u.db.QueryRowContext(ctx, query, userID, raw))
}

func scanUser(scanner interface {
	Scan(dest ...interface{}) error
}) (models.User, error) {
	var (
		user       models.User
		phone      sql.NullString
		roles      pq.StringArray
		department sql.NullString
		prefsRaw   []byte
	)

	if err := scanner.Scan(
		&user.ID,
		&user.Email,
		&phone,
		&user.FirstName,
		&user.LastName,
		&user.PasswordHash,
		&roles,
		&department,
		&user.IsActive,
		&prefsRaw,
	); err != nil {
		return models.User{}, err
	}

	user.Phone = phone.String
	user.Department = department.String
	user.Roles = models.EnsureDefaultRole(toUserRoleSlice(roles))
	if !models.IsValidRoleList(user.Roles) {
		return models.User{}, errors.New("user has invalid roles")
	}
	if len(prefsRaw) > 0 {
		if err := json.Unmarshal(prefsRaw, &user.Prefs); err != nil {
			return models.User{}, err
		}
	}

	return user, nil
}

func toStringSlice(roles []models.UserRole) []string {
	result := make([]string, 0, len(roles))
	for _, role := range roles {
		result = append(result, string(role))
	}
	return result
}

func toUserRoleSlice(roles []string) []models.UserRole {
	result := make([]models.UserRole, 0, len(roles))
	for _, role := range roles {
		result = append(result, models.UserRole(role))
	}
	return models.NormalizeRoles(result)
}
