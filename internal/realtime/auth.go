package realtime

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"github.com/Bhavyapatel3096/Urban-Issue-Reporting-Platform/internal/models"
)

var ErrInvalidCredential = errors.New("invalid or expired credential")

// Identity is the resolved result of connection-time authentication.
// Credentials are validated once at the handshake and never re-checked
// mid-session; a token expiring later does not tear down the connection.
type Identity struct {
	UserID     string
	Roles      []models.UserRole
	Department string
}

// Authenticator validates a credential presented at connection time.
type Authenticator interface {
	Authenticate(token string) (Identity, error)
}

type JWTAuthenticator struct {
	secret []byte
}

func NewJWTAuthenticator(secret string) *JWTAuthenticator {
	return &JWTAuthenticator{secret: []byte(secret)}
}

func (a *JWTAuthenticator) Authenticate(tokenString string) (Identity, error) {
	if tokenString == "" {
		return Identity{}, ErrInvalidCredential
	}

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return a.secret, nil
	})
	if err != nil || !token.Valid {
		return Identity{}, ErrInvalidCredential
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !claims.VerifyExpiresAt(time.Now().Unix(), true) {
		return Identity{}, ErrInvalidCredential
	}

	userID, _ := claims["sub"].(string)
	if userID == "" {
		return Identity{}, ErrInvalidCredential
	}

	roles, ok := rolesFromClaims(claims)
	if !ok {
		return Identity{}, ErrInvalidCredential
	}

	department, _ := claims["dept"].(string)

	return Identity{UserID: userID, Roles: roles, Department: department}, nil
}

func rolesFromClaims(claims jwt.MapClaims) ([]models.UserRole, bool) {
	rawRoles, ok := claims["roles"]
	if !ok {
		if single, ok := claims["role"].(string); ok && single != "" {
			role := models.UserRole(single)
			if !models.IsValidRole(role) {
				return nil, false
			}
			return []models.UserRole{role}, true
		}
		return nil, false
	}

	var roles []models.UserRole
	switch v := rawRoles.(type) {
	case []interface{}:
		for _, val := range v {
			str, ok := val.(string)
			if !ok {
				return nil, false
			}
			role := models.UserRole(str)
			if !models.IsValidRole(role) {
				return nil, false
			}
			roles = append(roles, role)
		}
	case []string:
		for _, str := range v {
			role := models.UserRole(str)
			if !models.IsValidRole(role) {
				return nil, false
			}
			roles = append(roles, role)
		}
	case string:
		roles = []models.UserRole{models.UserRole(v)}
	default:
		return nil, false
	}

	normalized := models.EnsureDefaultRole(models.NormalizeRoles(roles))
	if !models.IsValidRoleList(normalized) {
		return nil, false
	}
	return normalized, true
}
