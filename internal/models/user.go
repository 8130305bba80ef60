package models

type UserRole string

const (
	RoleCitizen        UserRole = "citizen"
	RoleFieldOfficer   UserRole = "field_officer"
	RoleDepartmentHead UserRole = "department_head"
	RoleAdmin          UserRole = "admin"
)

// roleRank orders roles by privilege, lowest first.
var roleRank = map[UserRole]int{
	RoleCitizen:        0,
	RoleFieldOfficer:   1,
	RoleDepartmentHead: 2,
	RoleAdmin:          3,
}

func IsValidRole(role UserRole) bool {
	_, ok := roleRank[role]
	return ok
}

func IsValidRoleList(roles []UserRole) bool {
	if len(roles) == 0 {
		return false
	}
	for _, role := range roles {
		if !IsValidRole(role) {
			return false
		}
	}
	return true
}

// NormalizeRoles removes duplicates and unknown entries, preserving order.
func NormalizeRoles(roles []UserRole) []UserRole {
	seen := make(map[UserRole]struct{}, len(roles))
	result := make([]UserRole, 0, len(roles))
	for _, role := range roles {
		if !IsValidRole(role) {
			continue
		}
		if _, ok := seen[role]; ok {
			continue
		}
		seen[role] = struct{}{}
		result = append(result, role)
	}
	return result
}

// EnsureDefaultRole guarantees every account carries at least the citizen role.
func EnsureDefaultRole(roles []UserRole) []UserRole {
	for _, role := range roles {
		if role == RoleCitizen {
			return roles
		}
	}
	return append(roles, RoleCitizen)
}

// HasAtLeast reports whether any of the held roles meets the required tier.
func HasAtLeast(roles []UserRole, required UserRole) bool {
	want, ok := roleRank[required]
	if !ok {
		return false
	}
	for _, role := range roles {
		if roleRank[role] >= want {
			return true
		}
	}
	return false
}

func HasRole(roles []UserRole, role UserRole) bool {
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}

// HighestRole returns the most privileged role in the list.
func HighestRole(roles []UserRole) UserRole {
	highest := RoleCitizen
	for _, role := range roles {
		if roleRank[role] > roleRank[highest] {
			highest = role
		}
	}
	return highest
}

// NotificationPrefs stores a user's per-channel delivery overrides.
// Realtime delivery is always on; email and SMS are opt-in.
type NotificationPrefs struct {
	Email bool `json:"email"`
	SMS   bool `json:"sms"`
}

type User struct {
	ID           string            `json:"id" db:"id"`
	Email        string            `json:"email" db:"email"`
	Phone        string            `json:"phone,omitempty" db:"phone"`
	FirstName    string            `json:"first_name" db:"first_name"`
	LastName     string            `json:"last_name" db:"last_name"`
	PasswordHash string            `json:"-" db:"password_hash"`
	Roles        []UserRole        `json:"roles" db:"roles"`
	Department   string            `json:"department,omitempty" db:"department"`
	IsActive     bool              `json:"is_active" db:"is_active"`
	Prefs        NotificationPrefs `json:"notification_prefs" db:"notification_prefs"`
}
