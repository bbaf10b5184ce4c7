package models

import "github.com/golang-jwt/jwt/v5"

// Role is the closed set of portal roles. Keeping the set closed means a new
// role forces a review of every permission check that switches on it.
type Role string

const (
	RoleAdmin   Role = "ADMIN"
	RoleStaff   Role = "STAFF"
	RoleTeacher Role = "TEACHER"
	RoleStudent Role = "STUDENT"
)

// Valid reports whether the role belongs to the closed set.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleStaff, RoleTeacher, RoleStudent:
		return true
	}
	return false
}

// JWTClaims is the payload of access tokens issued by the external identity
// provider. This service verifies and trusts them; it never issues tokens.
type JWTClaims struct {
	UserID   string `json:"user_id"`
	Role     Role   `json:"role"`
	Email    string `json:"email"`
	FullName string `json:"full_name"`
	jwt.RegisteredClaims
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
