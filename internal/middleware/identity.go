package middleware

import (
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/campushq/registrar-api/internal/models"
	appErrors "github.com/campushq/registrar-api/pkg/errors"
	"github.com/campushq/registrar-api/pkg/response"
)

// ContextUserKey is the gin context key storing verified identity claims.
const ContextUserKey = "currentUser"

// TokenVerifier validates access tokens issued by the identity provider.
type TokenVerifier struct {
	secret []byte
	issuer string
}

// NewTokenVerifier constructs a verifier for HMAC-signed tokens.
func NewTokenVerifier(secret, issuer string) *TokenVerifier {
	return &TokenVerifier{secret: []byte(secret), issuer: issuer}
}

// Verify parses and validates a token, returning its claims.
func (v *TokenVerifier) Verify(tokenString string) (*models.JWTClaims, error) {
	claims := &models.JWTClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid or expired token")
	}
	if v.issuer != "" && claims.Issuer != v.issuer {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "unknown token issuer")
	}
	if !claims.Role.Valid() {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "unknown role")
	}
	return claims, nil
}

// Identity protects routes by requiring a valid access token. Tokens are
// issued by the external identity provider; this service only verifies them.
func Identity(verifier *TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "invalid authorization header"))
			c.Abort()
			return
		}

		claims, err := verifier.Verify(parts[1])
		if err != nil {
			response.Error(c, err)
			c.Abort()
			return
		}

		c.Set(ContextUserKey, claims)
		c.Next()
	}
}
