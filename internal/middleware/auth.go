package middleware

import (
	"log"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"

	"github.com/tunegift/api/internal/model"
)

type AuthMiddleware struct {
	jwtSecret string
}

type UserClaims struct {
	UserID string `json:"userId"`
	Email  string `json:"email"`
	jwt.RegisteredClaims
}

func NewAuthMiddleware(jwtSecret string) *AuthMiddleware {
	return &AuthMiddleware{jwtSecret: jwtSecret}
}

// Identify resolves the caller to a user or guest identity. An invalid or
// expired bearer token is not fatal: the caller falls back to guest via the
// X-Guest-Id header, so an expired session degrades instead of rejecting.
func (m *AuthMiddleware) Identify() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if userID := m.userFromBearer(c); userID != "" {
			c.Locals("userId", userID)
		}
		if guestID := c.Get("X-Guest-Id"); guestID != "" {
			c.Locals("guestId", guestID)
		}
		return c.Next()
	}
}

func (m *AuthMiddleware) userFromBearer(c *fiber.Ctx) string {
	authHeader := c.Get("Authorization")
	if authHeader == "" {
		return ""
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return ""
	}

	token, err := jwt.ParseWithClaims(parts[1], &UserClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(m.jwtSecret), nil
	})
	if err != nil {
		log.Printf("[Auth] invalid bearer token, continuing as guest: %v", err)
		return ""
	}

	claims, ok := token.Claims.(*UserClaims)
	if !ok || !token.Valid {
		return ""
	}

	userID := claims.UserID
	if userID == "" {
		userID = claims.Subject
	}
	return userID
}

// GetIdentity extracts the resolved identity from context
func GetIdentity(c *fiber.Ctx) model.Identity {
	id := model.Identity{}
	if userID, ok := c.Locals("userId").(string); ok {
		id.UserID = userID
	}
	if guestID, ok := c.Locals("guestId").(string); ok {
		id.GuestID = guestID
	}
	return id
}

// GenerateToken creates a new JWT token (useful for testing)
func (m *AuthMiddleware) GenerateToken(userID, email string) (string, error) {
	claims := UserClaims{
		UserID: userID,
		Email:  email,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer: "tunegift-api",
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(m.jwtSecret))
}
