package auth

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"github.com/Simlowker/solduel-gaming-platform/types"
)

// Context keys for player information
const (
	PlayerIDKey = "player_id"
	ClaimsKey   = "claims"
)

// Claims represents the JWT claims structure. PlayerID is the player's
// wallet identity and is the only identity the module trusts.
type Claims struct {
	PlayerID string `json:"player_id"`
	jwt.RegisteredClaims
}

// JWTConfig holds JWT middleware configuration
type JWTConfig struct {
	Secret      string
	TokenPrefix string // "Bearer"
	SkipPaths   []string
}

// DefaultJWTConfig returns default JWT configuration
func DefaultJWTConfig(secret string) JWTConfig {
	return JWTConfig{
		Secret:      secret,
		TokenPrefix: "Bearer",
		SkipPaths:   []string{"/health", "/api/health"},
	}
}

// JWTMiddleware creates a JWT authentication middleware
func JWTMiddleware(secret string, logger zerolog.Logger) gin.HandlerFunc {
	return JWTMiddlewareWithConfig(DefaultJWTConfig(secret), logger)
}

// JWTMiddlewareWithConfig creates a JWT middleware with custom configuration
func JWTMiddlewareWithConfig(config JWTConfig, logger zerolog.Logger) gin.HandlerFunc {
	skipPaths := make(map[string]bool)
	for _, path := range config.SkipPaths {
		skipPaths[path] = true
	}

	return func(c *gin.Context) {
		if skipPaths[c.Request.URL.Path] {
			c.Next()
			return
		}

		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			logger.Warn().Msg("Missing Authorization header")
			abortUnauthorized(c, "Missing Authorization header")
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != config.TokenPrefix {
			logger.Warn().Str("auth_header", authHeader).Msg("Invalid Authorization header format")
			abortUnauthorized(c, "Invalid Authorization header format. Expected: Bearer <token>")
			return
		}

		token, err := jwt.ParseWithClaims(parts[1], &Claims{}, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, errors.New("unexpected signing method")
			}
			return []byte(config.Secret), nil
		})
		if err != nil {
			logger.Warn().Err(err).Msg("Failed to parse JWT token")
			abortUnauthorized(c, "Invalid or expired token")
			return
		}

		claims, ok := token.Claims.(*Claims)
		if !ok || !token.Valid || claims.PlayerID == "" {
			logger.Warn().Msg("Invalid token claims")
			abortUnauthorized(c, "Invalid token claims")
			return
		}

		c.Set(PlayerIDKey, claims.PlayerID)
		c.Set(ClaimsKey, claims)

		logger.Debug().
			Str("player_id", claims.PlayerID).
			Msg("JWT authentication successful")

		c.Next()
	}
}

func abortUnauthorized(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, types.ErrorResponse{
		StatusCode: http.StatusUnauthorized,
		IsSuccess:  false,
		Error: types.ErrorDetail{
			Timestamp:    time.Now().Format(time.RFC3339),
			Path:         c.Request.URL.Path,
			ErrorMessage: message,
		},
	})
}

// GetPlayerID extracts the player identity from context
func GetPlayerID(c *gin.Context) (string, bool) {
	playerID, exists := c.Get(PlayerIDKey)
	if !exists {
		return "", false
	}
	playerIDStr, ok := playerID.(string)
	return playerIDStr, ok
}

// GetClaims extracts full claims from context
func GetClaims(c *gin.Context) (*Claims, bool) {
	claims, exists := c.Get(ClaimsKey)
	if !exists {
		return nil, false
	}
	claimsObj, ok := claims.(*Claims)
	return claimsObj, ok
}

// GenerateToken generates a new JWT token for a player
func GenerateToken(secret, playerID string, expiration time.Duration) (string, error) {
	claims := &Claims{
		PlayerID: playerID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(expiration)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			NotBefore: jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}
