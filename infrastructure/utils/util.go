package utils

import (
	"time"

	"github.com/golang-jwt/jwt"
	"github.com/google/uuid"
	gonanoid "github.com/matoous/go-nanoid/v2"

	"social-publisher/infrastructure/logger"
)

const stateAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

func GetCurrentTime() time.Time {
	return time.Now().UTC()
}

// NewID returns a random row id.
func NewID() string {
	return uuid.NewString()
}

// NewStateToken returns an unguessable OAuth state token.
func NewStateToken() (string, error) {
	return gonanoid.Generate(stateAlphabet, 43)
}

// GenerateToken signs an HS256 bearer token the way the host application issues them.
func GenerateToken(payload map[string]interface{}, secretKey string) (string, error) {
	var claims jwt.MapClaims = payload
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(secretKey))
	if err != nil {
		logger.GetLogger().WithField("error", err).Error("Error while generate token")
		return "", err
	}
	return tokenString, nil
}
