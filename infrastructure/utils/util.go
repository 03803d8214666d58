package utils

import (
	"time"

	"yt-pipeline/domain/model"
	"yt-pipeline/infrastructure/logger"

	"github.com/golang-jwt/jwt"
)

// GetCurrentTime is the clock every lease and ingestion timestamp is read from.
func GetCurrentTime() time.Time {
	return time.Now().UTC()
}

// IssueOperatorToken signs an HS256 token for the operator API valid for ttl.
func IssueOperatorToken(operator, secretKey string, ttl time.Duration) (string, error) {
	now := GetCurrentTime()
	claims := model.OperatorClaims{
		Operator: operator,
		StandardClaims: jwt.StandardClaims{
			Subject:   operator,
			IssuedAt:  now.Unix(),
			ExpiresAt: now.Add(ttl).Unix(),
		},
	}
	return sign(claims, secretKey)
}

// GenerateToken signs arbitrary claims; tests use it to forge expired or foreign tokens.
func GenerateToken(payload map[string]interface{}, secretKey string) (string, error) {
	return sign(jwt.MapClaims(payload), secretKey)
}

func sign(claims jwt.Claims, secretKey string) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(secretKey))
	if err != nil {
		logger.GetLogger().WithField("error", err).Error("Error while generate token")
		return "", err
	}
	return tokenString, nil
}
