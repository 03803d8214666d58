package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"yt-pipeline/domain/dto"
	"yt-pipeline/domain/model"
	"yt-pipeline/infrastructure/logger"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt"
)

// Auth guards the operator API with an HS256 bearer token signed with secretKey.
func Auth(secretKey string) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		res := dto.Res{ResponseCode: "401", ResponseMessage: "Unauthorized"}

		authorization := ctx.Request.Header.Get("Authorization")
		raw, found := strings.CutPrefix(authorization, "Bearer ")
		if !found || raw == "" || secretKey == "" {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, res)
			return
		}

		claims, token, err := getClaim(raw, secretKey)
		if err != nil || !token.Valid {
			abort(err, &res)
			logger.GetLogger().WithField("error", err).Warn("operator token rejected")
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, res)
			return
		}

		ctx.Set("operator", claims.Operator)
		ctx.Next()
	}
}

func abort(err error, res *dto.Res) {
	var ve *jwt.ValidationError
	if !errors.As(err, &ve) {
		return
	}
	if ve.Errors&jwt.ValidationErrorMalformed != 0 {
		res.ResponseMessage = "That's not even a token"
	} else if ve.Errors&(jwt.ValidationErrorExpired|jwt.ValidationErrorNotValidYet) != 0 {
		// Token is either expired or not active yet
		res.ResponseMessage = "Timing is everything"
	} else {
		res.ResponseMessage = fmt.Sprintf("Couldn't handle this token:%v", err)
	}
}

func getClaim(raw, secretKey string) (model.OperatorClaims, *jwt.Token, error) {
	var claims model.OperatorClaims
	token, err := jwt.ParseWithClaims(
		raw,
		&claims,
		func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
			}
			return []byte(secretKey), nil
		},
	)
	return claims, token, err
}
