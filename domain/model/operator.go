package model

import "github.com/golang-jwt/jwt"

// OperatorClaims is the bearer token payload accepted on the operator API.
type OperatorClaims struct {
	Operator string `json:"operator"`
	jwt.StandardClaims
}
