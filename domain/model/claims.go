package model

import "github.com/golang-jwt/jwt"

// OwnerClaims is the bearer token issued by the host application's session system.
// Subject carries the owner account id.
type OwnerClaims struct {
	jwt.StandardClaims
	UserName string `json:"username"`
}
