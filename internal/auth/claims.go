package auth

import "github.com/golang-jwt/jwt/v5"

type TokenType string

// TokenTypeService is the only token type this service issues or accepts.
// Tokens are minted for peer systems and operators, never for end users.
const TokenTypeService TokenType = "service"

// Claims are the only supported JWT claims shape for this service.
// Subject (RegisteredClaims.Subject) names the calling system or operator.
type Claims struct {
	jwt.RegisteredClaims

	Role      string    `json:"role"`
	TokenType TokenType `json:"token_type"`
}
