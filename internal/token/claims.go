package token

import (
	"github.com/golang-jwt/jwt/v5"

	"github.com/kupapos/kupa/internal/model"
)

const refreshType = "refresh"

// AccessClaims is the payload of an access token.  Subject carries the user
// id and ID the jti used for revocation.  Legacy tokens have no jti.
type AccessClaims struct {
	Role       string `json:"role"`
	BusinessID string `json:"businessId"`
	jwt.RegisteredClaims
}

// Principal projects the claims onto the identity handlers work with.
func (c AccessClaims) Principal() model.Principal {
	return model.Principal{ID: c.Subject, Role: model.Role(c.Role), BusinessID: c.BusinessID}
}

// RefreshClaims is the payload of a refresh token.  TokenID must match the
// pointer stored under RefreshKey(Subject) for the token to be accepted.
type RefreshClaims struct {
	TokenID string `json:"tokenId"`
	Type    string `json:"type"`
	jwt.RegisteredClaims
}
