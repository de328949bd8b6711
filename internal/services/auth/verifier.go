// Package auth verifies bearer tokens issued by the platform's identity
// provider. There is no login flow here; callers arrive with a signed JWT
// and the verifier checks signature, issuer and expiry against the
// provider's JWKS endpoint.
package auth

import (
	"context"
	"fmt"

	"github.com/lestrrat-go/jwx/v2/jwt"

	"github.com/trackwise/assistant/internal/models"
)

// Verifier verifies JWT bearer tokens and extracts assistant claims
type Verifier struct {
	jwksManager *JWKSManager
	jwksURL     string
	issuer      string
}

// NewVerifier creates a verifier bound to one JWKS URL and issuer
func NewVerifier(jwksManager *JWKSManager, jwksURL, issuer string) *Verifier {
	return &Verifier{
		jwksManager: jwksManager,
		jwksURL:     jwksURL,
		issuer:      issuer,
	}
}

// Verify checks the token signature and validity window and extracts the
// claims the assistant needs: subject, client, role.
func (v *Verifier) Verify(ctx context.Context, tokenString string) (*models.TokenClaims, error) {
	keys, err := v.jwksManager.GetJWKS(ctx, v.jwksURL)
	if err != nil {
		return nil, fmt.Errorf("failed to get JWKS: %w", err)
	}

	token, err := jwt.Parse([]byte(tokenString), jwt.WithKeySet(keys), jwt.WithValidate(true))
	if err != nil {
		return nil, fmt.Errorf("failed to parse/verify token: %w", err)
	}

	if v.issuer != "" && token.Issuer() != v.issuer {
		return nil, fmt.Errorf("token issuer mismatch: expected %s, got %s", v.issuer, token.Issuer())
	}

	claims := &models.TokenClaims{
		Sub: token.Subject(),
		Iss: token.Issuer(),
		Exp: token.Expiration().Unix(),
		Iat: token.IssuedAt().Unix(),
	}
	if aud := token.Audience(); len(aud) > 0 {
		claims.Aud = aud[0]
	}
	claims.Role = stringClaim(token, "role")
	claims.ClientID = stringClaim(token, "client_id")
	claims.Name = stringClaim(token, "name")
	claims.Email = stringClaim(token, "email")

	if claims.Sub == "" {
		return nil, fmt.Errorf("token missing sub claim")
	}

	return claims, nil
}

// UserFromClaims builds the request principal. An absent or unknown role
// claim degrades to viewer rather than failing the request.
func UserFromClaims(claims *models.TokenClaims) *models.User {
	role := models.Role(claims.Role)
	switch role {
	case models.RoleViewer, models.RoleMember, models.RoleManager, models.RoleAdmin:
	default:
		role = models.RoleViewer
	}
	return &models.User{
		ID:       claims.Sub,
		ClientID: claims.ClientID,
		Name:     claims.Name,
		Email:    claims.Email,
		Role:     role,
	}
}

func stringClaim(token jwt.Token, name string) string {
	if v, ok := token.Get(name); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
