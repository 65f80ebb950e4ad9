package jwt

import (
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

// Scope values separate the two token families signed with the same secret.
// Each verifier requires its own scope, so a reset token can never be
// accepted where an access token is expected.
const (
	ScopeAccess        = "access"
	ScopePasswordReset = "password_reset"
)

// Codec signs and verifies compact HS256 tokens. It is stateless; rotating
// the secret invalidates every outstanding token.
type Codec struct {
	secret []byte
}

type Claims struct {
	Scope string `json:"scope"`
	jwtlib.RegisteredClaims
}

// TokenInfo is the verified content of an access token.
type TokenInfo struct {
	Subject   string
	ExpiresAt time.Time
}

func New(secret string) *Codec {
	return &Codec{secret: []byte(secret)}
}

// IssueAccessToken mints a token carrying sub and exp only. Roles and
// permissions are re-fetched from the user record at verification time,
// never cached in the token.
func (c *Codec) IssueAccessToken(subject string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Scope: ScopeAccess,
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwtlib.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwtlib.NewNumericDate(now),
		},
	}
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims)
	return token.SignedString(c.secret)
}

// VerifyAccessToken returns nil on any structural, signature, scope or
// expiry failure. Callers treat nil as unauthenticated without learning
// which check failed.
func (c *Codec) VerifyAccessToken(tokenStr string) *TokenInfo {
	claims := c.verify(tokenStr, ScopeAccess)
	if claims == nil || claims.Subject == "" || claims.ExpiresAt == nil {
		return nil
	}
	return &TokenInfo{Subject: claims.Subject, ExpiresAt: claims.ExpiresAt.Time}
}

// IssueResetToken mints a password-reset token with the email as subject
// and a not-before of issue time.
func (c *Codec) IssueResetToken(email string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Scope: ScopePasswordReset,
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   email,
			ExpiresAt: jwtlib.NewNumericDate(now.Add(ttl)),
			NotBefore: jwtlib.NewNumericDate(now),
			IssuedAt:  jwtlib.NewNumericDate(now),
		},
	}
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims)
	return token.SignedString(c.secret)
}

// VerifyResetToken returns the embedded email, or "" on any failure.
func (c *Codec) VerifyResetToken(tokenStr string) string {
	claims := c.verify(tokenStr, ScopePasswordReset)
	if claims == nil {
		return ""
	}
	return claims.Subject
}

func (c *Codec) verify(tokenStr, scope string) *Claims {
	token, err := jwtlib.ParseWithClaims(tokenStr, &Claims{}, func(t *jwtlib.Token) (any, error) {
		return c.secret, nil
	}, jwtlib.WithValidMethods([]string{"HS256"}))
	if err != nil || !token.Valid {
		return nil
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || claims.Scope != scope {
		return nil
	}
	return claims
}
