package service

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/msomdec/postwall/internal/config"
	"github.com/msomdec/postwall/internal/domain"
)

// Claims is the credential payload. The caller's identity is carried in
// user.id; the registered sub claim is accepted when user.id is absent.
type Claims struct {
	User struct {
		ID string `json:"id"`
	} `json:"user"`
	jwt.RegisteredClaims
}

// TokenVerifier validates signed bearer credentials and recovers the
// caller's identity. It never touches a store.
type TokenVerifier struct {
	secret []byte
	issuer string
	leeway time.Duration
	now    func() time.Time
}

// NewTokenVerifier creates a TokenVerifier from the auth configuration.
func NewTokenVerifier(cfg config.AuthConfig) *TokenVerifier {
	return &TokenVerifier{
		secret: []byte(cfg.Secret),
		issuer: cfg.Issuer,
		leeway: cfg.Leeway,
		now:    time.Now,
	}
}

// WithClock returns a copy of the verifier that reads the current time from now.
func (v *TokenVerifier) WithClock(now func() time.Time) *TokenVerifier {
	c := *v
	c.now = now
	return &c
}

// Verify parses and validates a credential. An empty credential yields
// domain.ErrMissingCredential; any signature, algorithm, expiry or claim
// failure yields domain.ErrInvalidCredential.
func (v *TokenVerifier) Verify(credential string) (domain.Identity, error) {
	credential = strings.TrimSpace(credential)
	if credential == "" {
		return domain.Identity{}, domain.ErrMissingCredential
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(v.leeway),
		jwt.WithTimeFunc(v.now),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	var claims Claims
	token, err := jwt.ParseWithClaims(credential, &claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.secret, nil
	}, opts...)
	if err != nil {
		return domain.Identity{}, fmt.Errorf("%w: %w", domain.ErrInvalidCredential, err)
	}
	if !token.Valid {
		return domain.Identity{}, domain.ErrInvalidCredential
	}

	userID := claims.User.ID
	if userID == "" {
		userID = claims.Subject
	}
	if userID == "" {
		return domain.Identity{}, fmt.Errorf("%w: %w", domain.ErrInvalidCredential, errors.New("no identity claim"))
	}

	return domain.Identity{UserID: domain.UserID(userID)}, nil
}
