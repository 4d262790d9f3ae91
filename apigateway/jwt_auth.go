package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	firebaseauth "firebase.google.com/go/v4/auth"
	"github.com/golang-jwt/jwt/v5"
)

const jwtIssuer = "lumina"

// JWTAuth issues and verifies HS256 tokens for the local identity mode.
type JWTAuth struct {
	Key []byte
	TTL time.Duration
}

// TokenClaims is the payload of a local token. The subject is the user's uid.
type TokenClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

func NewJWTAuth(secret string, ttl time.Duration) (*JWTAuth, error) {
	if secret == "" {
		return nil, errors.New("empty jwt key")
	}
	if ttl <= 0 {
		ttl = 3 * time.Hour
	}
	return &JWTAuth{Key: []byte(secret), TTL: ttl}, nil
}

// GenerateJWT signs a token for uid.
func (j *JWTAuth) GenerateJWT(uid, email string) (string, error) {
	if len(j.Key) == 0 {
		return "", errors.New("empty jwt key")
	}
	now := time.Now().UTC()
	claims := TokenClaims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   uid,
			Issuer:    jwtIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(j.TTL)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(j.Key)
}

// VerifyJWT validates signature, issuer and expiry.
func (j *JWTAuth) VerifyJWT(tokenString string) (*TokenClaims, error) {
	claims := &TokenClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return j.Key, nil
	}, jwt.WithIssuer(jwtIssuer), jwt.WithExpirationRequired())
	if err != nil {
		return nil, err
	}
	if !token.Valid || claims.Subject == "" {
		return nil, errors.New("token is invalid")
	}
	return claims, nil
}

func (j *JWTAuth) Verify(_ context.Context, token string) (*Identity, error) {
	claims, err := j.VerifyJWT(token)
	if err != nil {
		return nil, err
	}
	return &Identity{UID: claims.Subject, Email: claims.Email}, nil
}

// FirebaseVerifier checks Firebase ID tokens.
type FirebaseVerifier struct {
	Client *firebaseauth.Client
}

func (f *FirebaseVerifier) Verify(ctx context.Context, token string) (*Identity, error) {
	decoded, err := f.Client.VerifyIDToken(ctx, token)
	if err != nil {
		return nil, err
	}
	id := &Identity{UID: decoded.UID}
	if email, ok := decoded.Claims["email"].(string); ok {
		id.Email = email
	}
	return id, nil
}
