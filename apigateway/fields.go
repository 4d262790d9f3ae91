package gateway

import (
	"context"
	"errors"
	"strings"

	firebaseauth "firebase.google.com/go/v4/auth"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// IdentityProvider owns the credentials of platform users. CreateUser
// returns the new uid and, for providers that keep no password themselves,
// the hash to store with the user record.
type IdentityProvider interface {
	CreateUser(ctx context.Context, email, password string) (uid, passwordHash string, err error)
	DeleteUser(ctx context.Context, uid string) error
}

const bcryptCost = 10

// HashPassword hashes a local identity's password.
func HashPassword(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// CheckPassword reports whether password matches hash.
func CheckPassword(hash, password string) bool {
	if hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// LocalIdentities creates users whose credentials live in the store.
type LocalIdentities struct{}

func (LocalIdentities) CreateUser(_ context.Context, email, password string) (string, string, error) {
	if strings.TrimSpace(email) == "" {
		return "", "", errors.New("email is required")
	}
	hash, err := HashPassword(password)
	if err != nil {
		return "", "", err
	}
	return uuid.NewString(), hash, nil
}

func (LocalIdentities) DeleteUser(context.Context, string) error {
	return nil
}

// FirebaseIdentities manages users in Firebase Authentication.
type FirebaseIdentities struct {
	Client *firebaseauth.Client
}

func (f *FirebaseIdentities) CreateUser(ctx context.Context, email, password string) (string, string, error) {
	params := (&firebaseauth.UserToCreate{}).Email(email).Password(password)
	rec, err := f.Client.CreateUser(ctx, params)
	if err != nil {
		return "", "", err
	}
	return rec.UID, "", nil
}

// DeleteUser treats an already deleted identity as success.
func (f *FirebaseIdentities) DeleteUser(ctx context.Context, uid string) error {
	err := f.Client.DeleteUser(ctx, uid)
	if err != nil && firebaseauth.IsUserNotFound(err) {
		return nil
	}
	return err
}
