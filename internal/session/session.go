package session

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/filmclub/cinema-service/internal/storage"
)

var (
	// ErrNoSession means no session slot exists for the user at all.
	ErrNoSession = errors.New("missing session")
	// ErrInvalidToken means a session exists but the presented token does
	// not match it. Both errors require the caller to re-bootstrap.
	ErrInvalidToken = errors.New("invalid token")
	// ErrNicknameMismatch means the user id already belongs to a profile
	// with a different nickname.
	ErrNicknameMismatch = errors.New("nickname does not match existing profile")
)

// Authority issues and validates the per-user bearer tokens gating writes
// to user-owned resources. Each user has a single token slot; issuing a new
// token invalidates the previous one.
type Authority struct {
	store  *storage.Store
	secret []byte
	now    func() time.Time
}

func NewAuthority(store *storage.Store, secret string) *Authority {
	return &Authority{
		store:  store,
		secret: []byte(secret),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Bootstrap issues a fresh token for the user. If a profile already exists
// for the id, its nickname must match case-insensitively, otherwise the id
// is considered claimed by someone else.
func (a *Authority) Bootstrap(userID int, nickname string) (string, error) {
	if userID <= 0 {
		return "", fmt.Errorf("invalid user id %d", userID)
	}
	if nickname == "" {
		return "", errors.New("nickname is required")
	}

	if profile, ok := a.store.Profile(userID); ok && !strings.EqualFold(profile.Nickname, nickname) {
		return "", ErrNicknameMismatch
	}

	token, err := a.mint(userID)
	if err != nil {
		return "", err
	}
	if err := a.store.SetSession(userID, token); err != nil {
		return "", err
	}
	return token, nil
}

// Validate succeeds iff a session exists for the user and the presented
// token equals the stored one.
func (a *Authority) Validate(userID int, presented string) error {
	sess, ok := a.store.Session(userID)
	if !ok {
		return ErrNoSession
	}
	if sess.Token != presented {
		return ErrInvalidToken
	}
	return nil
}

// SyncAuthorize is the profile-sync recovery path: a stale or missing token
// is forgiven when the presented nickname still matches the stored profile
// (or no profile exists yet), in which case a fresh token is issued. This
// lets a client with a wiped token store keep its identity. Any other
// mismatch propagates the validation error unchanged.
func (a *Authority) SyncAuthorize(userID int, nickname, presented string) (token string, refreshed bool, err error) {
	vErr := a.Validate(userID, presented)
	if vErr == nil {
		return presented, false, nil
	}

	profile, ok := a.store.Profile(userID)
	if !ok || strings.EqualFold(profile.Nickname, nickname) {
		fresh, bErr := a.Bootstrap(userID, nickname)
		if bErr != nil {
			return "", false, bErr
		}
		return fresh, true, nil
	}

	return "", false, vErr
}

// mint produces the opaque bearer token. Signed claims make tokens
// self-describing for debugging, but validation is always equality against
// the stored slot, never signature verification alone.
func (a *Authority) mint(userID int) (string, error) {
	claims := jwt.RegisteredClaims{
		Subject:  strconv.Itoa(userID),
		IssuedAt: jwt.NewNumericDate(a.now()),
		ID:       uuid.NewString(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return token, nil
}
