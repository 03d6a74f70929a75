package auth

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/devroom-io/devroom/internal/database"
	"github.com/devroom-io/devroom/internal/testutil"
	"github.com/golang-jwt/jwt"
	"github.com/stretchr/testify/assert"
)

var testSigningKey = []byte("some_secret")

// memDenylist is an in-memory Denylist for tests.
type memDenylist struct {
	mu      sync.Mutex
	revoked map[string]struct{}
	lookErr error
}

func (d *memDenylist) IsRevoked(ctx context.Context, token string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.lookErr != nil {
		return false, d.lookErr
	}
	_, ok := d.revoked[token]
	return ok, nil
}

func (d *memDenylist) Revoke(ctx context.Context, token string, ttl time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.revoked == nil {
		d.revoked = make(map[string]struct{})
	}
	d.revoked[token] = struct{}{}
	return nil
}

func newTestAuthenticator(t *testing.T, db database.Repository, denylist Denylist) *Authenticator {
	t.Helper()
	return NewAuthenticator(testutil.TestLogger(t), db, testSigningKey, denylist)
}

func TestValidRoomId(t *testing.T) {
	tcases := []struct {
		name  string
		id    string
		valid bool
	}{
		{name: "valid lowercase hex", id: "6617a3a6c8f1a20012f0aaaa", valid: true},
		{name: "valid mixed case hex", id: "6617A3a6C8f1a20012F0aaAA", valid: true},
		{name: "too short", id: "6617a3a6c8f1a20012f0aaa", valid: false},
		{name: "too long", id: "6617a3a6c8f1a20012f0aaaa0", valid: false},
		{name: "non-hex characters", id: "6617a3a6c8f1a20012f0zzzz", valid: false},
		{name: "empty", id: "", valid: false},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.valid, ValidRoomId(tc.id), "expected ValidRoomId(%q) to be %t", tc.id, tc.valid)
		})
	}
}

func TestAdmit(t *testing.T) {
	account := database.Account{Id: "6617a3a6c8f1a20012f00001", Email: "testuser@example.com"}
	project := database.Project{Id: "6617a3a6c8f1a20012f0aaaa", Name: "testproject", OwnerId: account.Id}

	t.Run("invalid room id reported first", func(t *testing.T) {
		db := &database.MockRepository{}
		defer db.AssertExpectations(t)

		a := newTestAuthenticator(t, db, nil)

		// even with a garbage credential the room id failure wins
		_, _, err := a.Admit(context.Background(), "not-a-token", "not-a-room")
		assert.ErrorIs(t, err, ErrInvalidRoomId, "expected invalid room id error")
		db.AssertNotCalled(t, "GetProjectById")
	})

	t.Run("room not found", func(t *testing.T) {
		db := &database.MockRepository{}
		defer db.AssertExpectations(t)
		db.On("GetProjectById", project.Id).Return(database.Project{}, sql.ErrNoRows).Once()

		a := newTestAuthenticator(t, db, nil)

		_, _, err := a.Admit(context.Background(), "not-a-token", project.Id)
		assert.ErrorIs(t, err, ErrRoomNotFound, "expected room not found error")
	})

	t.Run("database error is not room not found", func(t *testing.T) {
		db := &database.MockRepository{}
		defer db.AssertExpectations(t)
		db.On("GetProjectById", project.Id).Return(database.Project{}, errors.New("db error")).Once()

		a := newTestAuthenticator(t, db, nil)

		_, _, err := a.Admit(context.Background(), "not-a-token", project.Id)
		assert.Error(t, err, "expected error")
		assert.NotErrorIs(t, err, ErrRoomNotFound, "expected db errors to not map to room not found")
	})

	t.Run("missing credential after room resolves", func(t *testing.T) {
		db := &database.MockRepository{}
		defer db.AssertExpectations(t)
		db.On("GetProjectById", project.Id).Return(project, nil).Once()

		a := newTestAuthenticator(t, db, nil)

		_, _, err := a.Admit(context.Background(), "", project.Id)
		assert.ErrorIs(t, err, ErrMissingCredential, "expected missing credential error")
	})

	t.Run("invalid credential", func(t *testing.T) {
		db := &database.MockRepository{}
		defer db.AssertExpectations(t)
		db.On("GetProjectById", project.Id).Return(project, nil).Once()

		a := newTestAuthenticator(t, db, nil)

		_, _, err := a.Admit(context.Background(), "not-a-token", project.Id)
		assert.ErrorIs(t, err, ErrInvalidCredential, "expected invalid credential error")
	})

	t.Run("successful admission", func(t *testing.T) {
		db := &database.MockRepository{}
		defer db.AssertExpectations(t)
		db.On("GetProjectById", project.Id).Return(project, nil).Once()

		a := newTestAuthenticator(t, db, nil)
		token, err := a.CreateToken(account)
		assert.NoError(t, err, "expected token to be created")

		identity, gotProject, err := a.Admit(context.Background(), token, project.Id)
		assert.NoError(t, err, "expected successful admission")
		assert.Equal(t, account.Id, identity.Id, "expected identity id to match account")
		assert.Equal(t, account.Email, identity.Email, "expected identity email to match account")
		assert.Equal(t, project, gotProject, "expected resolved project to match")
	})
}

func TestCreateToken_VerifyToken(t *testing.T) {
	account := database.Account{Id: "6617a3a6c8f1a20012f00001", Email: "testuser@example.com"}

	t.Run("round trip", func(t *testing.T) {
		a := newTestAuthenticator(t, &database.MockRepository{}, nil)

		token, err := a.CreateToken(account)
		assert.NoError(t, err, "expected token to be created")

		identity, err := a.VerifyToken(context.Background(), token)
		assert.NoError(t, err, "expected token to verify")
		assert.Equal(t, account.Id, identity.Id, "expected identity id to match")
		assert.Equal(t, account.Email, identity.Email, "expected identity email to match")
	})

	t.Run("expired token", func(t *testing.T) {
		a := newTestAuthenticator(t, &database.MockRepository{}, nil)
		a.tokenTTL = -time.Hour

		token, err := a.CreateToken(account)
		assert.NoError(t, err, "expected token to be created")

		_, err = a.VerifyToken(context.Background(), token)
		assert.ErrorIs(t, err, ErrInvalidCredential, "expected expired token to be rejected")
	})

	t.Run("token signed with a different key", func(t *testing.T) {
		other := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
			"id":    account.Id,
			"email": account.Email,
			"exp":   time.Now().Add(time.Hour).Unix(),
		})
		tokenString, err := other.SignedString([]byte("another_secret"))
		assert.NoError(t, err, "expected token to be signed")

		a := newTestAuthenticator(t, &database.MockRepository{}, nil)
		_, err = a.VerifyToken(context.Background(), tokenString)
		assert.ErrorIs(t, err, ErrInvalidCredential, "expected token with wrong signature to be rejected")
	})

	t.Run("token missing id claim", func(t *testing.T) {
		noId := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
			"email": account.Email,
			"exp":   time.Now().Add(time.Hour).Unix(),
		})
		tokenString, err := noId.SignedString(testSigningKey)
		assert.NoError(t, err, "expected token to be signed")

		a := newTestAuthenticator(t, &database.MockRepository{}, nil)
		_, err = a.VerifyToken(context.Background(), tokenString)
		assert.ErrorIs(t, err, ErrInvalidCredential, "expected token without id claim to be rejected")
	})

	t.Run("token missing expiry claim", func(t *testing.T) {
		noExp := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
			"id":    account.Id,
			"email": account.Email,
		})
		tokenString, err := noExp.SignedString(testSigningKey)
		assert.NoError(t, err, "expected token to be signed")

		a := newTestAuthenticator(t, &database.MockRepository{}, nil)
		_, err = a.VerifyToken(context.Background(), tokenString)
		assert.ErrorIs(t, err, ErrInvalidCredential, "expected token without expiry claim to be rejected")
	})
}

func TestRevokeToken(t *testing.T) {
	account := database.Account{Id: "6617a3a6c8f1a20012f00001", Email: "testuser@example.com"}

	t.Run("revoked token fails verification", func(t *testing.T) {
		denylist := &memDenylist{}
		a := newTestAuthenticator(t, &database.MockRepository{}, denylist)

		token, err := a.CreateToken(account)
		assert.NoError(t, err, "expected token to be created")

		_, err = a.VerifyToken(context.Background(), token)
		assert.NoError(t, err, "expected fresh token to verify")

		err = a.RevokeToken(context.Background(), token)
		assert.NoError(t, err, "expected revocation to succeed")

		_, err = a.VerifyToken(context.Background(), token)
		assert.ErrorIs(t, err, ErrInvalidCredential, "expected revoked token to be rejected")
	})

	t.Run("denylist lookup failure does not reject token", func(t *testing.T) {
		denylist := &memDenylist{lookErr: errors.New("redis unavailable")}
		a := newTestAuthenticator(t, &database.MockRepository{}, denylist)

		token, err := a.CreateToken(account)
		assert.NoError(t, err, "expected token to be created")

		_, err = a.VerifyToken(context.Background(), token)
		assert.NoError(t, err, "expected token to verify when the denylist is unreachable")
	})

	t.Run("no denylist configured", func(t *testing.T) {
		a := newTestAuthenticator(t, &database.MockRepository{}, nil)

		token, err := a.CreateToken(account)
		assert.NoError(t, err, "expected token to be created")

		assert.NoError(t, a.RevokeToken(context.Background(), token), "expected revocation to be a no-op")
	})
}
