package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"regexp"
	"time"

	"github.com/devroom-io/devroom/internal/database"
	"github.com/golang-jwt/jwt"
)

// Admission failures, in the order the checks run. All are fatal to the
// connection attempt.
var (
	ErrInvalidRoomId     = errors.New("invalid room id")
	ErrRoomNotFound      = errors.New("room not found")
	ErrMissingCredential = errors.New("missing credential")
	ErrInvalidCredential = errors.New("invalid credential")
)

const (
	idClaim    = "id"
	emailClaim = "email"
	expClaim   = "exp"
)

// DefaultTokenTTL is how long issued session tokens stay valid.
const DefaultTokenTTL = 24 * time.Hour

var roomIdPattern = regexp.MustCompile(`^[0-9a-fA-F]{24}$`)

// ValidRoomId reports whether id is a syntactically valid project identifier.
func ValidRoomId(id string) bool {
	return roomIdPattern.MatchString(id)
}

// Identity is the decoded, server-verified identity of a participant.
type Identity struct {
	Id    string
	Email string
}

// Denylist holds revoked tokens until they expire. Implemented by
// cache.TokenDenylist; a nil Denylist disables revocation checks.
type Denylist interface {
	IsRevoked(ctx context.Context, token string) (bool, error)
	Revoke(ctx context.Context, token string, ttl time.Duration) error
}

// Authenticator admits connection attempts to project rooms and mints the
// session tokens it later verifies.
type Authenticator struct {
	log        *log.Logger
	db         database.Repository
	signingKey []byte
	denylist   Denylist
	tokenTTL   time.Duration
}

func NewAuthenticator(logger *log.Logger, db database.Repository, signingKey []byte, denylist Denylist) *Authenticator {
	return &Authenticator{
		log:        logger,
		db:         db,
		signingKey: signingKey,
		denylist:   denylist,
		tokenTTL:   DefaultTokenTTL,
	}
}

// Admit validates a connection attempt against the target room. The checks
// run in a fixed order and the first failure wins: room id syntax, room
// existence, credential presence, credential validity. On success it returns
// the verified identity and the resolved project; no state is written.
func (a *Authenticator) Admit(ctx context.Context, token, roomId string) (Identity, database.Project, error) {
	if !ValidRoomId(roomId) {
		return Identity{}, database.Project{}, fmt.Errorf("%w: %q", ErrInvalidRoomId, roomId)
	}

	project, err := a.db.GetProjectById(roomId)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Identity{}, database.Project{}, fmt.Errorf("%w: %q", ErrRoomNotFound, roomId)
		}
		return Identity{}, database.Project{}, fmt.Errorf("resolve room %q: %w", roomId, err)
	}

	if token == "" {
		return Identity{}, database.Project{}, ErrMissingCredential
	}

	identity, err := a.VerifyToken(ctx, token)
	if err != nil {
		return Identity{}, database.Project{}, err
	}

	return identity, project, nil
}

// CreateToken mints a signed session token for the account.
func (a *Authenticator) CreateToken(account database.Account) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		idClaim:    account.Id,
		emailClaim: account.Email,
		expClaim:   time.Now().Add(a.tokenTTL).Unix(),
	})

	return token.SignedString(a.signingKey)
}

// VerifyToken checks signature, expiry and revocation, returning the
// identity carried in the claims. Any failure maps to ErrInvalidCredential.
func (a *Authenticator) VerifyToken(ctx context.Context, tokenString string) (Identity, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return a.signingKey, nil
	})
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidCredential, err)
	}
	if !token.Valid {
		return Identity{}, ErrInvalidCredential
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return Identity{}, fmt.Errorf("%w: unexpected claims type", ErrInvalidCredential)
	}

	id, _ := claims[idClaim].(string)
	email, _ := claims[emailClaim].(string)
	if id == "" {
		return Identity{}, fmt.Errorf("%w: missing id claim", ErrInvalidCredential)
	}
	if _, ok := claims[expClaim]; !ok {
		return Identity{}, fmt.Errorf("%w: missing expiry claim", ErrInvalidCredential)
	}

	if a.denylist != nil {
		revoked, err := a.denylist.IsRevoked(ctx, tokenString)
		if err != nil {
			a.log.Printf("denylist lookup: %v", err)
		} else if revoked {
			return Identity{}, fmt.Errorf("%w: token revoked", ErrInvalidCredential)
		}
	}

	return Identity{Id: id, Email: email}, nil
}

// RevokeToken denylists the token for its remaining lifetime. A no-op when
// no denylist is configured.
func (a *Authenticator) RevokeToken(ctx context.Context, tokenString string) error {
	if a.denylist == nil {
		return nil
	}

	ttl, err := a.tokenRemaining(tokenString)
	if err != nil {
		return err
	}

	return a.denylist.Revoke(ctx, tokenString, ttl)
}

func (a *Authenticator) tokenRemaining(tokenString string) (time.Duration, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		return a.signingKey, nil
	})
	if err != nil {
		return 0, fmt.Errorf("parse token: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return 0, fmt.Errorf("unexpected claims type")
	}

	exp, ok := claims[expClaim].(float64)
	if !ok {
		return 0, fmt.Errorf("missing expiry claim")
	}

	return time.Until(time.Unix(int64(exp), 0)), nil
}
