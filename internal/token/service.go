package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	// ErrInvalidToken is returned for malformed, garbled or wrongly signed
	// tokens.
	ErrInvalidToken = errors.New("invalid token")
	// ErrWrongPurpose is returned when the signature is valid but the purpose
	// claim does not match this flow. It signals token confusion or misuse.
	ErrWrongPurpose = errors.New("wrong token purpose")
	// ErrExpired is returned when the signature is valid but the token's
	// validity window has passed.
	ErrExpired = errors.New("token expired")
)

// Purpose is the fixed purpose tag for document-access capability tokens.
// Tokens minted by other signed-token flows in the system carry a different
// tag and must never verify here.
const Purpose = "document-access"

// TTL is the fixed validity window: expiry is always issuance + 1 hour.
// The window is short enough that no revocation list is kept; all
// verification funnels through Verify so a deny-list check can be added
// there without an API change.
const TTL = time.Hour

// Grant is the verified binding carried by a capability token.
type Grant struct {
	FileID   string
	ViewerID string
}

type capabilityClaims struct {
	FileID   string `json:"file_id"`
	ViewerID string `json:"viewer_id"`
	Purpose  string `json:"purpose"`
	jwt.RegisteredClaims
}

// Service mints and verifies single-file, single-viewer capability tokens.
type Service struct {
	key []byte
	now func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source (tests).
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService derives the signing key from the master key and returns a
// ready-to-use token service.
func NewService(masterKey []byte, opts ...Option) (*Service, error) {
	key, err := DeriveSigningKey(masterKey)
	if err != nil {
		return nil, err
	}
	s := &Service{key: key, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Issue mints a token granting the viewer access to exactly one file for one
// hour. It has no side effects beyond constructing the token.
func (s *Service) Issue(fileID, viewerID string) (string, error) {
	if fileID == "" || viewerID == "" {
		return "", fmt.Errorf("issue token: file and viewer ids are required")
	}
	issuedAt := s.now().UTC()
	claims := capabilityClaims{
		FileID:   fileID,
		ViewerID: viewerID,
		Purpose:  Purpose,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(TTL)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
}

// Verify checks the token and returns the (file, viewer) pair it is bound to.
// The three failure modes are distinguishable so the caller can log the real
// reason; the viewer-facing response must stay a generic denial regardless.
//
// On ErrExpired and ErrWrongPurpose the signature checked out, so the parsed
// identifiers are returned alongside the error to keep denials attributable
// in the audit trail. Such a grant never authorizes access.
//
// Expiry uses zero leeway: capability tokens are minted and consumed by our
// own components, so there is no cross-host clock skew to absorb.
func (s *Service) Verify(raw string) (Grant, error) {
	parsed, err := jwt.ParseWithClaims(raw, &capabilityClaims{},
		func(t *jwt.Token) (any, error) { return s.key, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return parsedGrant(parsed), ErrExpired
		}
		return Grant{}, ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*capabilityClaims)
	if !ok || !parsed.Valid {
		return Grant{}, ErrInvalidToken
	}
	if claims.Purpose != Purpose {
		return Grant{FileID: claims.FileID, ViewerID: claims.ViewerID}, ErrWrongPurpose
	}
	if claims.FileID == "" || claims.ViewerID == "" {
		return Grant{}, ErrInvalidToken
	}
	return Grant{FileID: claims.FileID, ViewerID: claims.ViewerID}, nil
}

// parsedGrant pulls the identifiers out of a token that parsed but failed
// validation.
func parsedGrant(parsed *jwt.Token) Grant {
	if parsed == nil {
		return Grant{}
	}
	claims, ok := parsed.Claims.(*capabilityClaims)
	if !ok {
		return Grant{}
	}
	return Grant{FileID: claims.FileID, ViewerID: claims.ViewerID}
}
