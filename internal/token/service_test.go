package token

import (
	"bytes"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

var testBase = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestService(t *testing.T) (*Service, *fakeClock) {
	t.Helper()
	clock := &fakeClock{t: testBase}
	svc, err := NewService(bytes.Repeat([]byte{0x2a}, 32), WithClock(clock.Now))
	require.NoError(t, err)
	return svc, clock
}

func TestIssueAndVerify(t *testing.T) {
	svc, _ := newTestService(t)

	tok, err := svc.Issue("doc-1.pdf", "jdoe@example.edu")
	require.NoError(t, err)
	require.NotEmpty(t, tok)

	grant, err := svc.Verify(tok)
	require.NoError(t, err)
	require.Equal(t, "doc-1.pdf", grant.FileID)
	require.Equal(t, "jdoe@example.edu", grant.ViewerID)
}

func TestIssueRequiresIdentifiers(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Issue("", "jdoe@example.edu")
	require.Error(t, err)
	_, err = svc.Issue("doc-1.pdf", "")
	require.Error(t, err)
}

func TestExpiryBoundary(t *testing.T) {
	svc, clock := newTestService(t)

	tok, err := svc.Issue("doc-1.pdf", "jdoe@example.edu")
	require.NoError(t, err)

	clock.Set(testBase.Add(59 * time.Minute))
	_, err = svc.Verify(tok)
	require.NoError(t, err, "token must still verify at issuedAt+59m")

	clock.Set(testBase.Add(61 * time.Minute))
	_, err = svc.Verify(tok)
	require.ErrorIs(t, err, ErrExpired, "token must fail at issuedAt+61m")
}

func TestWrongPurposeRejected(t *testing.T) {
	svc, _ := newTestService(t)

	// A token from another signed-token flow: same key, valid signature,
	// different purpose tag.
	claims := capabilityClaims{
		FileID:   "doc-1.pdf",
		ViewerID: "jdoe@example.edu",
		Purpose:  "qr-share",
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(testBase),
			ExpiresAt: jwt.NewNumericDate(testBase.Add(TTL)),
		},
	}
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(svc.key)
	require.NoError(t, err)

	grant, err := svc.Verify(raw)
	require.ErrorIs(t, err, ErrWrongPurpose)
	require.Equal(t, "doc-1.pdf", grant.FileID, "denial must stay attributable")
	require.Equal(t, "jdoe@example.edu", grant.ViewerID)
}

func TestExpiredTokenKeepsAttribution(t *testing.T) {
	svc, clock := newTestService(t)

	tok, err := svc.Issue("doc-1.pdf", "jdoe@example.edu")
	require.NoError(t, err)

	clock.Set(testBase.Add(2 * time.Hour))
	grant, err := svc.Verify(tok)
	require.ErrorIs(t, err, ErrExpired)
	require.Equal(t, "doc-1.pdf", grant.FileID)
	require.Equal(t, "jdoe@example.edu", grant.ViewerID)
}

func TestGarbledTokenRejected(t *testing.T) {
	svc, _ := newTestService(t)

	for _, raw := range []string{"", "garbage", "a.b.c", "header.payload"} {
		_, err := svc.Verify(raw)
		require.ErrorIs(t, err, ErrInvalidToken, "raw=%q", raw)
	}
}

func TestForeignSignatureRejected(t *testing.T) {
	svc, _ := newTestService(t)
	otherClock := &fakeClock{t: testBase}
	other, err := NewService(bytes.Repeat([]byte{0x7f}, 32), WithClock(otherClock.Now))
	require.NoError(t, err)

	tok, err := other.Issue("doc-1.pdf", "jdoe@example.edu")
	require.NoError(t, err)

	_, err = svc.Verify(tok)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestDecodeMasterKey(t *testing.T) {
	_, err := DecodeMasterKey("zz")
	require.ErrorIs(t, err, ErrInvalidMasterKey)

	_, err = DecodeMasterKey("abcd")
	require.ErrorIs(t, err, ErrInvalidMasterKey)

	key, err := DecodeMasterKey("2a2a2a2a2a2a2a2a2a2a2a2a2a2a2a2a2a2a2a2a2a2a2a2a2a2a2a2a2a2a2a2a")
	require.NoError(t, err)
	require.Len(t, key, 32)
}

func TestVerifyDistinguishesFailureModes(t *testing.T) {
	svc, clock := newTestService(t)

	tok, err := svc.Issue("doc-1.pdf", "jdoe@example.edu")
	require.NoError(t, err)

	clock.Set(testBase.Add(2 * time.Hour))
	_, expiredErr := svc.Verify(tok)
	_, invalidErr := svc.Verify("garbage")

	require.ErrorIs(t, expiredErr, ErrExpired)
	require.ErrorIs(t, invalidErr, ErrInvalidToken)
	require.False(t, errors.Is(expiredErr, ErrInvalidToken))
	require.False(t, errors.Is(invalidErr, ErrExpired))
}
