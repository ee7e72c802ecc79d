package viewer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/LanceGerbec/ConServe-Repository-sub001/internal/guard"
)

var (
	// ErrAccessDenied covers every authorization failure. The gateway never
	// says which one; neither do we.
	ErrAccessDenied = errors.New("access denied")
	// ErrDocumentNotFound means the file is gone on the server; retrying
	// cannot help.
	ErrDocumentNotFound = errors.New("file not found on server")
)

// TransportError marks fetch failures where a manual retry may help
// (network errors, 5xx responses, empty bodies). The subsystem never
// retries automatically.
type TransportError struct {
	err error
}

func (e *TransportError) Error() string { return "transport error: " + e.err.Error() }
func (e *TransportError) Unwrap() error { return e.err }

// IsRetryable reports whether the error is in the retryable transport class.
func IsRetryable(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// ViewGrant is the issuance response: the capability token plus the endpoint
// path to fetch bytes through.
type ViewGrant struct {
	Token     string `json:"token"`
	FetchPath string `json:"fetch_path"`
}

// Client talks to the token-issuance and fetch-gateway endpoints. The bearer
// credential comes from the surrounding auth system; losing either the
// bearer or the capability token alone is insufficient to fetch bytes.
type Client struct {
	baseURL string
	bearer  string
	http    *http.Client
	logger  *zap.Logger
}

// NewClient creates a gateway client.
func NewClient(baseURL, bearer string, logger *zap.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		bearer:  bearer,
		http:    &http.Client{Timeout: 30 * time.Second},
		logger:  logger,
	}
}

// RequestToken asks for a capability token for the given research record.
func (c *Client) RequestToken(ctx context.Context, recordID string) (ViewGrant, error) {
	u := fmt.Sprintf("%s/api/v1/research/%s/view-token", c.baseURL, url.PathEscape(recordID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, nil)
	if err != nil {
		return ViewGrant{}, err
	}
	req.Header.Set("Authorization", "Bearer "+c.bearer)

	resp, err := c.http.Do(req)
	if err != nil {
		return ViewGrant{}, &TransportError{err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusUnauthorized:
		c.logger.Warn("token request denied", zap.Int("status", resp.StatusCode))
		return ViewGrant{}, ErrAccessDenied
	case resp.StatusCode == http.StatusNotFound:
		return ViewGrant{}, ErrDocumentNotFound
	default:
		c.logger.Warn("token request failed", zap.Int("status", resp.StatusCode))
		return ViewGrant{}, &TransportError{err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}

	var grant ViewGrant
	if err := json.NewDecoder(resp.Body).Decode(&grant); err != nil {
		return ViewGrant{}, &TransportError{err: fmt.Errorf("decode grant: %w", err)}
	}
	return grant, nil
}

// FetchDocument streams the raw document bytes through the gateway. The
// token travels as a query parameter and the bearer in the header.
func (c *Client) FetchDocument(ctx context.Context, capabilityToken string) ([]byte, string, error) {
	u := c.baseURL + "/api/v1/documents/view?token=" + url.QueryEscape(capabilityToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, "", err
	}
	req.Header.Set("Authorization", "Bearer "+c.bearer)

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Warn("document fetch transport failure", zap.Error(err))
		return nil, "", &TransportError{err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusUnauthorized:
		c.logger.Warn("document fetch denied", zap.Int("status", resp.StatusCode))
		return nil, "", ErrAccessDenied
	case resp.StatusCode == http.StatusNotFound:
		c.logger.Warn("document missing on server")
		return nil, "", ErrDocumentNotFound
	default:
		c.logger.Warn("document fetch failed", zap.Int("status", resp.StatusCode))
		return nil, "", &TransportError{err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", &TransportError{err: err}
	}
	if len(data) == 0 {
		return nil, "", &TransportError{err: errors.New("empty response body")}
	}
	return data, resp.Header.Get("Content-Type"), nil
}

// ReportViolation posts one caught action to the violation endpoint. The
// server binds the report to the token's verified identifiers, not to
// anything the client claims.
func (c *Client) ReportViolation(ctx context.Context, capabilityToken string, t guard.ViolationType) error {
	body, err := json.Marshal(map[string]string{
		"token":          capabilityToken,
		"violation_type": string(t),
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/documents/violations", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.bearer)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return &TransportError{err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("violation report rejected: status %d", resp.StatusCode)
	}
	return nil
}
