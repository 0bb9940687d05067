// Package rls manages the row-level-security authentication lifecycle for
// long-running analysis jobs. It is currently tailored to Supabase JWTs:
// access tokens are refreshed proactively so a job that outlives the token
// keeps executing under the caller's identity.
package rls

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/insightline/analyst-engine/pkg/apperrors"
)

// DefaultRefreshThreshold is how close to expiry an access token may get
// before it is refreshed.
const DefaultRefreshThreshold = 5 * time.Minute

// TokenPair is an access token and its companion refresh token.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// TokenManager validates and refreshes Supabase token pairs.
type TokenManager struct {
	supabaseURL      string
	anonKey          string
	refreshThreshold time.Duration
	httpClient       *http.Client
	logger           *zap.Logger
	now              func() time.Time
}

// NewTokenManager creates a TokenManager for the given Supabase project.
// supabaseURL is the project base URL (e.g. https://xyz.supabase.co) and
// anonKey is the anon key used for auth API calls.
func NewTokenManager(supabaseURL, anonKey string, refreshThreshold time.Duration, logger *zap.Logger) *TokenManager {
	if refreshThreshold <= 0 {
		refreshThreshold = DefaultRefreshThreshold
	}
	return &TokenManager{
		supabaseURL:      strings.TrimRight(supabaseURL, "/"),
		anonKey:          anonKey,
		refreshThreshold: refreshThreshold,
		httpClient:       &http.Client{Timeout: 10 * time.Second},
		logger:           logger.Named("rls"),
		now:              time.Now,
	}
}

// IsExpiringSoon reports whether the access token is expired or will expire
// within the refresh threshold. Unparseable tokens and tokens without an exp
// claim are treated as expiring.
func (m *TokenManager) IsExpiringSoon(accessToken string) bool {
	parser := jwt.NewParser(jwt.WithoutClaimsValidation())
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(accessToken, claims); err != nil {
		m.logger.Warn("failed to parse RLS access token", zap.Error(err))
		return true
	}

	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		m.logger.Warn("access token missing exp claim")
		return true
	}

	return exp.Time.Sub(m.now()) < m.refreshThreshold
}

// RefreshIfNeeded returns the current token pair unchanged when the access
// token still has headroom, and otherwise exchanges the refresh token for a
// fresh pair via the Supabase auth API.
func (m *TokenManager) RefreshIfNeeded(ctx context.Context, pair TokenPair) (TokenPair, error) {
	if pair.AccessToken == "" {
		return pair, fmt.Errorf("%w: access token required for refresh check", apperrors.ErrRLSRefresh)
	}

	if !m.IsExpiringSoon(pair.AccessToken) {
		return pair, nil
	}

	if pair.RefreshToken == "" {
		return pair, fmt.Errorf("%w: access token expired and no refresh token provided", apperrors.ErrRLSRefresh)
	}

	return m.refresh(ctx, pair)
}

type refreshResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

func (m *TokenManager) refresh(ctx context.Context, pair TokenPair) (TokenPair, error) {
	endpoint := m.supabaseURL + "/auth/v1/token?grant_type=refresh_token"

	body, err := json.Marshal(map[string]string{"refresh_token": pair.RefreshToken})
	if err != nil {
		return pair, fmt.Errorf("marshal refresh payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return pair, fmt.Errorf("create refresh request: %w", err)
	}
	req.Header.Set("apikey", m.anonKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return pair, fmt.Errorf("%w: %v", apperrors.ErrRLSRefresh, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 200))
		m.logger.Error("token refresh failed",
			zap.Int("status_code", resp.StatusCode),
			zap.String("detail", string(detail)))
		return pair, fmt.Errorf("%w: refresh endpoint returned status %d", apperrors.ErrRLSRefresh, resp.StatusCode)
	}

	var refreshed refreshResponse
	if err := json.NewDecoder(resp.Body).Decode(&refreshed); err != nil {
		return pair, fmt.Errorf("decode refresh response: %w", err)
	}

	if refreshed.AccessToken == "" {
		return pair, fmt.Errorf("%w: refresh response missing access_token", apperrors.ErrRLSRefresh)
	}
	if refreshed.RefreshToken == "" {
		refreshed.RefreshToken = pair.RefreshToken
	}

	m.logger.Info("access token refreshed")
	return TokenPair{
		AccessToken:  refreshed.AccessToken,
		RefreshToken: refreshed.RefreshToken,
	}, nil
}
