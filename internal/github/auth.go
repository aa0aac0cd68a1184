package github

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const defaultAPIBase = "https://api.github.com"

// tokenSlack renews installation tokens this long before they expire.
const tokenSlack = time.Minute

// AuthProvider hands out a token that can act on repo ("owner/name").
type AuthProvider interface {
	GetInstallationToken(repo string) (*InstallationToken, error)
}

// InstallationToken represents a GitHub App installation access token
type InstallationToken struct {
	Token     string
	ExpiresAt time.Time
}

// StaticToken is an AuthProvider for a personal access token.
type StaticToken string

func (t StaticToken) GetInstallationToken(string) (*InstallationToken, error) {
	return &InstallationToken{Token: string(t)}, nil
}

// AppAuth mints installation tokens for a GitHub App and caches them per owner.
type AppAuth struct {
	AppID      string
	PrivateKey string
	// BaseURL overrides https://api.github.com.
	BaseURL    string
	HTTPClient *http.Client

	mu     sync.Mutex
	tokens map[string]*InstallationToken
	now    func() time.Time
}

// GenerateJWT creates a JWT token for GitHub App authentication
func (a *AppAuth) GenerateJWT() (string, error) {
	key, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(a.PrivateKey))
	if err != nil {
		return "", fmt.Errorf("failed to parse private key: %w", err)
	}

	appID, err := strconv.ParseInt(a.AppID, 10, 64)
	if err != nil {
		return "", fmt.Errorf("invalid app ID: %w", err)
	}

	// Backdate iat to absorb clock drift between us and GitHub.
	now := a.clock()
	claims := jwt.RegisteredClaims{
		IssuedAt:  jwt.NewNumericDate(now.Add(-30 * time.Second)),
		ExpiresAt: jwt.NewNumericDate(now.Add(9 * time.Minute)),
		Issuer:    strconv.FormatInt(appID, 10),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	signedToken, err := token.SignedString(key)
	if err != nil {
		return "", fmt.Errorf("failed to sign JWT: %w", err)
	}
	return signedToken, nil
}

// GetInstallationToken returns a cached or freshly minted installation token
// for the installation that covers repo.
func (a *AppAuth) GetInstallationToken(repo string) (*InstallationToken, error) {
	owner, name, err := SplitRepo(repo)
	if err != nil {
		return nil, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if tok, ok := a.tokens[owner]; ok && a.clock().Add(tokenSlack).Before(tok.ExpiresAt) {
		return tok, nil
	}

	jwtToken, err := a.GenerateJWT()
	if err != nil {
		return nil, err
	}
	installationID, err := a.getInstallationID(jwtToken, owner, name)
	if err != nil {
		return nil, err
	}
	tok, err := a.getInstallationAccessToken(jwtToken, installationID)
	if err != nil {
		return nil, err
	}

	if a.tokens == nil {
		a.tokens = make(map[string]*InstallationToken)
	}
	a.tokens[owner] = tok
	return tok, nil
}

func (a *AppAuth) clock() time.Time {
	if a.now != nil {
		return a.now()
	}
	return time.Now()
}

func (a *AppAuth) apiBase() string {
	if a.BaseURL != "" {
		return strings.TrimRight(a.BaseURL, "/")
	}
	return defaultAPIBase
}

func (a *AppAuth) client() *http.Client {
	if a.HTTPClient != nil {
		return a.HTTPClient
	}
	return &http.Client{Timeout: 10 * time.Second}
}

func (a *AppAuth) appRequest(method, url, jwtToken string) (*http.Response, error) {
	req, err := http.NewRequest(method, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+jwtToken)
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
	return a.client().Do(req)
}

// getInstallationID retrieves the installation ID for a repository
func (a *AppAuth) getInstallationID(jwtToken, owner, repo string) (int64, error) {
	resp, err := a.appRequest(http.MethodGet, fmt.Sprintf("%s/repos/%s/%s/installation", a.apiBase(), owner, repo), jwtToken)
	if err != nil {
		return 0, fmt.Errorf("failed to get installation: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return 0, fmt.Errorf("GitHub API error: %d - %s", resp.StatusCode, string(body))
	}

	var result struct {
		ID int64 `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return 0, fmt.Errorf("failed to decode response: %w", err)
	}
	return result.ID, nil
}

// getInstallationAccessToken retrieves an installation access token
func (a *AppAuth) getInstallationAccessToken(jwtToken string, installationID int64) (*InstallationToken, error) {
	resp, err := a.appRequest(http.MethodPost, fmt.Sprintf("%s/app/installations/%d/access_tokens", a.apiBase(), installationID), jwtToken)
	if err != nil {
		return nil, fmt.Errorf("failed to get access token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("GitHub API error: %d - %s", resp.StatusCode, string(body))
	}

	var result struct {
		Token     string    `json:"token"`
		ExpiresAt time.Time `json:"expires_at"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return &InstallationToken{
		Token:     result.Token,
		ExpiresAt: result.ExpiresAt,
	}, nil
}

// authTransport injects the token for the repository named in the request path.
type authTransport struct {
	auth AuthProvider
	base http.RoundTripper
}

func (t *authTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	repo, ok := repoFromPath(req.URL.Path)
	if !ok {
		return nil, fmt.Errorf("cannot authenticate request to %s: no repository in path", req.URL.Path)
	}
	tok, err := t.auth.GetInstallationToken(repo)
	if err != nil {
		return nil, fmt.Errorf("installation token for %s: %w", repo, err)
	}

	r := req.Clone(req.Context())
	r.Header.Set("Authorization", "token "+tok.Token)
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	return base.RoundTrip(r)
}

// repoFromPath extracts "owner/name" from a /repos/{owner}/{name}/... path.
func repoFromPath(path string) (string, bool) {
	idx := strings.Index(path, "/repos/")
	if idx < 0 {
		return "", false
	}
	parts := strings.SplitN(path[idx+len("/repos/"):], "/", 3)
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", false
	}
	return parts[0] + "/" + parts[1], true
}

// SplitRepo splits "owner/name".
func SplitRepo(repo string) (string, string, error) {
	parts := strings.Split(repo, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid repo format: %s (expected owner/repo)", repo)
	}
	return parts[0], parts[1], nil
}
