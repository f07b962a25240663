// Package auth implements the per-device credential lifecycle: static
// basic/bearer credentials, form-based token login, and persisted
// OpenID-Connect token refresh.
package auth

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"

	"apimonitor/internal/config"
	"apimonitor/internal/tokenstore"
	apierrors "apimonitor/pkg/errors"
)

const (
	// expiryBuffer keeps a stored access token from being reused so close to
	// expiry that it dies mid-request
	expiryBuffer = 60 * time.Second

	defaultExpiresIn = 300 // seconds
	defaultClientID  = "webui"
	defaultScope     = "offline_access"
	defaultTokenPath = "token"
)

// tokenResponse is the OAuth-style grant response shape
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
}

// Manager owns the credential state for one device session. Setup never
// returns an error; failures are recorded and exposed through Failed, and
// annotated onto the device config. Callers must check the flag before
// trusting the transport.
type Manager struct {
	device     *config.Device
	store      *tokenstore.Store
	httpClient *http.Client
	log        zerolog.Logger

	authToken string
	basicUser string
	basicPass string

	authFailed bool
	authError  string
}

// NewManager builds the authenticated transport for a device and runs the
// auth_type state machine to completion.
func NewManager(device *config.Device, store *tokenstore.Store, timeout time.Duration, log zerolog.Logger) *Manager {
	m := &Manager{
		device: device,
		store:  store,
		log:    log.With().Str("device", device.Name).Logger(),
	}

	transport := http.DefaultTransport
	if !device.VerifySSL() {
		transport = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		}
	}
	m.httpClient = &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}

	m.setup()
	return m
}

// Failed reports whether authentication setup failed, with the failure detail
func (m *Manager) Failed() (bool, string) {
	return m.authFailed, m.authError
}

// Client exposes the underlying HTTP client for unauthenticated fetches that
// still need the device's TLS and timeout settings
func (m *Manager) Client() *http.Client {
	return m.httpClient
}

// Token returns the current bearer token, empty when none was established
func (m *Manager) Token() string {
	return m.authToken
}

// Authorize applies the established credentials to an outbound request
func (m *Manager) Authorize(req *http.Request) {
	if m.basicUser != "" || m.basicPass != "" {
		req.SetBasicAuth(m.basicUser, m.basicPass)
	}
	if m.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+m.authToken)
	}
}

// Do issues an authenticated request against a device URL
func (m *Manager) Do(ctx context.Context, method, rawURL string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	m.Authorize(req)
	return m.httpClient.Do(req)
}

func (m *Manager) fail(stage, detail string) {
	err := apierrors.NewAuthError(m.device.Name, stage, detail)
	m.authFailed = true
	m.authError = fmt.Sprintf("%s: %s", stage, detail)
	m.device.MarkAuthFailed(m.authError)
	m.log.Error().Err(err).Msg("authentication setup failed")
}

// setup runs the auth_type state machine. Terminal states either leave the
// transport ready or record a failure; it never panics or propagates.
func (m *Manager) setup() {
	api := &m.device.API

	switch api.AuthType {
	case "", config.AuthNone:
		return

	case config.AuthBasic:
		if api.Username == "" {
			m.fail("basic auth setup failed", "username is required")
			return
		}
		password, err := ResolveEnvRef(api.Password)
		if err != nil {
			m.fail("basic auth setup failed", err.Error())
			return
		}
		m.basicUser = api.Username
		m.basicPass = password
		m.log.Info().Msg("basic auth configured")

	case config.AuthBearer:
		token, err := ResolveEnvRef(api.Token)
		if err != nil {
			m.fail("bearer token setup failed", err.Error())
			return
		}
		if token == "" {
			m.fail("bearer token setup failed", "token is required")
			return
		}
		m.authToken = token
		m.log.Info().Msg("bearer token configured")

	case config.AuthTokenFromAuth:
		if api.AuthEndpoint == "" {
			m.fail("token auth setup failed", "missing auth_endpoint configuration")
			return
		}
		if api.AuthTypeExtension == config.ExtensionOpenIDConnect {
			m.setupOpenID()
		} else {
			m.setupFormToken()
		}

	default:
		m.fail("auth setup failed", fmt.Sprintf("unknown auth_type %q", api.AuthType))
	}
}

// setupFormToken performs the legacy form-based login. Failures leave the
// device unauthenticated but are not fatal to the session.
func (m *Manager) setupFormToken() {
	token, err := FetchFormToken(m.device, m.httpClient, m.log)
	if err != nil {
		m.log.Error().Err(err).Msg("could not obtain auth token, proceeding unauthenticated")
		return
	}

	m.authToken = token
	// Exported for external templating consumers.
	os.Setenv(TokenEnvVar(m.device.Name), token)
	m.log.Info().Msg("obtained auth token from login endpoint")
}

// TokenEnvVar names the environment variable a device's form-login token is
// exported under
func TokenEnvVar(deviceName string) string {
	return fmt.Sprintf("DEVICE_%s_TOKEN", strings.ToUpper(deviceName))
}

// FetchFormToken logs into a device's auth endpoint and extracts the token at
// the configured dot-separated path. Shared by the credential manager and the
// token exporter.
func FetchFormToken(device *config.Device, client *http.Client, log zerolog.Logger) (string, error) {
	api := &device.API

	password, err := ResolveEnvRef(api.Password)
	if err != nil {
		return "", err
	}

	payload := map[string]string{}
	if len(api.AuthPayload) == 0 {
		payload["username"] = api.Username
		payload["password"] = password
	} else {
		for key, value := range api.AuthPayload {
			switch value {
			case "{{username}}":
				payload[key] = api.Username
			case "{{password}}":
				payload[key] = password
			default:
				payload[key] = value
			}
		}
	}

	loginURL := JoinURL(api.BaseURL, api.AuthEndpoint)
	log.Info().Str("url", loginURL).Msg("requesting auth token")

	var resp *http.Response
	if strings.EqualFold(api.AuthMethod, "GET") {
		query := url.Values{}
		for key, value := range payload {
			query.Set(key, value)
		}
		resp, err = client.Get(loginURL + "?" + query.Encode())
	} else {
		body, marshalErr := json.Marshal(payload)
		if marshalErr != nil {
			return "", fmt.Errorf("encoding auth payload: %w", marshalErr)
		}
		resp, err = client.Post(loginURL, "application/json", bytes.NewReader(body))
	}
	if err != nil {
		return "", fmt.Errorf("auth request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading auth response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("auth request returned status %d", resp.StatusCode)
	}

	tokenPath := api.TokenPath
	if tokenPath == "" {
		tokenPath = defaultTokenPath
	}
	result := gjson.GetBytes(body, tokenPath)
	if !result.Exists() || result.String() == "" {
		return "", fmt.Errorf("could not extract token from response using path %q", tokenPath)
	}

	return result.String(), nil
}

// setupOpenID walks the OpenID-Connect token states: reuse a stored valid
// access token, else refresh, else a full password grant. A failed refresh
// falls back to the password grant exactly once.
func (m *Manager) setupOpenID() {
	record, found := m.loadRecord()

	if found && record.Valid(expiryBuffer) {
		m.authToken = record.AccessToken
		m.log.Info().Msg("reusing stored access token")
		return
	}

	if found && record.RefreshToken != "" {
		err := m.refreshGrant(record)
		if err == nil {
			return
		}
		// One fallback only; the password grant below never loops back here.
		m.log.Warn().Err(err).Msg("token refresh failed, reverting to full authentication")
	}

	if err := m.passwordGrant(); err != nil {
		m.fail("token auth setup failed", err.Error())
	}
}

func (m *Manager) loadRecord() (*tokenstore.Record, bool) {
	if m.store == nil {
		return nil, false
	}
	record, found, err := m.store.Get(m.device.Name)
	if err != nil {
		m.log.Error().Err(err).Msg("error loading token record")
		return nil, false
	}
	return record, found
}

func (m *Manager) persistRecord(record *tokenstore.Record) {
	if m.store == nil {
		return
	}
	if err := m.store.Put(m.device.Name, record); err != nil {
		m.log.Error().Err(err).Msg("error persisting token record")
	}
}

// passwordGrant performs a full password-grant authentication and persists
// the resulting record
func (m *Manager) passwordGrant() error {
	api := &m.device.API

	password, err := ResolveEnvRef(api.Password)
	if err != nil {
		return err
	}

	clientID := api.OpenIDClientID
	if clientID == "" {
		clientID = defaultClientID
	}
	scope := api.OpenIDScope
	if scope == "" {
		scope = defaultScope
	}

	tokenURL := JoinURL(api.BaseURL, api.AuthEndpoint)
	m.log.Info().Str("url", tokenURL).Msg("requesting tokens via password grant")

	form := url.Values{
		"client_id":  {clientID},
		"username":   {api.Username},
		"password":   {password},
		"grant_type": {"password"},
		"scope":      {scope},
	}

	grant, err := m.postGrant(tokenURL, form)
	if err != nil {
		return err
	}

	m.authToken = grant.AccessToken
	m.persistRecord(&tokenstore.Record{
		AccessToken:  grant.AccessToken,
		RefreshToken: grant.RefreshToken,
		ExpiresAt:    expiresAt(grant.ExpiresIn),
		TokenURL:     tokenURL,
		ClientID:     clientID,
	})
	m.log.Info().Msg("obtained tokens via password grant")
	return nil
}

// refreshGrant exchanges the stored refresh token for a new access token
// against the record's token URL
func (m *Manager) refreshGrant(old *tokenstore.Record) error {
	m.log.Info().Str("url", old.TokenURL).Msg("refreshing access token")

	form := url.Values{
		"client_id":     {old.ClientID},
		"refresh_token": {old.RefreshToken},
		"grant_type":    {"refresh_token"},
	}

	grant, err := m.postGrant(old.TokenURL, form)
	if err != nil {
		return err
	}

	refreshToken := grant.RefreshToken
	if refreshToken == "" {
		// Some providers omit the refresh token on refresh; keep the old one.
		refreshToken = old.RefreshToken
	}

	m.authToken = grant.AccessToken
	m.persistRecord(&tokenstore.Record{
		AccessToken:  grant.AccessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    expiresAt(grant.ExpiresIn),
		TokenURL:     old.TokenURL,
		ClientID:     old.ClientID,
	})
	m.log.Info().Msg("refreshed access token")
	return nil
}

// postGrant posts an x-www-form-urlencoded grant request and decodes the
// token response
func (m *Manager) postGrant(tokenURL string, form url.Values) (*tokenResponse, error) {
	req, err := http.NewRequest(http.MethodPost, tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("creating token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("requesting token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("token request returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var grant tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&grant); err != nil {
		return nil, fmt.Errorf("decoding token response: %w", err)
	}
	if grant.AccessToken == "" {
		return nil, fmt.Errorf("no access token in response")
	}
	return &grant, nil
}

func expiresAt(expiresIn int) int64 {
	if expiresIn <= 0 {
		expiresIn = defaultExpiresIn
	}
	return time.Now().Add(time.Duration(expiresIn) * time.Second).Unix()
}

// ResolveEnvRef resolves a "${VAR}" credential indirection against the
// process environment. Plain values pass through unchanged; a referenced
// variable that is unset or empty is an error.
func ResolveEnvRef(value string) (string, error) {
	if !strings.HasPrefix(value, "${") || !strings.HasSuffix(value, "}") {
		return value, nil
	}
	name := value[2 : len(value)-1]
	resolved := os.Getenv(name)
	if resolved == "" {
		return "", fmt.Errorf("environment variable %s not set or empty", name)
	}
	return resolved, nil
}

// JoinURL joins a base URL and a path without doubling slashes
func JoinURL(base, path string) string {
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/")
}
