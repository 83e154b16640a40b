// Package inat はiNaturalistのOAuthとユーザーAPIのクライアントを提供する。
package inat

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/hitoshi/taxonia/internal/apperror"
	"github.com/hitoshi/taxonia/internal/model"
)

const (
	// DefaultAPIBaseURL はiNaturalist APIの既定ベースURL。
	DefaultAPIBaseURL = "https://api.inaturalist.org/v1"

	defaultHTTPTimeout = 10 * time.Second

	// レスポンスボディの読み込み上限
	maxResponseBytes = 1 << 20
)

// ClientConfig はiNaturalistクライアントの設定。
type ClientConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	// BaseURL はOAuthエンドポイントのベースURL（例: https://www.inaturalist.org）。
	BaseURL string
	// APIBaseURL は/users/meを提供するAPIのベースURL。空の場合はDefaultAPIBaseURL。
	APIBaseURL string
	// HTTPClient は外部呼び出しに使うクライアント。nilの場合は10秒タイムアウトのクライアントを使う。
	HTTPClient *http.Client
}

// Client はiNaturalistとのOAuthトークン交換とユーザー情報取得を行う。
type Client struct {
	oauth      *oauth2.Config
	baseURL    string
	apiBaseURL string
	httpClient *http.Client
}

// NewClient はClientを生成する。
func NewClient(cfg ClientConfig) *Client {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	apiBaseURL := strings.TrimRight(cfg.APIBaseURL, "/")
	if apiBaseURL == "" {
		apiBaseURL = DefaultAPIBaseURL
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultHTTPTimeout}
	}

	return &Client{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURI,
			Endpoint: oauth2.Endpoint{
				AuthURL:   baseURL + "/oauth/authorize",
				TokenURL:  baseURL + "/oauth/token",
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		baseURL:    baseURL,
		apiBaseURL: apiBaseURL,
		httpClient: httpClient,
	}
}

// AuthorizationURL はstateを埋め込んだ認可URLを返す。
func (c *Client) AuthorizationURL(state string) string {
	return c.oauth.AuthCodeURL(state)
}

// ExchangeCodeForToken は認可コードをOAuthアクセストークンに交換する。
// created_atとexpires_inが両方返された場合はその和を有効期限とする。
func (c *Client) ExchangeCodeForToken(ctx context.Context, code string) (*model.TokenSet, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)

	tok, err := c.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, apperror.Transport("inat.exchange_code", err)
	}

	set := &model.TokenSet{AccessToken: tok.AccessToken}
	if tok.RefreshToken != "" {
		rt := tok.RefreshToken
		set.RefreshToken = &rt
	}
	set.ExpiresAt = expiresAt(tok)

	return set, nil
}

// expiresAt はトークンレスポンスから有効期限を求める。
// created_at と expires_in の両方が揃っている場合のみ値を返す。
// oauth2.Token.Expiry は受信時刻基準で補完されるため使わない。
func expiresAt(tok *oauth2.Token) *time.Time {
	created, okCreated := numericExtra(tok, "created_at")
	expiresIn, okExpires := numericExtra(tok, "expires_in")
	if okCreated && okExpires {
		t := time.Unix(created, 0).UTC().Add(time.Duration(expiresIn) * time.Second)
		return &t
	}
	return nil
}

// numericExtra はトークンレスポンスの数値フィールドを取り出す。
func numericExtra(tok *oauth2.Token, key string) (int64, bool) {
	switch v := tok.Extra(key).(type) {
	case float64:
		return int64(v), true
	case int64:
		return v, true
	case json.Number:
		n, err := v.Int64()
		return n, err == nil
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		return n, err == nil
	default:
		return 0, false
	}
}

// apiTokenResponse は/users/api_tokenのレスポンス。
type apiTokenResponse struct {
	APIToken string `json:"api_token"`
}

// ExchangeAccessForAPIToken はOAuthアクセストークンをAPI用のJWTに交換する。
func (c *Client) ExchangeAccessForAPIToken(ctx context.Context, accessToken string) (string, error) {
	var body apiTokenResponse
	if err := c.getJSON(ctx, c.baseURL+"/users/api_token", accessToken, &body); err != nil {
		return "", apperror.Transport("inat.api_token", err)
	}
	if body.APIToken == "" {
		return "", apperror.Transport("inat.api_token", fmt.Errorf("empty api_token in response"))
	}
	return body.APIToken, nil
}

// inatUser は/users/meのresults要素。
type inatUser struct {
	ID      int64   `json:"id"`
	Login   string  `json:"login"`
	Name    *string `json:"name"`
	IconURL *string `json:"icon_url"`
	Email   *string `json:"email"`
}

type usersMeResponse struct {
	Results []inatUser `json:"results"`
}

// FetchCurrentUser はAPIトークンで認証済みユーザーのプロフィールを取得する。
// resultsが空の場合はエラーを返す。
func (c *Client) FetchCurrentUser(ctx context.Context, apiToken string) (*model.ProviderProfile, error) {
	var body usersMeResponse
	if err := c.getJSON(ctx, c.apiBaseURL+"/users/me", apiToken, &body); err != nil {
		return nil, apperror.Transport("inat.users_me", err)
	}
	if len(body.Results) == 0 {
		return nil, apperror.Transport("inat.users_me", fmt.Errorf("empty results from /users/me"))
	}

	u := body.Results[0]
	return &model.ProviderProfile{
		ProviderUserID: strconv.FormatInt(u.ID, 10),
		Login:          u.Login,
		Name:           deref(u.Name),
		IconURL:        deref(u.IconURL),
		Email:          deref(u.Email),
	}, nil
}

// getJSON はBearer認証付きでGETし、2xxのレスポンスをoutにデコードする。
func (c *Client) getJSON(ctx context.Context, url, bearer string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+bearer)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
