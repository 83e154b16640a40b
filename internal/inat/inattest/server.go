// Package inattest はテスト用のiNaturalist偽サーバーを提供する。
package inattest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

// User は/users/meが返すユーザー。
type User struct {
	ID      int64   `json:"id"`
	Login   string  `json:"login"`
	Name    *string `json:"name,omitempty"`
	IconURL *string `json:"icon_url,omitempty"`
	Email   *string `json:"email,omitempty"`
}

// Server はOAuthトークン、APIトークン、/users/meの3エンドポイントを持つ偽サーバー。
// BaseURLとAPIBaseURLは同じhttptest.Serverを指す。
type Server struct {
	*httptest.Server

	ClientID     string
	ClientSecret string
	Code         string
	AccessToken  string
	RefreshToken string
	APIToken     string
	CreatedAt    int64
	ExpiresIn    int64
	User         *User

	// 各エンドポイントを強制的に失敗させるステータス。0なら正常応答。
	TokenStatus    int
	APITokenStatus int
	UsersMeStatus  int

	mu         sync.Mutex
	tokenCalls int
	tokenForms []map[string]string
}

// NewServer は既定値を持つ偽サーバーを起動する。テスト終了時に停止する。
func NewServer(t *testing.T) *Server {
	t.Helper()
	name := "Test Naturalist"
	email := "naturalist@example.com"
	s := &Server{
		ClientID:     "test-client-id",
		ClientSecret: "test-client-secret",
		Code:         "valid-code",
		AccessToken:  "oauth-access-token",
		RefreshToken: "oauth-refresh-token",
		APIToken:     "jwt-api-token",
		CreatedAt:    1700000000,
		ExpiresIn:    7200,
		User:         &User{ID: 12345, Login: "naturalist", Name: &name, Email: &email},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /oauth/token", s.handleToken)
	mux.HandleFunc("GET /users/api_token", s.handleAPIToken)
	mux.HandleFunc("GET /v1/users/me", s.handleUsersMe)
	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.Close)
	return s
}

// BaseURL はINAT_BASE_URLに相当するURLを返す。
func (s *Server) BaseURL() string { return s.URL }

// APIBaseURL はINAT_API_BASE_URLに相当するURLを返す。
func (s *Server) APIBaseURL() string { return s.URL + "/v1" }

// TokenCalls はトークンエンドポイントの呼び出し回数を返す。
func (s *Server) TokenCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tokenCalls
}

// LastTokenForm は最後にトークンエンドポイントに送られたフォームを返す。
func (s *Server) LastTokenForm() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.tokenForms) == 0 {
		return nil
	}
	return s.tokenForms[len(s.tokenForms)-1]
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad form", http.StatusBadRequest)
		return
	}
	form := make(map[string]string)
	for k := range r.PostForm {
		form[k] = r.PostForm.Get(k)
	}
	s.mu.Lock()
	s.tokenCalls++
	s.tokenForms = append(s.tokenForms, form)
	s.mu.Unlock()

	if s.TokenStatus != 0 {
		w.WriteHeader(s.TokenStatus)
		return
	}
	if form["code"] != s.Code || form["client_id"] != s.ClientID || form["client_secret"] != s.ClientSecret {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid_grant"})
		return
	}

	resp := map[string]any{
		"access_token": s.AccessToken,
		"token_type":   "Bearer",
		"scope":        "login",
	}
	if s.RefreshToken != "" {
		resp["refresh_token"] = s.RefreshToken
	}
	if s.CreatedAt != 0 {
		resp["created_at"] = s.CreatedAt
	}
	if s.ExpiresIn != 0 {
		resp["expires_in"] = s.ExpiresIn
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAPIToken(w http.ResponseWriter, r *http.Request) {
	if s.APITokenStatus != 0 {
		w.WriteHeader(s.APITokenStatus)
		return
	}
	if r.Header.Get("Authorization") != "Bearer "+s.AccessToken {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"api_token": s.APIToken})
}

func (s *Server) handleUsersMe(w http.ResponseWriter, r *http.Request) {
	if s.UsersMeStatus != 0 {
		w.WriteHeader(s.UsersMeStatus)
		return
	}
	if r.Header.Get("Authorization") != "Bearer "+s.APIToken {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	results := []User{}
	if s.User != nil {
		results = append(results, *s.User)
	}
	writeJSON(w, http.StatusOK, map[string]any{"total_results": len(results), "results": results})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
