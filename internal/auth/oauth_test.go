package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestGitHubProvider_AuthURL(t *testing.T) {
	p := NewGitHubProvider("client-id", "secret", "http://localhost:8080/auth/github/callback")

	u := p.AuthURL("state-123")
	for _, want := range []string{"github.com", "client_id=client-id", "state=state-123"} {
		if !strings.Contains(u, want) {
			t.Errorf("AuthURL() = %q, missing %q", u, want)
		}
	}
}

func TestNewState_Unique(t *testing.T) {
	if NewState() == NewState() {
		t.Error("NewState() returned the same value twice")
	}
}

func TestFetchUser(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr bool
		want    string
	}{
		{"profile name", http.StatusOK, `{"id":7,"login":"asha","name":"Asha R"}`, false, "Asha R"},
		{"login fallback", http.StatusOK, `{"id":7,"login":"asha"}`, false, "asha"},
		{"zero id", http.StatusOK, `{"id":0,"login":"ghost"}`, true, ""},
		{"upstream error", http.StatusBadGateway, `{}`, true, ""},
		{"bad json", http.StatusOK, `{`, true, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			p := NewGitHubProvider("id", "secret", "cb")
			p.userURL = srv.URL

			u, err := p.fetchUser(context.Background(), srv.Client())
			if (err != nil) != tt.wantErr {
				t.Fatalf("fetchUser() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && u.DisplayName() != tt.want {
				t.Errorf("DisplayName() = %q, want %q", u.DisplayName(), tt.want)
			}
		})
	}
}
