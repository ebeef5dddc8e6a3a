package upstream

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nextlevelbuilder/warpbridge/internal/creds"
)

func fakeJWTFor(t *testing.T, exp time.Time) string {
	t.Helper()
	enc := base64.RawURLEncoding.EncodeToString
	header := enc([]byte(`{"alg":"none","typ":"JWT"}`))
	claims, err := json.Marshal(map[string]any{"exp": float64(exp.Unix())})
	if err != nil {
		t.Fatal(err)
	}
	return header + "." + enc(claims) + ".sig"
}

func newTestCredsManager(t *testing.T, refreshURL string) *creds.Manager {
	t.Helper()
	envPath := filepath.Join(t.TempDir(), ".env")
	m := creds.New(envPath, "v1", "Windows", "Windows", "11 (26100)")
	m.RefreshURL = refreshURL
	return m
}

func TestSendBuffered_RetriesOnRecoveredQuotaExhaustion(t *testing.T) {
	var upstreamCalls int
	var refreshCalls, graphqlCalls, identityCalls int

	mux := http.NewServeMux()
	mux.HandleFunc("/ai/multi-agent", func(w http.ResponseWriter, r *http.Request) {
		upstreamCalls++
		if upstreamCalls == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte("No remaining quota for this account"))
			return
		}
		w.Write([]byte("ok-response-bytes"))
	})
	mux.HandleFunc("/refresh", func(w http.ResponseWriter, r *http.Request) {
		refreshCalls++
		json.NewEncoder(w).Encode(map[string]string{
			"access_token": fakeJWTFor(t, time.Now().Add(time.Hour)),
		})
	})
	mux.HandleFunc("/graphql", func(w http.ResponseWriter, r *http.Request) {
		graphqlCalls++
		json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]any{"createAnonymousUser": map[string]any{"idToken": "id-1"}},
		})
	})
	mux.HandleFunc("/identity", func(w http.ResponseWriter, r *http.Request) {
		identityCalls++
		json.NewEncoder(w).Encode(map[string]string{"refreshToken": "refresh-1"})
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	credsMgr := newTestCredsManager(t, server.URL+"/refresh")
	credsMgr.GraphQLURL = server.URL + "/graphql"
	credsMgr.IdentityToolkitURLTemplate = server.URL + "/identity?key=%s"

	client := New(server.URL, "v1", "Windows", "Windows", "11 (26100)", credsMgr, false)

	resp, err := client.SendBuffered(context.Background(), []byte("request-bytes"))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "ok-response-bytes" {
		t.Errorf("body = %q, want ok-response-bytes", body)
	}
	if upstreamCalls != 2 {
		t.Errorf("upstream called %d times, want 2", upstreamCalls)
	}
	if graphqlCalls != 1 || identityCalls != 1 || refreshCalls != 1 {
		t.Errorf("recovery calls = graphql:%d identity:%d refresh:%d, want 1/1/1", graphqlCalls, identityCalls, refreshCalls)
	}
}

func TestSendBuffered_SurfacesNonQuota429Verbatim(t *testing.T) {
	var upstreamCalls int
	mux := http.NewServeMux()
	mux.HandleFunc("/ai/multi-agent", func(w http.ResponseWriter, r *http.Request) {
		upstreamCalls++
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte("rate limited, try later"))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	credsMgr := newTestCredsManager(t, server.URL+"/refresh")
	validToken := fakeJWTFor(t, time.Now().Add(time.Hour))
	if err := os.WriteFile(credsMgr.EnvFilePath, []byte("WARP_JWT="+validToken+"\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	client := New(server.URL, "v1", "Windows", "Windows", "11 (26100)", credsMgr, false)

	resp, err := client.SendBuffered(context.Background(), []byte("request-bytes"))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429 surfaced verbatim", resp.StatusCode)
	}
	if upstreamCalls != 1 {
		t.Errorf("upstream called %d times, want 1 (no retry for non-quota 429)", upstreamCalls)
	}
}
