package e2e

import (
	"net/http"
	"testing"
)

func TestPublicEndpoints(t *testing.T) {
	ta := setupApp(t)

	t.Run("root reports a timestamp", func(t *testing.T) {
		resp, err := doRequest(ta.app, http.MethodGet, "/", "", nil)
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		assertStatus(t, resp, http.StatusOK)
		if _, ok := parseJSON(t, resp)["timestamp"]; !ok {
			t.Error("timestamp missing")
		}
	})

	t.Run("health lists collaborators", func(t *testing.T) {
		resp, err := doRequest(ta.app, http.MethodGet, "/health", "", nil)
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		assertStatus(t, resp, http.StatusOK)

		body := parseJSON(t, resp)
		if body["status"] != "ok" {
			t.Errorf("status = %v", body["status"])
		}
		services, _ := body["services"].(map[string]interface{})
		if services["store"] != true || services["music"] != false {
			t.Errorf("unexpected services %v", services)
		}
	})
}

func TestAccessControl(t *testing.T) {
	ta := setupApp(t)
	bearer := map[string]string{"Authorization": "Bearer " + generateToken(t)}

	cases := []struct {
		name    string
		method  string
		path    string
		body    string
		headers map[string]string
		status  int
		code    string
	}{
		{name: "verify without token", method: http.MethodGet, path: "/auth/verify", status: http.StatusUnauthorized},
		{name: "verify with garbage token", method: http.MethodGet, path: "/auth/verify",
			headers: map[string]string{"Authorization": "Bearer not-a-jwt"}, status: http.StatusUnauthorized},
		{name: "verify with token", method: http.MethodGet, path: "/auth/verify", headers: bearer, status: http.StatusOK},
		{name: "api without token", method: http.MethodPost, path: "/api/shows",
			body: `{"idea":"A lighthouse","musicalType":"classic"}`, status: http.StatusUnauthorized, code: "UNAUTHORIZED"},
		{name: "websocket without upgrade", method: http.MethodGet, path: "/ws/shows/some-project", status: http.StatusUpgradeRequired},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp, err := doRequest(ta.app, tc.method, tc.path, tc.body, tc.headers)
			if err != nil {
				t.Fatalf("request failed: %v", err)
			}
			assertStatus(t, resp, tc.status)
			if tc.code != "" {
				if code := errorCode(t, parseJSON(t, resp)); code != tc.code {
					t.Errorf("code = %s, want %s", code, tc.code)
				}
			}
		})
	}
}

func TestVerifyForwardsIdentity(t *testing.T) {
	ta := setupApp(t)

	resp, err := doRequest(ta.app, http.MethodGet, "/auth/verify", "", map[string]string{
		"Authorization": "Bearer " + generateToken(t),
	})
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusOK)

	if got := resp.Header.Get("X-User-Id"); got != "test-user-123" {
		t.Errorf("X-User-Id = %q", got)
	}
	if got := resp.Header.Get("X-User-Email"); got != "test@example.com" {
		t.Errorf("X-User-Email = %q", got)
	}
}
