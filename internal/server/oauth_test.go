package server

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"golang.org/x/oauth2"
)

func testOAuthConfig(tokenURL string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     "client",
		ClientSecret: "secret",
		RedirectURL:  "http://localhost:8080/callback",
		Endpoint:     oauth2.Endpoint{TokenURL: tokenURL},
	}
}

func TestCallbackHandler(t *testing.T) {
	t.Run("Successful Exchange", func(t *testing.T) {
		tokenServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, `{"access_token": "granted", "token_type": "Bearer", "refresh_token": "refresh"}`)
		}))
		defer tokenServer.Close()

		handler := NewCallbackHandler(testOAuthConfig(tokenServer.URL), "expected_state")

		req := httptest.NewRequest(http.MethodGet, "/callback?state=expected_state&code=auth_code", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Errorf("expected 200, got %d", rec.Code)
		}

		result := <-handler.Result()
		if result.Error() != nil {
			t.Fatalf("expected success, got %v", result.Error())
		}
		if result.Token.AccessToken != "granted" {
			t.Errorf("unexpected access token %s", result.Token.AccessToken)
		}
	})

	t.Run("State Mismatch", func(t *testing.T) {
		handler := NewCallbackHandler(testOAuthConfig("http://unused"), "expected_state")

		req := httptest.NewRequest(http.MethodGet, "/callback?state=wrong&code=auth_code", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rec.Code)
		}

		result := <-handler.Result()
		if result.Error() == nil {
			t.Error("expected state mismatch error")
		}
	})

	t.Run("Authorization Denied", func(t *testing.T) {
		handler := NewCallbackHandler(testOAuthConfig("http://unused"), "s")

		req := httptest.NewRequest(http.MethodGet, "/callback?state=s&error=access_denied", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rec.Code)
		}

		result := <-handler.Result()
		if result.Error() == nil {
			t.Error("expected authorization denied error")
		}
	})

	t.Run("Second Callback Rejected", func(t *testing.T) {
		handler := NewCallbackHandler(testOAuthConfig("http://unused"), "s")

		first := httptest.NewRequest(http.MethodGet, "/callback?state=wrong", nil)
		handler.ServeHTTP(httptest.NewRecorder(), first)

		second := httptest.NewRequest(http.MethodGet, "/callback?state=s&code=c", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, second)

		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected replay to be rejected with 400, got %d", rec.Code)
		}
	})

	t.Run("Routes", func(t *testing.T) {
		handler := NewCallbackHandler(testOAuthConfig("http://unused"), "s")
		routes := handler.Routes()
		if len(routes) != 1 || routes[0] != "/callback" {
			t.Errorf("unexpected routes %v", routes)
		}
	})
}

func TestBasicRouter(t *testing.T) {
	t.Run("Method Filtering", func(t *testing.T) {
		router := NewBasicRouter()
		router.Handle(http.MethodGet, "/ping", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		}))

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))
		if rec.Code != http.StatusNoContent {
			t.Errorf("expected 204 for GET, got %d", rec.Code)
		}

		rec = httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/ping", nil))
		if rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("expected 405 for POST, got %d", rec.Code)
		}
	})

	t.Run("Middleware Order", func(t *testing.T) {
		var order []string
		mw := func(name string) Middleware {
			return func(next http.Handler) http.Handler {
				return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					order = append(order, name)
					next.ServeHTTP(w, r)
				})
			}
		}

		router := NewBasicRouter()
		router.Use(mw("first"), mw("second"))
		router.Handle(http.MethodGet, "/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

		if len(order) != 2 || order[0] != "first" || order[1] != "second" {
			t.Errorf("unexpected middleware order %v", order)
		}
	})
}

func TestListenAddr(t *testing.T) {
	cases := []struct {
		uri  string
		want string
	}{
		{"http://localhost:8080/callback", ":8080"},
		{"http://localhost:3000/callback", ":3000"},
		{"http://localhost/callback", ":8080"},
	}
	for _, c := range cases {
		got, err := ListenAddr(c.uri)
		if err != nil {
			t.Errorf("ListenAddr(%q) returned error: %v", c.uri, err)
			continue
		}
		if got != c.want {
			t.Errorf("ListenAddr(%q) = %s, want %s", c.uri, got, c.want)
		}
	}
}
