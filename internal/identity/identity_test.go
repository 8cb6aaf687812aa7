package identity

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rafflehq/ticket-engine/internal/db/dbtest"
	"github.com/rafflehq/ticket-engine/internal/models"
	"github.com/rafflehq/ticket-engine/internal/security"
)

func TestResolveIsIdempotent(t *testing.T) {
	conn := dbtest.Open(t)
	resolver := NewResolver(conn)

	ids := make([]uint64, 8)
	var wg sync.WaitGroup
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id, err := resolver.Resolve(context.Background(), "auth0|abc")
			if err != nil {
				t.Errorf("resolve: %v", err)
				return
			}
			ids[i] = id
		}(i)
	}
	wg.Wait()
	for _, id := range ids {
		if id == 0 || id != ids[0] {
			t.Fatalf("ids = %v", ids)
		}
	}
	var n int64
	conn.Model(&models.User{}).Count(&n)
	if n != 1 {
		t.Fatalf("users = %d", n)
	}
	if _, err := resolver.Resolve(context.Background(), " "); err == nil {
		t.Fatalf("blank subject resolved")
	}
}

func TestMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	conn := dbtest.Open(t)
	r := gin.New()
	r.GET("/me", Middleware(NewResolver(conn), "secret"), func(c *gin.Context) {
		id, _ := UserID(c)
		c.String(http.StatusOK, strconv.FormatUint(id, 10))
	})

	token, err := security.GenerateIdentityToken("secret", "user-7", time.Hour)
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	tests := []struct {
		name   string
		header string
		status int
	}{
		{name: "missing", header: "", status: http.StatusUnauthorized},
		{name: "no bearer", header: token, status: http.StatusUnauthorized},
		{name: "wrong secret", header: "Bearer " + mustToken(t, "other"), status: http.StatusUnauthorized},
		{name: "valid", header: "Bearer " + token, status: http.StatusOK},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			if w.Code != tc.status {
				t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
			}
			if tc.status == http.StatusOK && (w.Body.String() == "" || w.Body.String() == "0") {
				t.Fatalf("user id not set")
			}
		})
	}
}

func mustToken(t *testing.T, secret string) string {
	t.Helper()
	token, err := security.GenerateIdentityToken(secret, "user-7", time.Hour)
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	return token
}
