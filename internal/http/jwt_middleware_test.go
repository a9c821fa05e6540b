package http

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"chat-feed/internal/domain"
	"chat-feed/internal/service"
)

func issueToken(t *testing.T, jwtSvc *service.JWTService, viewer domain.Viewer) string {
	t.Helper()
	token, err := jwtSvc.IssueAccessToken(viewer)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return token
}

func protectedRouter(jwtSvc *service.JWTService) *gin.Engine {
	r := gin.New()
	r.GET("/protected", JWTAuthMiddleware(jwtSvc), func(c *gin.Context) {
		viewer, ok := currentViewer(c)
		if !ok || viewer.ID != "u1" || viewer.Identity != "alice" {
			c.Status(http.StatusUnauthorized)
			return
		}
		c.Status(http.StatusOK)
	})
	return r
}

func TestJWTAuthMiddleware_AllowsValidAccessToken(t *testing.T) {
	gin.SetMode(gin.TestMode)
	jwtSvc := service.NewJWTService("secret", 15*time.Minute)
	token := issueToken(t, jwtSvc, domain.Viewer{ID: "u1", Identity: "alice"})

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	protectedRouter(jwtSvc).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestJWTAuthMiddleware_AllowsQueryToken(t *testing.T) {
	gin.SetMode(gin.TestMode)
	jwtSvc := service.NewJWTService("secret", 15*time.Minute)
	token := issueToken(t, jwtSvc, domain.Viewer{ID: "u1", Identity: "alice"})

	req := httptest.NewRequest(http.MethodGet, "/protected?access_token="+token, nil)
	rec := httptest.NewRecorder()
	protectedRouter(jwtSvc).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestJWTAuthMiddleware_RejectsMissingToken(t *testing.T) {
	gin.SetMode(gin.TestMode)
	jwtSvc := service.NewJWTService("secret", 15*time.Minute)

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	rec := httptest.NewRecorder()
	protectedRouter(jwtSvc).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestJWTAuthMiddleware_RejectsNonBearerHeader(t *testing.T) {
	gin.SetMode(gin.TestMode)
	jwtSvc := service.NewJWTService("secret", 15*time.Minute)
	token := issueToken(t, jwtSvc, domain.Viewer{ID: "u1", Identity: "alice"})

	req := httptest.NewRequest(http.MethodGet, "/protected?access_token="+token, nil)
	req.Header.Set("Authorization", "Basic abc")
	rec := httptest.NewRecorder()
	protectedRouter(jwtSvc).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestJWTAuthMiddleware_RejectsForeignSecret(t *testing.T) {
	gin.SetMode(gin.TestMode)
	other := service.NewJWTService("other", 15*time.Minute)
	token := issueToken(t, other, domain.Viewer{ID: "u1", Identity: "alice"})

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	protectedRouter(service.NewJWTService("secret", 15*time.Minute)).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}
