package logger

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestMiddleware_LogsRequestWithTenant(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var buf bytes.Buffer
	l := NewWriter("production", &buf)

	r := gin.New()
	r.Use(Middleware(l))
	r.GET("/api/leads/:id", func(c *gin.Context) {
		c.Set(KeyAccountID, "acct-1")
		c.Set(KeyOrgID, "org-1")
		if From(c.Request.Context()) != FromGin(c) {
			t.Errorf("request context logger differs from gin logger")
		}
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/api/leads/42", nil)
	req.Header.Set("Authorization", "Bearer secret-token")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	rid := w.Header().Get(headerRequestID)
	if rid == "" {
		t.Fatalf("request id not set")
	}
	if bytes.Contains(buf.Bytes(), []byte("secret-token")) {
		t.Fatalf("credential leaked into log: %s", buf.String())
	}

	var line map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line); err != nil {
		t.Fatalf("decode log line %q: %v", buf.String(), err)
	}
	for k, want := range map[string]any{
		"msg":        "request",
		"path":       "/api/leads/:id",
		"request_id": rid,
		KeyAccountID: "acct-1",
		KeyOrgID:     "org-1",
	} {
		if line[k] != want {
			t.Fatalf("%s = %v, want %v", k, line[k], want)
		}
	}
}

func TestMiddleware_KeepsIncomingRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var buf bytes.Buffer
	r := gin.New()
	r.Use(Middleware(NewWriter("local", &buf)))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(headerRequestID, "abc")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Header().Get(headerRequestID) != "abc" {
		t.Fatalf("request id = %q", w.Header().Get(headerRequestID))
	}
}
