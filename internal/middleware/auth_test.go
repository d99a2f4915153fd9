package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/chandanyadavsde/vms-v2/internal/utils"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(Subject(r.Context())))
	})
}

func TestAuthDisabledWithoutSecret(t *testing.T) {
	rr := httptest.NewRecorder()
	Auth("")(okHandler()).ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/vms/lr", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestAuthRejectsBadHeaders(t *testing.T) {
	h := Auth("s3cret")(okHandler())
	for name, header := range map[string]string{
		"missing":   "",
		"malformed": "Token abc",
		"invalid":   "Bearer not-a-jwt",
	} {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/vms/lr", nil)
			if header != "" {
				req.Header.Set("Authorization", header)
			}
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, req)
			assert.Equal(t, http.StatusUnauthorized, rr.Code)
			assert.Contains(t, rr.Body.String(), `"error"`)
		})
	}
}

func TestAuthAcceptsValidToken(t *testing.T) {
	token, err := utils.GenerateToken("ops@vms", "operator", "s3cret", time.Hour)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/vms/lr", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	Auth("s3cret")(okHandler()).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "ops@vms", rr.Body.String())
}

func TestCorrelationID(t *testing.T) {
	var seen string
	h := CorrelationID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = CorrelationIDFrom(r.Context())
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.NotEmpty(t, seen)
	assert.Equal(t, seen, rr.Header().Get(CorrelationHeader))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(CorrelationHeader, "abc-123")
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, "abc-123", seen)
	assert.Equal(t, "abc-123", rr.Header().Get(CorrelationHeader))
}

func TestRequestLoggerRecordsStatus(t *testing.T) {
	var buf bytes.Buffer
	l := logrus.New()
	l.SetOutput(&buf)
	l.SetFormatter(&logrus.JSONFormatter{})

	h := CorrelationID(RequestLogger(logrus.NewEntry(l))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))

	out := buf.String()
	assert.Contains(t, out, `"status":418`)
	assert.Contains(t, out, `"path":"/health"`)
	assert.Contains(t, out, `"correlation_id"`)
	assert.Contains(t, out, `"level":"warning"`)
}
