package router

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shandysiswandi/gostream/internal/pkg/goerror"
	"github.com/shandysiswandi/gostream/internal/pkg/instrument"
	"github.com/shandysiswandi/gostream/internal/pkg/validator"
)

type staticID string

func (s staticID) Generate() string { return string(s) }

type created struct{}

func (created) StatusCode() int { return http.StatusCreated }

func newTestRouter() *Router {
	r := NewRouter(Config{Name: "gostream-test", UUID: staticID("generated-cid")})

	r.GET("/health", func(*Request) (any, error) {
		return map[string]string{"status": "ok"}, nil
	})
	r.GET("/topics/:name", func(req *Request) (any, error) {
		return nil, goerror.New(goerror.KindTopicNotFound, "topic "+req.GetParam("name")+" not found")
	})
	r.POST("/messages", func(req *Request) (any, error) {
		var body struct {
			Key string `json:"key"`
		}
		if err := req.DecodeBody(&body); err != nil {
			return nil, err
		}
		if body.Key == "" {
			return nil, validator.V10ValidationError{"key": "key is a required field"}
		}
		return created{}, nil
	})
	r.GET("/boom", func(*Request) (any, error) { panic("boom") })
	r.GET("/opaque", func(*Request) (any, error) { return nil, errors.New("secret detail") })
	r.Raw(http.MethodPost, "/push", http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("X-Seen-CID", instrument.GetCorrelationID(req.Context()))
		w.WriteHeader(http.StatusNoContent)
	}))

	return r
}

func TestRouter(t *testing.T) {
	r := newTestRouter()

	tests := []struct {
		name     string
		method   string
		path     string
		body     string
		wantCode int
		wantMsg  string
	}{
		{name: "health", method: http.MethodGet, path: "/health", wantCode: http.StatusOK, wantMsg: "request has been successfully"},
		{name: "welcome", method: http.MethodGet, path: "/", wantCode: http.StatusNotFound, wantMsg: "Welcome to gostream-test"},
		{name: "unknown", method: http.MethodGet, path: "/nope", wantCode: http.StatusNotFound, wantMsg: "endpoint not found"},
		{name: "method not allowed", method: http.MethodDelete, path: "/health", wantCode: http.StatusMethodNotAllowed, wantMsg: "method not allowed"},
		{name: "classified error", method: http.MethodGet, path: "/topics/mnist-in", wantCode: http.StatusNotFound, wantMsg: "topic mnist-in not found"},
		{name: "bad body", method: http.MethodPost, path: "/messages", body: `{"nope":1}`, wantCode: http.StatusBadRequest, wantMsg: "invalid request body"},
		{name: "validation", method: http.MethodPost, path: "/messages", body: `{"key":""}`, wantCode: http.StatusUnprocessableEntity, wantMsg: "validation failed"},
		{name: "created", method: http.MethodPost, path: "/messages", body: `{"key":"a1b2"}`, wantCode: http.StatusCreated},
		{name: "panic", method: http.MethodGet, path: "/boom", wantCode: http.StatusInternalServerError, wantMsg: "Internal server error"},
		{name: "unclassified error hides detail", method: http.MethodGet, path: "/opaque", wantCode: http.StatusInternalServerError, wantMsg: "Internal server error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Arrange
			req := httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body))
			rec := httptest.NewRecorder()

			// Act
			r.ServeHTTP(rec, req)

			// Assert
			assert.Equal(t, tt.wantCode, rec.Code)
			if tt.wantMsg != "" {
				var resp map[string]any
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
				assert.Equal(t, tt.wantMsg, resp["message"])
			}
		})
	}
}

func TestRouter_CorrelationID(t *testing.T) {
	r := newTestRouter()

	tests := []struct {
		name    string
		headers map[string]string
		want    string
	}{
		{name: "generated", want: "generated-cid"},
		{name: "correlation header", headers: map[string]string{HeaderCorrelationID: "cid-1"}, want: "cid-1"},
		{name: "request id header", headers: map[string]string{HeaderRequestID: "rid-1"}, want: "rid-1"},
		{name: "cloud trace header", headers: map[string]string{HeaderCloudTrace: "105445aa7843bc8bf206b12000100000/1;o=1"}, want: "105445aa7843bc8bf206b12000100000"},
		{name: "header injection ignored", headers: map[string]string{HeaderCorrelationID: "a\r\nb"}, want: "generated-cid"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/push", nil)
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			rec := httptest.NewRecorder()

			r.ServeHTTP(rec, req)

			assert.Equal(t, http.StatusNoContent, rec.Code)
			assert.Equal(t, tt.want, rec.Header().Get(HeaderCorrelationID))
			assert.Equal(t, tt.want, rec.Header().Get("X-Seen-CID"))
		})
	}
}

func TestChain_Order(t *testing.T) {
	var order []string
	mw := func(name string) Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	h := Chain(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { order = append(order, "handler") }), mw("outer"), nil, mw("inner"))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, []string{"outer", "inner", "handler"}, order)
}
