package inbound

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shandysiswandi/gostream/internal/pkg/messaging"
	"github.com/shandysiswandi/gostream/internal/pkg/router"
	"github.com/shandysiswandi/gostream/internal/stream/usecase"
)

type fakeUC struct {
	published  []usecase.PublishInput
	publishErr error
	topics     []string
	listErr    error
	results    []usecase.TopicResult
	createErr  error
}

func (f *fakeUC) Publish(_ context.Context, in usecase.PublishInput) (*usecase.PublishOutput, error) {
	if f.publishErr != nil {
		return nil, f.publishErr
	}
	f.published = append(f.published, in)
	return &usecase.PublishOutput{Topic: in.Topic, MessageID: "42"}, nil
}

func (f *fakeUC) ListTopics(context.Context) ([]string, error) {
	return f.topics, f.listErr
}

func (f *fakeUC) CreateTopics(context.Context, usecase.CreateTopicsInput) ([]usecase.TopicResult, error) {
	return f.results, f.createErr
}

func serve(t *testing.T, uc uc, method, path, body string) (int, map[string]any) {
	t.Helper()

	r := router.NewRouter(router.Config{Name: "gostream"})
	RegisterHTTPEndpoint(r, uc)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(method, path, strings.NewReader(body)))

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return rec.Code, resp
}

func TestHTTPEndpoint_Publish(t *testing.T) {
	t.Run("accepted", func(t *testing.T) {
		// Arrange
		uc := &fakeUC{}

		// Act
		code, resp := serve(t, uc, http.MethodPost, "/api/v1/stream/messages", `{"topic":"mnist-in","key":"a1b2","value":"{\"v\":1}"}`)

		// Assert
		assert.Equal(t, http.StatusAccepted, code)
		assert.Equal(t, map[string]any{"topic": "mnist-in", "message_id": "42"}, resp["data"])
		assert.Equal(t, []usecase.PublishInput{{Topic: "mnist-in", Key: "a1b2", Value: `{"v":1}`}}, uc.published)
	})

	t.Run("unknown topic", func(t *testing.T) {
		uc := &fakeUC{publishErr: messaging.ErrTopicNotFound}

		code, _ := serve(t, uc, http.MethodPost, "/api/v1/stream/messages", `{"topic":"nope","key":"a","value":"b"}`)

		assert.Equal(t, http.StatusNotFound, code)
	})

	t.Run("malformed body", func(t *testing.T) {
		uc := &fakeUC{}

		code, _ := serve(t, uc, http.MethodPost, "/api/v1/stream/messages", `{"topic":`)

		assert.Equal(t, http.StatusBadRequest, code)
		assert.Empty(t, uc.published)
	})
}

func TestHTTPEndpoint_ListTopics(t *testing.T) {
	tests := []struct {
		name     string
		uc       *fakeUC
		wantCode int
		wantData any
	}{
		{name: "listed", uc: &fakeUC{topics: []string{"mnist-in"}}, wantCode: http.StatusOK, wantData: map[string]any{"topics": []any{"mnist-in"}}},
		{name: "empty is not null", uc: &fakeUC{}, wantCode: http.StatusOK, wantData: map[string]any{"topics": []any{}}},
		{name: "backend down", uc: &fakeUC{listErr: messaging.ErrClosed}, wantCode: http.StatusServiceUnavailable},
		{name: "unclassified", uc: &fakeUC{listErr: errors.New("boom")}, wantCode: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, resp := serve(t, tt.uc, http.MethodGet, "/api/v1/stream/topics", "")

			assert.Equal(t, tt.wantCode, code)
			if tt.wantData != nil {
				assert.Equal(t, tt.wantData, resp["data"])
			}
		})
	}
}

func TestHTTPEndpoint_CreateTopics(t *testing.T) {
	// Arrange
	uc := &fakeUC{results: []usecase.TopicResult{
		{Name: "mnist-in", Status: usecase.TopicExists},
		{Name: "mnist-bad", Status: usecase.TopicFailed, Err: errors.New("denied")},
	}}

	// Act
	code, resp := serve(t, uc, http.MethodPost, "/api/v1/stream/topics", `{"topics":["mnist-in","mnist-bad"]}`)

	// Assert
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, map[string]any{"results": []any{
		map[string]any{"name": "mnist-in", "status": "exists"},
		map[string]any{"name": "mnist-bad", "status": "failed", "error": "denied"},
	}}, resp["data"])
}

func TestHTTPEndpoint_CreateTopics_AdminMissing(t *testing.T) {
	code, resp := serve(t, &fakeUC{createErr: messaging.ErrAdminConfigRequired}, http.MethodPost, "/api/v1/stream/topics", `{"topics":["a"]}`)

	assert.Equal(t, http.StatusBadRequest, code)
	assert.NotEmpty(t, resp["message"])
}

func TestRegisterPushEndpoint(t *testing.T) {
	t.Run("mounted", func(t *testing.T) {
		r := router.NewRouter(router.Config{})
		RegisterPushEndpoint(r, "/push", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		}))

		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/push", strings.NewReader("{}")))

		assert.Equal(t, http.StatusNoContent, rec.Code)
	})

	t.Run("nil handler is skipped", func(t *testing.T) {
		r := router.NewRouter(router.Config{})
		RegisterPushEndpoint(r, "/push", nil)

		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/push", nil))

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}
