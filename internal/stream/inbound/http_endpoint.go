package inbound

import (
	"github.com/samber/lo"

	"github.com/shandysiswandi/gostream/internal/pkg/router"
	"github.com/shandysiswandi/gostream/internal/stream/usecase"
)

type HTTPEndpoint struct {
	uc uc
}

// Publish sends one message and answers once the broker acknowledged it.
func (h *HTTPEndpoint) Publish(r *router.Request) (any, error) {
	var req PublishRequest
	if err := r.DecodeBody(&req); err != nil {
		return nil, err
	}

	out, err := h.uc.Publish(r.Context(), usecase.PublishInput{
		Topic: req.Topic,
		Key:   req.Key,
		Value: req.Value,
	})
	if err != nil {
		return nil, err
	}

	return PublishResponse{Topic: out.Topic, MessageID: out.MessageID}, nil
}

// ListTopics returns the live topic listing.
func (h *HTTPEndpoint) ListTopics(r *router.Request) (any, error) {
	topics, err := h.uc.ListTopics(r.Context())
	if err != nil {
		return nil, err
	}

	return TopicsResponse{Topics: lo.Ternary(topics == nil, []string{}, topics)}, nil
}

// CreateTopics creates topics and reports a status per name.
func (h *HTTPEndpoint) CreateTopics(r *router.Request) (any, error) {
	var req CreateTopicsRequest
	if err := r.DecodeBody(&req); err != nil {
		return nil, err
	}

	results, err := h.uc.CreateTopics(r.Context(), usecase.CreateTopicsInput{Topics: req.Topics})
	if err != nil {
		return nil, err
	}

	return CreateTopicsResponse{
		Results: lo.Map(results, func(res usecase.TopicResult, _ int) TopicResultResponse {
			out := TopicResultResponse{Name: res.Name, Status: string(res.Status)}
			if res.Err != nil {
				out.Error = res.Err.Error()
			}
			return out
		}),
	}, nil
}
