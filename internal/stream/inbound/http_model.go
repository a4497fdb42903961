package inbound

import "net/http"

type PublishRequest struct {
	Topic string `json:"topic"`
	Key   string `json:"key"`
	Value string `json:"value"`
}

type PublishResponse struct {
	Topic     string `json:"topic"`
	MessageID string `json:"message_id"`
}

func (PublishResponse) StatusCode() int { return http.StatusAccepted }

type TopicsResponse struct {
	Topics []string `json:"topics"`
}

type CreateTopicsRequest struct {
	Topics []string `json:"topics"`
}

type TopicResultResponse struct {
	Name   string `json:"name"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

type CreateTopicsResponse struct {
	Results []TopicResultResponse `json:"results"`
}
