package router

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/julienschmidt/httprouter"

	"github.com/shandysiswandi/gostream/internal/pkg/goerror"
)

// ErrInvalidBody is returned by DecodeBody for a missing or malformed JSON body.
var ErrInvalidBody = goerror.New(goerror.KindDecode, "invalid request body")

// Request wraps http.Request with helpers for inbound handlers.
type Request struct {
	*http.Request
}

// GetParam reads a path parameter stored by httprouter.
func (r *Request) GetParam(key string) string {
	return httprouter.ParamsFromContext(r.Context()).ByName(key)
}

// GetQuery returns the trimmed query value for key.
func (r *Request) GetQuery(key string) string {
	return strings.TrimSpace(r.URL.Query().Get(key))
}

// DecodeBody decodes a single JSON object into dst, rejecting unknown fields.
func (r *Request) DecodeBody(dst any) error {
	if r == nil || r.Body == nil {
		return ErrInvalidBody
	}

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidBody, err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return ErrInvalidBody
	}

	return nil
}
