package router

import (
	"net/http"
	"strings"

	"github.com/shandysiswandi/gostream/internal/pkg/instrument"
	"github.com/shandysiswandi/gostream/internal/pkg/uid"
)

const (
	// HeaderCorrelationID is the canonical header used to track requests end-to-end.
	HeaderCorrelationID = "X-Correlation-ID"
	// HeaderRequestID is an accepted alternative header name used by some proxies.
	HeaderRequestID = "X-Request-ID"
	// HeaderCloudTrace is set by Google front ends, including on Pub/Sub push
	// requests. Its value is "TRACE_ID/SPAN_ID;o=OPTIONS".
	HeaderCloudTrace = "X-Cloud-Trace-Context"
)

func normalizeCID(v string) string {
	if strings.ContainsAny(v, "\r\n") {
		return ""
	}
	v = strings.TrimSpace(v)
	const maxLen = 128
	if len(v) > maxLen {
		v = v[:maxLen]
	}
	return v
}

func cloudTraceID(v string) string {
	id, _, _ := strings.Cut(v, "/")
	return normalizeCID(id)
}

func requestCID(r *http.Request) string {
	if cid := normalizeCID(r.Header.Get(HeaderCorrelationID)); cid != "" {
		return cid
	}
	if cid := normalizeCID(r.Header.Get(HeaderRequestID)); cid != "" {
		return cid
	}
	return cloudTraceID(r.Header.Get(HeaderCloudTrace))
}

func middlewareCorrelationID(gen uid.StringID) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cid := requestCID(r)
			if cid == "" && gen != nil {
				cid = gen.Generate()
			}

			if cid != "" {
				w.Header().Set(HeaderCorrelationID, cid)
				r = r.WithContext(instrument.SetCorrelationID(r.Context(), cid))
			}

			next.ServeHTTP(w, r)
		})
	}
}
