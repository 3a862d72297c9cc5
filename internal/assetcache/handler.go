package assetcache

import (
	"io"
	"net/http"
	"net/textproto"
	"strings"

	"go.uber.org/zap"
)

// Handler routes every request through a Worker and writes the result.
type Handler struct {
	worker *Worker
	log    *zap.Logger
}

// NewHandler wraps w as an http.Handler.
func NewHandler(w *Worker, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{worker: w, log: logger}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	resp, err := h.worker.Fetch(r.Context(), r)
	if err != nil {
		// No offline fallback: the network failure reaches the client as-is.
		h.log.Warn("asset fetch failed", zap.String("path", r.URL.Path), zap.Error(err))
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	defer resp.Body.Close()

	copyEndToEndHeaders(w.Header(), resp.Header)
	w.WriteHeader(resp.StatusCode)
	if r.Method == http.MethodHead {
		return
	}
	if _, err := io.Copy(w, resp.Body); err != nil {
		h.log.Debug("response copy interrupted", zap.String("path", r.URL.Path), zap.Error(err))
	}
}

// hopHeaders apply to a single connection and are not forwarded.
var hopHeaders = []string{
	"Connection",
	"Proxy-Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// copyEndToEndHeaders adds src to dst, leaving out hop-by-hop headers and
// any header named in src's Connection field.
func copyEndToEndHeaders(dst, src http.Header) {
	skip := make(map[string]bool, len(hopHeaders))
	for _, h := range hopHeaders {
		skip[h] = true
	}
	for _, v := range src.Values("Connection") {
		for _, name := range strings.Split(v, ",") {
			if name = textproto.TrimString(name); name != "" {
				skip[textproto.CanonicalMIMEHeaderKey(name)] = true
			}
		}
	}
	for k, vv := range src {
		if skip[textproto.CanonicalMIMEHeaderKey(k)] {
			continue
		}
		for _, v := range vv {
			dst.Add(k, v)
		}
	}
}
