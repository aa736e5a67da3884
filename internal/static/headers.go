package static

import (
	"bufio"
	"net"
	"net/http"
)

// PolicyHeaders returns the headers added to every response. The result
// depends only on whether files are being watched, never on the route.
func PolicyHeaders(watching bool) http.Header {
	h := http.Header{}
	h.Set("Access-Control-Allow-Origin", "*")
	h.Set("Cross-Origin-Embedder-Policy", "require-corp")
	h.Set("Cross-Origin-Opener-Policy", "same-origin")
	if watching {
		h.Set("Cache-Control", "no-cache, no-store, must-revalidate")
		h.Set("Pragma", "no-cache")
	}
	return h
}

// Headers returns middleware that applies PolicyHeaders to every response.
// The policy is set before the handler runs and set again when the status
// line is written, since http.ServeContent drops Cache-Control on its error
// responses.
func Headers(watching bool) func(http.Handler) http.Handler {
	policy := PolicyHeaders(watching)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			applyPolicy(w.Header(), policy)
			next.ServeHTTP(&policyWriter{ResponseWriter: w, policy: policy}, r)
		})
	}
}

func applyPolicy(dst, policy http.Header) {
	for key, values := range policy {
		dst[key] = append([]string(nil), values...)
	}
}

// policyWriter re-applies the header policy just before the header is sent.
type policyWriter struct {
	http.ResponseWriter
	policy      http.Header
	wroteHeader bool
}

func (w *policyWriter) WriteHeader(code int) {
	if !w.wroteHeader && code >= http.StatusOK {
		w.wroteHeader = true
		applyPolicy(w.ResponseWriter.Header(), w.policy)
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *policyWriter) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	return w.ResponseWriter.Write(b)
}

func (w *policyWriter) Flush() {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	http.NewResponseController(w.ResponseWriter).Flush()
}

func (w *policyWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	return http.NewResponseController(w.ResponseWriter).Hijack()
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (w *policyWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
