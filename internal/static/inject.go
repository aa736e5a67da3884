package static

import "bytes"

// InjectScript inserts script before the last </body>, else before the last
// </html>, else at the end of the document.
func InjectScript(body []byte, script string) []byte {
	idx := bytes.LastIndex(body, []byte("</body>"))
	if idx == -1 {
		idx = bytes.LastIndex(body, []byte("</html>"))
	}
	if idx == -1 {
		idx = len(body)
	}

	out := make([]byte, 0, len(body)+len(script))
	out = append(out, body[:idx]...)
	out = append(out, script...)
	out = append(out, body[idx:]...)
	return out
}
