package dev

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vango-dev/devserve/internal/config"
	"github.com/vango-dev/devserve/internal/errors"
	"github.com/vango-dev/devserve/internal/mount"
	"github.com/vango-dev/devserve/internal/static"
)

// fixture lays out a project with a public dir, a single-page app file and
// an SPA fallback at the root.
func fixture(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	files := map[string]string{
		"public/logo.png":   "\x89PNG logo",
		"public/index.html": "<html><body>public</body></html>",
		"app.html":          "<html><body>app</body></html>",
		"index.html":        "<html><body>spa</body></html>",
	}
	for name, content := range files {
		p := filepath.Join(root, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return root
}

func testConfig(t *testing.T, root string, watch bool) *config.Config {
	t.Helper()
	cfg := config.New()
	cfg.Port = 0
	cfg.Root = root
	cfg.Watch = watch
	specs, err := mount.ParseAll([]string{
		"/static:" + filepath.Join(root, "public"),
		"/app.html:" + filepath.Join(root, "app.html"),
	})
	if err != nil {
		t.Fatal(err)
	}
	cfg.Mounts = specs
	return cfg
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
	return rr
}

func TestServer_Routes(t *testing.T) {
	root := fixture(t)
	s := NewServer(ServerOptions{Config: testConfig(t, root, false)})
	h := s.Handler()

	tests := []struct {
		path string
		code int
		body string
	}{
		{"/static/logo.png", 200, "\x89PNG logo"},
		{"/static/", 200, "<html><body>public</body></html>"},
		{"/app.html", 200, "<html><body>app</body></html>"},
		{"/app.html/sub/route", 200, "<html><body>app</body></html>"},
		{"/unknown", 200, "<html><body>spa</body></html>"},
		{"/deep/client/route", 200, "<html><body>spa</body></html>"},
		{"/", 200, "<html><body>spa</body></html>"},
		{"/static/missing.png", 404, ""},
		{"/static/../../etc/passwd", 404, ""},
		{"/static/%2e%2e/app.html", 404, ""},
	}

	for _, tt := range tests {
		rr := get(t, h, tt.path)
		if rr.Code != tt.code {
			t.Errorf("GET %s: status = %d, want %d", tt.path, rr.Code, tt.code)
			continue
		}
		if tt.body != "" && rr.Body.String() != tt.body {
			t.Errorf("GET %s: body = %q, want %q", tt.path, rr.Body.String(), tt.body)
		}
	}
}

func TestServer_HeaderPolicy(t *testing.T) {
	root := fixture(t)

	for _, watch := range []bool{true, false} {
		h := NewServer(ServerOptions{Config: testConfig(t, root, watch)}).Handler()

		for _, path := range []string{"/static/logo.png", "/static/missing.png", "/unknown", MetricsPath} {
			rr := get(t, h, path)
			hdr := rr.Header()

			if hdr.Get("Cross-Origin-Embedder-Policy") != "require-corp" ||
				hdr.Get("Cross-Origin-Opener-Policy") != "same-origin" ||
				hdr.Get("Access-Control-Allow-Origin") != "*" {
				t.Errorf("watch=%v GET %s (%d): isolation headers missing: %v", watch, path, rr.Code, hdr)
			}

			cc := hdr.Get("Cache-Control")
			if watch && cc != "no-cache, no-store, must-revalidate" {
				t.Errorf("watch=true GET %s (%d): Cache-Control = %q", path, rr.Code, cc)
			}
			if !watch && cc != "" {
				t.Errorf("watch=false GET %s (%d): Cache-Control = %q, want none", path, rr.Code, cc)
			}
		}

		// ServeContent error responses (416 here) must keep the policy too.
		req := httptest.NewRequest(http.MethodGet, "/static/logo.png", nil)
		req.Header.Set("Range", "bytes=99999-")
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		if rr.Code != http.StatusRequestedRangeNotSatisfiable {
			t.Fatalf("watch=%v unsatisfiable range: status = %d, want 416", watch, rr.Code)
		}
		cc := rr.Header().Get("Cache-Control")
		if watch && (cc != "no-cache, no-store, must-revalidate" || rr.Header().Get("Pragma") != "no-cache") {
			t.Errorf("watch=true 416: Cache-Control = %q Pragma = %q", cc, rr.Header().Get("Pragma"))
		}
		if !watch && cc != "" {
			t.Errorf("watch=false 416: Cache-Control = %q, want none", cc)
		}
		if rr.Header().Get("Cross-Origin-Embedder-Policy") != "require-corp" {
			t.Errorf("watch=%v 416: COEP missing", watch)
		}
	}
}

func TestServer_InjectsClientOnlyWhenWatching(t *testing.T) {
	root := fixture(t)

	watching := get(t, NewServer(ServerOptions{Config: testConfig(t, root, true)}).Handler(), "/app.html")
	if !strings.Contains(watching.Body.String(), ReloadPath) {
		t.Error("HTML should carry the reload client while watching")
	}
	if !strings.HasSuffix(watching.Body.String(), "</body></html>") {
		t.Error("client should be inserted before </body>")
	}

	png := get(t, NewServer(ServerOptions{Config: testConfig(t, root, true)}).Handler(), "/static/logo.png")
	if png.Body.String() != "\x89PNG logo" {
		t.Error("non-HTML content must not be modified")
	}

	plain := get(t, NewServer(ServerOptions{Config: testConfig(t, root, false)}).Handler(), "/app.html")
	if strings.Contains(plain.Body.String(), ReloadPath) {
		t.Error("HTML must not carry the reload client when watching is off")
	}
}

func TestServer_ReloadEndpointOnlyWhenWatching(t *testing.T) {
	root := fixture(t)

	s := NewServer(ServerOptions{Config: testConfig(t, root, false)})
	if s.Broadcaster() != nil {
		t.Error("no broadcaster expected when watching is off")
	}
	// Falls through to the root mount's SPA fallback.
	if rr := get(t, s.Handler(), ReloadPath); rr.Body.String() != "<html><body>spa</body></html>" {
		t.Errorf("GET %s without watch = %d %q", ReloadPath, rr.Code, rr.Body.String())
	}
}

func TestServer_Metrics(t *testing.T) {
	root := fixture(t)
	h := NewServer(ServerOptions{Config: testConfig(t, root, true)}).Handler()

	get(t, h, "/static/logo.png")
	get(t, h, "/static/missing.png")

	rr := get(t, h, MetricsPath)
	if rr.Code != http.StatusOK {
		t.Fatalf("GET %s status = %d", MetricsPath, rr.Code)
	}
	body := rr.Body.String()
	for _, want := range []string{
		`devserve_requests_total{code="200",route="/*"} 1`,
		`devserve_requests_total{code="404",route="/*"} 1`,
		`devserve_mount_requests_total{mount="/static",result="not_found"} 1`,
		`devserve_mount_requests_total{mount="/static",result="ok"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics missing %q:\n%s", want, body)
		}
	}
}

func startServer(t *testing.T, cfg *config.Config) (*Server, string) {
	t.Helper()
	s := NewServer(ServerOptions{Config: cfg})
	if err := s.Listen(); err != nil {
		t.Fatalf("Listen: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("Start returned %v after cancel", err)
			}
		case <-time.After(5 * time.Second):
			t.Error("server did not stop")
		}
	})

	port := s.Addr().(*net.TCPAddr).Port
	return s, "http://" + net.JoinHostPort("127.0.0.1", strconv.Itoa(port))
}

func TestServer_EndToEnd(t *testing.T) {
	root := fixture(t)
	s, base := startServer(t, testConfig(t, root, true))

	resp, err := http.Get(base + "/static/logo.png")
	if err != nil {
		t.Fatalf("GET logo: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != 200 || string(body) != "\x89PNG logo" {
		t.Fatalf("GET logo = %d %q", resp.StatusCode, body)
	}

	c1 := dialReload(t, base)
	defer c1.Close()
	c2 := dialReload(t, base)
	defer c2.Close()
	waitFor(t, "sessions", func() bool { return s.Broadcaster().Count() == 2 })

	if err := os.WriteFile(filepath.Join(root, "public", "logo.png"), []byte("new logo"), 0o644); err != nil {
		t.Fatal(err)
	}

	for i, c := range []*websocket.Conn{c1, c2} {
		c.SetReadDeadline(time.Now().Add(3 * time.Second))
		var msg ReloadMessage
		if err := c.ReadJSON(&msg); err != nil {
			t.Fatalf("client %d: ReadJSON: %v", i, err)
		}
		if msg.Type != ReloadTypeFull {
			t.Errorf("client %d: type = %q", i, msg.Type)
		}
	}

	// One save is one reload.
	c1.SetReadDeadline(time.Now().Add(300 * time.Millisecond))
	var extra ReloadMessage
	if err := c1.ReadJSON(&extra); err == nil {
		t.Errorf("unexpected second reload: %+v", extra)
	}
}

func TestServer_BindFailure(t *testing.T) {
	ln, err := net.Listen("tcp", ":0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	cfg := testConfig(t, fixture(t), false)
	cfg.Port = ln.Addr().(*net.TCPAddr).Port

	err = NewServer(ServerOptions{Config: cfg}).Start(context.Background())
	if !errors.HasCode(err, "E110") {
		t.Errorf("Start() error = %v, want E110", err)
	}
}

func TestServer_WatchFailure(t *testing.T) {
	cfg := testConfig(t, fixture(t), true)
	cfg.Root = filepath.Join(t.TempDir(), "missing")

	err := NewServer(ServerOptions{Config: cfg}).Start(context.Background())
	if !errors.HasCode(err, "E120") {
		t.Errorf("Start() error = %v, want E120", err)
	}
}

func TestServer_StopsOnCancel(t *testing.T) {
	cfg := testConfig(t, fixture(t), false)
	s := NewServer(ServerOptions{Config: cfg})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()

	waitFor(t, "listener", func() bool { return s.Addr() != nil })
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Start() = %v, want nil on cancel", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestServer_ReloadHandshake(t *testing.T) {
	_, base := startServer(t, testConfig(t, fixture(t), true))

	url := "ws" + strings.TrimPrefix(base, "http") + ReloadPath
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	if resp.StatusCode != http.StatusSwitchingProtocols {
		t.Fatalf("handshake status = %d", resp.StatusCode)
	}
	for key, want := range static.PolicyHeaders(true) {
		if got := resp.Header.Get(key); got != want[0] {
			t.Errorf("handshake %s = %q, want %q", key, got, want[0])
		}
	}

	conn.Close()
	want := `devserve_requests_total{code="101",route="` + ReloadPath + `"} 1`
	waitFor(t, "upgrade metric", func() bool {
		resp, err := http.Get(base + MetricsPath)
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		return strings.Contains(string(body), want)
	})
}
