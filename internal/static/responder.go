package static

import (
	"bytes"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/vango-dev/devserve/internal/errors"
	"github.com/vango-dev/devserve/internal/mount"
)

// IndexFile is served for requests that land on a directory.
const IndexFile = "index.html"

// ErrNotFound is returned when there is no servable file for a request.
var ErrNotFound = errors.New("E130")

// Asset is an opened file ready to be written to a response.
type Asset struct {
	// Name is the base name used for content type detection.
	Name    string
	ModTime time.Time

	// Fallback is set when the SPA fallback document was substituted.
	Fallback bool

	file *os.File
}

// Close releases the underlying file.
func (a *Asset) Close() error {
	return a.file.Close()
}

// Responder serves files for resolved mounts.
type Responder struct {
	// Inject, when set, rewrites the body of every HTML response.
	Inject func([]byte) []byte
}

// NewResponder creates a responder. inject may be nil.
func NewResponder(inject func([]byte) []byte) *Responder {
	return &Responder{Inject: inject}
}

// Open finds the file for m and rem. It returns ErrNotFound when the
// remainder escapes the mount or no file exists.
func (r *Responder) Open(m mount.Mount, rem string) (*Asset, error) {
	if m.Kind == mount.File {
		return openFile(m.Target)
	}

	rel, ok := RelPath(rem)
	if !ok {
		return nil, ErrNotFound
	}

	asset, err := openInDir(m.Target, rel)
	if err == nil {
		return asset, nil
	}
	if m.Fallback == "" {
		return nil, err
	}

	fallback, ok := RelPath(m.Fallback)
	if !ok {
		return nil, err
	}
	asset, ferr := openInDir(m.Target, fallback)
	if ferr != nil {
		return nil, err
	}
	asset.Fallback = true
	return asset, nil
}

// Serve writes the response for m and rem. A 404 has already been written
// when the returned error is ErrNotFound.
func (r *Responder) Serve(w http.ResponseWriter, req *http.Request, m mount.Mount, rem string) error {
	if req.Method != http.MethodGet && req.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return nil
	}

	asset, err := r.Open(m, rem)
	if err != nil {
		http.NotFound(w, req)
		return err
	}
	defer asset.Close()

	var content io.ReadSeeker = asset.file
	if r.Inject != nil && isHTML(asset.Name) {
		body, err := io.ReadAll(asset.file)
		if err != nil {
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return err
		}
		content = bytes.NewReader(r.Inject(body))
	}

	http.ServeContent(w, req, asset.Name, asset.ModTime, content)
	return nil
}

// RelPath returns a sanitized slash-free OS path for a directory mount
// remainder. It rejects traversal and absolute-path tricks so serving cannot
// escape the mount target. An empty remainder names the directory itself.
func RelPath(rem string) (string, bool) {
	if rem == "" {
		return ".", true
	}

	// Reject NUL early (can appear via %00).
	if strings.IndexByte(rem, 0) != -1 {
		return "", false
	}

	// Reject platform-dependent separators.
	if strings.Contains(rem, "\\") {
		return "", false
	}

	// A leading "/" after prefix stripping is an absolute-path attempt
	// (e.g. "/static//etc/passwd" => "/etc/passwd").
	if strings.HasPrefix(rem, "/") {
		return "", false
	}

	// Reject dot-segments before cleaning so traversal attempts are not
	// cleaned into something that looks harmless.
	for _, seg := range strings.Split(rem, "/") {
		if seg == "." || seg == ".." {
			return "", false
		}
	}

	clean := path.Clean(rem)
	if clean == ".." || strings.HasPrefix(clean, "../") || strings.HasPrefix(clean, "/") {
		return "", false
	}

	osPath := filepath.FromSlash(clean)
	if filepath.IsAbs(osPath) || filepath.VolumeName(osPath) != "" {
		return "", false
	}

	return osPath, true
}

func openFile(name string) (*Asset, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, ErrNotFound
	}
	info, err := f.Stat()
	if err != nil || info.IsDir() {
		f.Close()
		return nil, ErrNotFound
	}
	return &Asset{Name: info.Name(), ModTime: info.ModTime(), file: f}, nil
}

func openInDir(dir, rel string) (*Asset, error) {
	root, err := os.OpenRoot(dir)
	if err != nil {
		return nil, ErrNotFound
	}
	defer root.Close()

	f, info, err := openRegular(root, rel)
	if err != nil {
		return nil, err
	}
	return &Asset{Name: info.Name(), ModTime: info.ModTime(), file: f}, nil
}

// openRegular opens rel inside root, descending into index.html when rel is
// a directory.
func openRegular(root *os.Root, rel string) (*os.File, fs.FileInfo, error) {
	f, err := root.Open(rel)
	if err != nil {
		return nil, nil, ErrNotFound
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, ErrNotFound
	}
	if !info.IsDir() {
		return f, info, nil
	}
	f.Close()

	f, err = root.Open(filepath.Join(rel, IndexFile))
	if err != nil {
		return nil, nil, ErrNotFound
	}
	info, err = f.Stat()
	if err != nil || info.IsDir() {
		f.Close()
		return nil, nil, ErrNotFound
	}
	return f, info, nil
}

func isHTML(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".html" || ext == ".htm"
}
