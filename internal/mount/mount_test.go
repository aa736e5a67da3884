package mount

import (
	"path/filepath"
	"testing"

	"github.com/vango-dev/devserve/internal/errors"
)

func TestParse(t *testing.T) {
	tests := []struct {
		token  string
		prefix string
		target string
		kind   Kind
		exact  bool
	}{
		{"/static:./public", "/static", "public", Directory, false},
		{"/static/:./public/", "/static", "public", Directory, false},
		{"/app.html:./app.html", "/app.html", "app.html", File, false},
		{"/app/:./app.html", "/app/", "app.html", File, true},
		{"/:./dist", "/", "dist", Directory, false},
		{"/docs:C:/docs", "/docs", filepath.Clean("C:/docs"), Directory, false},
		{"/a//b:x", "/a/b", "x", Directory, false},
	}

	for _, tt := range tests {
		got, err := Parse(tt.token)
		if err != nil {
			t.Errorf("Parse(%q) error: %v", tt.token, err)
			continue
		}
		if got.Prefix != tt.prefix {
			t.Errorf("Parse(%q).Prefix = %q, want %q", tt.token, got.Prefix, tt.prefix)
		}
		if got.Target != tt.target {
			t.Errorf("Parse(%q).Target = %q, want %q", tt.token, got.Target, tt.target)
		}
		if got.Kind != tt.kind {
			t.Errorf("Parse(%q).Kind = %v, want %v", tt.token, got.Kind, tt.kind)
		}
		if got.Exact != tt.exact {
			t.Errorf("Parse(%q).Exact = %v, want %v", tt.token, got.Exact, tt.exact)
		}
	}
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		token string
		code  string
	}{
		{"static", "E102"},
		{":./public", "E102"},
		{"static:./public", "E102"},
		{"/static:", "E103"},
		{"/_devserve:./x", "E104"},
		{"/_devserve/reload:./x", "E104"},
	}

	for _, tt := range tests {
		_, err := Parse(tt.token)
		if err == nil {
			t.Errorf("Parse(%q) should fail", tt.token)
			continue
		}
		if !errors.HasCode(err, tt.code) {
			t.Errorf("Parse(%q) error = %v, want code %s", tt.token, err, tt.code)
		}
	}
}

func TestParse_ReservedLookalike(t *testing.T) {
	spec, err := Parse("/_devserver:./x")
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if spec.Prefix != "/_devserver" {
		t.Errorf("Prefix = %q", spec.Prefix)
	}
}

func TestParseAll_StopsAtFirstError(t *testing.T) {
	_, err := ParseAll([]string{"/a:./a", "broken", "/b:./b"})
	if !errors.HasCode(err, "E102") {
		t.Fatalf("ParseAll error = %v, want E102", err)
	}

	specs, err := ParseAll([]string{"/a:./a", "/b.html:./b.html"})
	if err != nil {
		t.Fatalf("ParseAll error: %v", err)
	}
	if len(specs) != 2 || specs[1].Kind != File {
		t.Errorf("ParseAll = %+v", specs)
	}
}

func TestKindString(t *testing.T) {
	if File.String() != "file" || Directory.String() != "dir" {
		t.Errorf("Kind.String() = %q, %q", File.String(), Directory.String())
	}
}
