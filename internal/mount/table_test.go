package mount

import "testing"

func mustParse(t *testing.T, tokens ...string) []Spec {
	t.Helper()
	specs, err := ParseAll(tokens)
	if err != nil {
		t.Fatalf("ParseAll(%v): %v", tokens, err)
	}
	return specs
}

func TestResolve_LongestPrefix(t *testing.T) {
	root := Root(".", DefaultFallback)
	table := NewTable(&root, mustParse(t, "/a:./a", "/a/b:./ab")...)

	tests := []struct {
		path   string
		prefix string
		rem    string
	}{
		{"/a/b/c", "/a/b", "c"},
		{"/a/b", "/a/b", ""},
		{"/a/x", "/a", "x"},
		{"/a", "/a", ""},
		{"/ab", "/", "ab"},
		{"/", "/", ""},
		{"", "/", ""},
		{"/other/page", "/", "other/page"},
	}

	for _, tt := range tests {
		m, rem, ok := table.Resolve(tt.path)
		if !ok {
			t.Errorf("Resolve(%q) found nothing", tt.path)
			continue
		}
		if m.Prefix != tt.prefix || rem != tt.rem {
			t.Errorf("Resolve(%q) = (%q, %q), want (%q, %q)", tt.path, m.Prefix, rem, tt.prefix, tt.rem)
		}
	}
}

func TestResolve_RegistrationOrderIndependent(t *testing.T) {
	table := NewTable(nil, mustParse(t, "/a/b:./ab", "/a:./a")...)
	m, rem, _ := table.Resolve("/a/b/c")
	if m.Prefix != "/a/b" || rem != "c" {
		t.Errorf("Resolve = (%q, %q), want (/a/b, c)", m.Prefix, rem)
	}
}

func TestResolve_LastRegistrationWins(t *testing.T) {
	table := NewTable(nil, mustParse(t, "/x:./first", "/x:./second", "/x/:./second")...)

	for i := 0; i < 3; i++ {
		m, _, ok := table.Resolve("/x/file.txt")
		if !ok || m.Target != "second" {
			t.Fatalf("lookup %d: Resolve target = %q, want second", i, m.Target)
		}
	}
	if n := len(table.Mounts()); n != 1 {
		t.Errorf("len(Mounts()) = %d, want 1", n)
	}
}

func TestResolve_ExplicitRootReplacesDefault(t *testing.T) {
	root := Root(".", DefaultFallback)
	table := NewTable(&root, mustParse(t, "/:./dist")...)

	m, _, _ := table.Resolve("/anything")
	if m.Target != "dist" {
		t.Errorf("Target = %q, want dist", m.Target)
	}
	if m.Fallback != "" {
		t.Errorf("explicit root mount must not carry a fallback, got %q", m.Fallback)
	}
}

func TestResolve_FileMount(t *testing.T) {
	root := Root(".", DefaultFallback)
	table := NewTable(&root, mustParse(t, "/app.html:./app.html", "/shell/:./shell.html")...)

	tests := []struct {
		path   string
		prefix string
		rem    string
	}{
		{"/app.html", "/app.html", ""},
		{"/app.html/deep/link", "/app.html", ""},
		{"/app.htmlx", "/", "app.htmlx"},
		{"/shell/", "/shell/", ""},
		{"/shell", "/", "shell"},
		{"/shell/x", "/", "shell/x"},
	}

	for _, tt := range tests {
		m, rem, _ := table.Resolve(tt.path)
		if m.Prefix != tt.prefix || rem != tt.rem {
			t.Errorf("Resolve(%q) = (%q, %q), want (%q, %q)", tt.path, m.Prefix, rem, tt.prefix, tt.rem)
		}
	}
}

func TestResolve_RootFileMountMatchesEverything(t *testing.T) {
	table := NewTable(nil, mustParse(t, "/:./index.html")...)
	for _, p := range []string{"/", "/a", "/a/b/c"} {
		m, rem, ok := table.Resolve(p)
		if !ok || m.Kind != File || rem != "" {
			t.Errorf("Resolve(%q) = (%+v, %q, %v)", p, m, rem, ok)
		}
	}
}

func TestResolve_NoDefault(t *testing.T) {
	table := NewTable(nil, mustParse(t, "/a:./a")...)
	if _, _, ok := table.Resolve("/b"); ok {
		t.Error("Resolve(/b) should not match without a default mount")
	}
}

func TestResolve_DefaultKeepsFallback(t *testing.T) {
	root := Root("site", "app.html")
	table := NewTable(&root)
	m, rem, _ := table.Resolve("/missing/route")
	if m.Fallback != "app.html" || m.Target != "site" || rem != "missing/route" {
		t.Errorf("Resolve = (%+v, %q)", m, rem)
	}
}

func TestResolve_TraversalRemainderIsPassedThrough(t *testing.T) {
	table := NewTable(nil, mustParse(t, "/static:./public")...)
	_, rem, ok := table.Resolve("/static/../../etc/passwd")
	if !ok || rem != "../../etc/passwd" {
		t.Errorf("Resolve = (%q, %v); the responder is responsible for rejecting it", rem, ok)
	}
}
