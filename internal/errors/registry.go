package errors

// ErrorTemplate defines a registered error type.
type ErrorTemplate struct {
	Category   Category
	Message    string
	Suggestion string
}

// registry maps error codes to their templates.
var registry = map[string]ErrorTemplate{
	// ============================================
	// Startup Config Errors (E100-E109)
	// ============================================

	"E100": {
		Category: CategoryConfig,
		Message:  "Invalid configuration",
	},
	"E101": {
		Category:   CategoryConfig,
		Message:    "Invalid port",
		Suggestion: "The first argument must be a port number between 0 and 65535, e.g. devserve 8080",
	},
	"E102": {
		Category:   CategoryConfig,
		Message:    "Malformed mount spec",
		Suggestion: "Mounts are written prefix:target, e.g. /static:./public or /app.html:./app.html",
	},
	"E103": {
		Category:   CategoryConfig,
		Message:    "Mount spec has an empty target",
		Suggestion: "Give the mount a file or directory after the ':'",
	},
	"E104": {
		Category:   CategoryConfig,
		Message:    "Mount prefix is reserved",
		Suggestion: "Paths under /_devserve are used by the reload client and metrics",
	},
	"E105": {
		Category:   CategoryConfig,
		Message:    "Could not read config file",
		Suggestion: "Check that the file exists and is valid TOML",
	},
	"E106": {
		Category: CategoryConfig,
		Message:  "Invalid debounce window",
	},

	// ============================================
	// Bind Errors (E110-E119)
	// ============================================

	"E110": {
		Category:   CategoryBind,
		Message:    "Could not bind port",
		Suggestion: "Another process may be using the port; pick a different one",
	},

	// ============================================
	// Watch Errors (E120-E129)
	// ============================================

	"E120": {
		Category:   CategoryWatch,
		Message:    "Could not watch directory",
		Suggestion: "Check that the directory exists and is readable, or set SKIP_WATCH=1",
	},
	"E121": {
		Category: CategoryWatch,
		Message:  "File watch stopped",
	},

	// ============================================
	// Request Errors (E130-E139)
	// ============================================

	"E130": {
		Category: CategoryRequest,
		Message:  "Not found",
	},

	// ============================================
	// Session Errors (E140-E149)
	// ============================================

	"E140": {
		Category: CategorySession,
		Message:  "Reload delivery failed",
	},
}
