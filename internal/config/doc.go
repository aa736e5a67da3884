// Package config assembles the devserve configuration.
//
// Sources, lowest precedence first:
//
//   - built-in defaults (port 8080, root ".", fallback index.html)
//   - devserve.toml in the working directory, or the file named by --config
//   - positional arguments: [port] [prefix:target ...]
//   - SKIP_WATCH and SILENT from the environment (a .env file is read first)
//
// File mounts are registered before argument mounts, so an argument mount
// with the same prefix replaces a file mount.
//
// # Config File
//
//	port = 9000
//	root = "."
//	fallback = "index.html"
//	debounce = "150ms"
//	ignore = ["*.log"]
//
//	[[mount]]
//	prefix = "/static"
//	target = "./public"
package config
