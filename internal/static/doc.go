// Package static serves files for resolved mounts.
//
// A Responder turns a (mount, remainder) pair from the route table into a
// response: the file's bytes with a content type inferred from its
// extension, or a 404. Directory mounts are confined to their target with
// os.Root, so neither dot segments nor symlinks can read outside it. A
// directory request serves its index.html; there are no listings.
//
// The root mount may carry an SPA fallback document, served with 200 for
// any path that has no file behind it.
//
// Headers returns the middleware applied to every response. It adds the
// cross-origin isolation headers and, while files are being watched, the
// cache-busting headers.
package static
