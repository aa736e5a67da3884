// Package dev provides the development server and live reload.
//
// This package implements:
//   - Recursive file watching with debounced change batches
//   - WebSocket-based browser reload
//   - The HTTP server tying the route table, header policy and reload
//     endpoint together
//
// # Architecture
//
// The development server consists of several components:
//
//   - Watcher: subscribes to fsnotify for every directory under the root and
//     merges bursts of events into one Batch per debounce window
//   - Broadcaster: owns the connected reload sessions and fans reload
//     messages out to them
//   - Server: serves mounts through the header policy, injects the reload
//     client into HTML pages and turns each Batch into one broadcast
//
// # Usage
//
//	srv := dev.NewServer(dev.ServerOptions{Config: cfg})
//
//	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
//	defer stop()
//
//	if err := srv.Start(ctx); err != nil {
//	    errors.PrintError(err)
//	    os.Exit(1)
//	}
//
// # Reload Protocol
//
// The browser connects to /_devserve/reload via WebSocket and receives
// JSON messages:
//
//	{"type": "reload"}  // Triggers full page reload
//
// Setting SKIP_WATCH disables the watcher, the endpoint and the script.
package dev
