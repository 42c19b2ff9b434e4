// Package server implements the soundmesh synchronization hub: the WebSocket
// upgrade endpoint, the per-instance registry of live connections, and the
// single event loop that merges client patches into the shared application
// state and fans the post-merge snapshot out to every other client.
package server
