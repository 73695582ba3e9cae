// Package engine executes a parsed command sequence against a live MQTT
// session. One goroutine walks the sequence in strict source order while
// periodic publish tasks and subscription log writes run concurrently
// for the remaining lifetime of the process.
package engine
