// Package query is the read surface of the hub: topic lookups and
// searches, the composed namespace structure, latest values and windowed
// history with optional downsampling, and the aggregate system status.
// All operations are side-effect free.
package query
