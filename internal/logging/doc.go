// Package logging configures structured JSON logging for docindex.
//
// Logs go to a size-rotated file under the data directory and, unless the
// process speaks a protocol on stdio (the MCP server), to stderr as well.
package logging
