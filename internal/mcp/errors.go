// Package mcp implements the Model Context Protocol (MCP) server for docindex.
package mcp

import (
	"context"
	"errors"
	"fmt"

	dierrors "github.com/Aman-CERP/docindex/internal/errors"
)

// Custom MCP error codes for docindex.
const (
	// ErrCodeIndexUnavailable indicates the vector index is corrupt or
	// could not be persisted.
	ErrCodeIndexUnavailable = -32001

	// ErrCodeEmbeddingFailed indicates embedding generation failed.
	ErrCodeEmbeddingFailed = -32002

	// ErrCodeTimeout indicates the request timed out.
	ErrCodeTimeout = -32003

	// ErrCodeDocumentNotFound indicates the document id does not exist.
	ErrCodeDocumentNotFound = -32004

	// ErrCodeBusy indicates the document or data directory is in use.
	ErrCodeBusy = -32005

	// Standard JSON-RPC error codes.
	ErrCodeInvalidRequest = -32600
	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeInternalError  = -32603
)

// MCPError represents an MCP protocol error with code and message.
type MCPError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// MapError converts internal errors to MCP errors.
func MapError(err error) *MCPError {
	if err == nil {
		return nil
	}

	var mcpErr *MCPError
	if errors.As(err, &mcpErr) {
		return mcpErr
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &MCPError{Code: ErrCodeTimeout, Message: "Request timed out."}
	case errors.Is(err, context.Canceled):
		return &MCPError{Code: ErrCodeTimeout, Message: "Request was canceled."}
	}

	var de *dierrors.Error
	if errors.As(err, &de) {
		return mapDocindexError(de)
	}
	return &MCPError{Code: ErrCodeInternalError, Message: "Internal server error."}
}

// NewInvalidParamsError creates an error for invalid parameters with a custom message.
func NewInvalidParamsError(msg string) *MCPError {
	return &MCPError{
		Code:    ErrCodeInvalidParams,
		Message: msg,
	}
}

// NewMethodNotFoundError creates an error for unknown tools.
func NewMethodNotFoundError(name string) *MCPError {
	return &MCPError{
		Code:    ErrCodeMethodNotFound,
		Message: fmt.Sprintf("Tool '%s' not found.", name),
	}
}

func mapDocindexError(e *dierrors.Error) *MCPError {
	switch e.Code {
	case dierrors.ErrCodeInvalidInput, dierrors.ErrCodeConfigInvalid:
		return &MCPError{Code: ErrCodeInvalidParams, Message: e.Message}
	case dierrors.ErrCodeDocumentNotFound:
		return &MCPError{Code: ErrCodeDocumentNotFound, Message: e.Message}
	case dierrors.ErrCodeInvalidStatus, dierrors.ErrCodeDataLocked:
		return &MCPError{Code: ErrCodeBusy, Message: e.Message}
	case dierrors.ErrCodeEmbeddingTimeout:
		return &MCPError{Code: ErrCodeTimeout, Message: e.Message}
	}

	switch e.Category {
	case dierrors.CategoryEmbedding:
		return &MCPError{Code: ErrCodeEmbeddingFailed, Message: e.Message}
	case dierrors.CategoryIndex:
		return &MCPError{Code: ErrCodeIndexUnavailable, Message: e.Message}
	default:
		return &MCPError{Code: ErrCodeInternalError, Message: e.Message}
	}
}
