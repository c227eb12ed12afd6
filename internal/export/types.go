// Package export renders a canvas to a downloadable PDF.
package export

import (
	"errors"
	"time"
)

// Request contains parameters for an export operation.
type Request struct {
	CanvasID string
	Version  string // "latest" or snapshot hash
}

// Canvas holds the canvas data gathered for export.
type Canvas struct {
	ID            string
	Title         string
	WorkspaceName string
	Author        string
	UpdatedAt     time.Time
	Content       interface{} // block document JSON
}

// Result contains the export output.
type Result struct {
	Data     []byte
	Filename string
	MimeType string
}

var (
	// ErrContentUnavailable indicates canvas content could not be loaded for export.
	ErrContentUnavailable = errors.New("export content unavailable")
	// ErrPDFDependencyMissing indicates PDF export runtime dependencies are unavailable.
	ErrPDFDependencyMissing = errors.New("export pdf dependency missing")
)
