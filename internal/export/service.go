package export

import (
	"context"
	"fmt"
	"html/template"
)

// DataStore defines the data access the exporter needs.
type DataStore interface {
	GetCanvasForExport(ctx context.Context, canvasID, version string) (Canvas, error)
}

// Service provides canvas export functionality.
type Service struct {
	store DataStore
}

// NewService creates a new export service.
func NewService(store DataStore) *Service {
	return &Service{store: store}
}

// Export renders the canvas at the requested version as a PDF.
func (s *Service) Export(ctx context.Context, req Request) (*Result, error) {
	version := req.Version
	if version == "" {
		version = "latest"
	}

	canvas, err := s.store.GetCanvasForExport(ctx, req.CanvasID, version)
	if err != nil {
		return nil, fmt.Errorf("get canvas: %w", err)
	}

	contentHTML := BlocksToHTML(canvas.Content)

	data := TemplateData{
		Title:         canvas.Title,
		ContentHTML:   template.HTML(contentHTML),
		Author:        canvas.Author,
		UpdatedAt:     canvas.UpdatedAt,
		WorkspaceName: canvas.WorkspaceName,
	}

	html, err := RenderCanvasHTML(data)
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}

	return exportPDF(html, canvas.Title)
}
