// Package access decides whether a user may touch a canvas: the owner of the
// canvas's workspace always may, listed workspace members may, nobody else.
package access

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"canvasai/api/internal/store"
)

// ErrorKind classifies a denied check.
type ErrorKind string

const (
	ErrorNone         ErrorKind = ""
	ErrorUnauthorized ErrorKind = "unauthorized"
	ErrorNotFound     ErrorKind = "not_found"
	ErrorForbidden    ErrorKind = "forbidden"
)

// Decision is the outcome of a canvas access check.
type Decision struct {
	Allowed bool
	Canvas  store.Canvas
	Kind    ErrorKind
}

// Store is the slice of storage the checker needs.
type Store interface {
	GetCanvas(ctx context.Context, canvasID string) (store.Canvas, error)
	GetWorkspaceOwned(ctx context.Context, workspaceID, userID string) (store.Workspace, error)
	IsWorkspaceMember(ctx context.Context, workspaceID, userID string) (bool, error)
}

type Checker struct {
	store Store
}

func NewChecker(s Store) *Checker {
	return &Checker{store: s}
}

// CheckAccess resolves the canvas, then tries workspace ownership, then
// membership. A missing canvas is NotFound regardless of the user; an existing
// canvas the user cannot reach is Forbidden.
func (c *Checker) CheckAccess(ctx context.Context, canvasID, userID string) (Decision, error) {
	canvas, err := c.store.GetCanvas(ctx, canvasID)
	if errors.Is(err, sql.ErrNoRows) {
		return Decision{Kind: ErrorNotFound}, nil
	}
	if err != nil {
		return Decision{}, fmt.Errorf("load canvas: %w", err)
	}

	_, err = c.store.GetWorkspaceOwned(ctx, canvas.WorkspaceID, userID)
	if err == nil {
		return Decision{Allowed: true, Canvas: canvas}, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return Decision{}, fmt.Errorf("check ownership: %w", err)
	}

	member, err := c.store.IsWorkspaceMember(ctx, canvas.WorkspaceID, userID)
	if err != nil {
		return Decision{}, fmt.Errorf("check membership: %w", err)
	}
	if member {
		return Decision{Allowed: true, Canvas: canvas}, nil
	}
	return Decision{Canvas: canvas, Kind: ErrorForbidden}, nil
}

// RequireAccess wraps CheckAccess with the authentication precondition: an
// empty userID short-circuits to Unauthorized before the store is consulted.
func (c *Checker) RequireAccess(ctx context.Context, canvasID, userID string) (Decision, error) {
	if userID == "" {
		return Decision{Kind: ErrorUnauthorized}, nil
	}
	return c.CheckAccess(ctx, canvasID, userID)
}
