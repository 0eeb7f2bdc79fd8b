// Package archive stores raw page HTML per expression, laid out as
// lands/<land_id>/<expression_id>. Providers back it with the local
// filesystem or a GCS bucket.
package archive

import (
	"context"
	"fmt"
)

// Provider persists and retrieves raw page archives.
type Provider interface {
	// SavePage stores the raw HTML of an expression.
	SavePage(ctx context.Context, landID, expressionID int64, html []byte) error
	// ReadPage returns the stored HTML, or an error when absent.
	ReadPage(ctx context.Context, landID, expressionID int64) ([]byte, error)
}

// pagePath is the canonical object key of an expression archive.
func pagePath(landID, expressionID int64) string {
	return fmt.Sprintf("lands/%d/%d", landID, expressionID)
}

// NoOp discards archives; used when archiving is disabled.
type NoOp struct{}

func (NoOp) SavePage(context.Context, int64, int64, []byte) error { return nil }

func (NoOp) ReadPage(context.Context, int64, int64) ([]byte, error) {
	return nil, fmt.Errorf("archiving disabled")
}
