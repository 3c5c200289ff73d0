package pipeline

import (
	"context"
	"fmt"

	"github.com/aluiziolira/go-scrape-laptops/models"
)

// MultiWriter sends the table to several destinations in order.
type MultiWriter struct {
	writers []OutputWriter
}

// NewMultiWriter skips nil writers.
func NewMultiWriter(writers ...OutputWriter) *MultiWriter {
	mw := &MultiWriter{}
	for _, w := range writers {
		if w != nil {
			mw.writers = append(mw.writers, w)
		}
	}
	return mw
}

// Write stops at the first failing destination.
func (mw *MultiWriter) Write(ctx context.Context, table *models.Table) error {
	for i, w := range mw.writers {
		if err := w.Write(ctx, table); err != nil {
			return fmt.Errorf("writer %d (%T): %w", i, w, err)
		}
	}
	return nil
}

// Len reports how many destinations are attached.
func (mw *MultiWriter) Len() int {
	return len(mw.writers)
}
