// Package export defines the outbound port for pushing the summary
// matrix to an external spreadsheet.
package export

import (
	"context"

	"fondo/internal/core"
)

// SummaryWriter writes one full summary snapshot, replacing any
// previous one. The matrix is small and always rebuilt in full, so
// there is no incremental variant.
type SummaryWriter interface {
	WriteSummary(ctx context.Context, s core.Summary) error
}
