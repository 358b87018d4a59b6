package statement

import (
	"context"

	"finanzas/internal/core"
)

// Appender exports a committed ledger entry to an external statement,
// returning a reference to the exported row.
type Appender interface {
	AppendTransaction(ctx context.Context, tx core.Transaction) (rowRef string, err error)
}
