// Package source reads records from the upstream system of record.
package source

import (
	"context"

	"github.com/ekaya-inc/ekaya-fkgraph/pkg/models"
)

// Fetcher reads raw source records. Implementations are read-only.
type Fetcher interface {
	// SearchRead returns the records of model matching domain, ordered by id.
	// limit <= 0 reads every match.
	SearchRead(ctx context.Context, model string, domain []any, fields []string, limit int) ([]models.Record, error)
	// Read returns the records with the given ids. Ids that do not exist are
	// omitted from the result.
	Read(ctx context.Context, model string, ids []int64, fields []string) ([]models.Record, error)
}
