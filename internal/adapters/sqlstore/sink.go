package sqlstore

import (
	"context"

	"cryptoKline/internal/domain"
	"cryptoKline/internal/ports"
)

// Sink adapts a store table to ports.Sink.
type Sink struct {
	store *Store
	table string
}

// Sink returns a sink that appends every batch into table.
func (s *Store) Sink(table string) (*Sink, error) {
	if err := ValidateTable(table); err != nil {
		return nil, err
	}
	return &Sink{store: s, table: table}, nil
}

// Name identifies the sink in logs and metrics.
func (s *Sink) Name() string {
	return s.store.dialect.Name + ":" + s.table
}

func (s *Sink) Write(ctx context.Context, batch *domain.KlineBatch) error {
	if batch.IsEmpty() {
		return nil
	}
	return s.store.AppendKlines(ctx, s.table, batch.Klines)
}

var _ ports.Sink = (*Sink)(nil)
var _ ports.KlineRepository = (*Store)(nil)
