package ports

import (
	"context"

	"cryptoKline/internal/domain"
)

// Sink persists a fetched batch. Workers call Write synchronously.
type Sink interface {
	Name() string
	Write(ctx context.Context, batch *domain.KlineBatch) error
}

// Notifier delivers operator-facing alerts.
type Notifier interface {
	Notify(ctx context.Context, message string) error
}
