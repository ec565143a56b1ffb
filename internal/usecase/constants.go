package usecase

import "time"

// Defaults applied when a config value is zero.
const (
	// DefaultTransactionTimeout bounds one override write, retries excluded.
	DefaultTransactionTimeout = 10 * time.Second

	DefaultSnapshotTTL     = 5 * time.Minute
	DefaultBulkConcurrency = 8
	// DefaultExportBatchSize is the keyset page size of audit exports.
	DefaultExportBatchSize = 500
)
