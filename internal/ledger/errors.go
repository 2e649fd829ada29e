package ledger

import "codeberg.org/mutker/gpuheald/internal/errors"

const (
	// Configuration Errors
	ErrInvalidConfig = errors.ErrInvalidConfig
	ErrInvalidDBPath = errors.ErrorCode("ledger_invalid_db_path")

	// Schema Errors
	ErrSchemaInitFailed       = errors.ErrorCode("ledger_schema_init_failed")
	ErrSchemaValidationFailed = errors.ErrorCode("ledger_schema_validation_failed")
	ErrSchemaMigrationFailed  = errors.ErrorCode("ledger_schema_migration_failed")
	ErrTransactionFailed      = errors.ErrorCode("ledger_transaction_failed")

	// Storage Errors
	ErrStorageAccess = errors.ErrorCode("ledger_storage_access_failed")
	ErrStorageInit   = errors.ErrInitFailed
	ErrStorageClose  = errors.ErrShutdownFailed

	// Record Errors
	ErrInvalidRecord = errors.ErrorCode("ledger_invalid_record")
	ErrQueryFailed   = errors.ErrorCode("ledger_query_failed")
)
