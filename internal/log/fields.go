package log

import (
	"errors"

	"conti/internal/core"

	"github.com/shopspring/decimal"
)

// Common field names for structured logging
const (
	FieldComponent      = "component"
	FieldRequestID      = "request_id"
	FieldClientIP       = "client_ip"
	FieldMethod         = "method"
	FieldPath           = "path"
	FieldQuery          = "query"
	FieldStatusCode     = "status_code"
	FieldDuration       = "duration_ms"
	FieldDurationHuman  = "duration_human"
	FieldUserAgent      = "user_agent"
	FieldSuccess        = "success"
	FieldError          = "error"
	FieldErrorType      = "error_type"
	FieldOperation      = "operation"
	FieldUserID         = "user_id"
	FieldWorkspaceID    = "workspace_id"
	FieldAccountID      = "account_id"
	FieldTransactionID  = "transaction_id"
	FieldTransferID     = "transfer_id"
	FieldCategoryID     = "category_id"
	FieldBillID         = "bill_id"
	FieldOccurrenceDate = "occurrence_date"
	FieldAmount         = "amount"
	FieldApplyToFuture  = "apply_to_future"
)

// Components
const (
	ComponentApp       = "app"
	ComponentHTTP      = "http"
	ComponentAuth      = "auth"
	ComponentLedger    = "ledger"
	ComponentBills     = "bills"
	ComponentStorage   = "storage"
	ComponentAMQP      = "amqp"
	ComponentWorker    = "worker"
	ComponentJanitor   = "janitor"
	ComponentSheets    = "sheets"
	ComponentCache     = "cache"
	ComponentRateLimit = "rate_limit"
	ComponentTrace     = "trace"
)

// Operations
const (
	OpCreate   = "create"
	OpRead     = "read"
	OpUpdate   = "update"
	OpDelete   = "delete"
	OpList     = "list"
	OpPay      = "pay"
	OpUnpay    = "unpay"
	OpExport   = "export"
	OpSweep    = "sweep"
	OpShutdown = "shutdown"
	OpStartup  = "startup"
)

// Error type categories
const (
	ErrorTypeValidation = "validation_error"
	ErrorTypeNotFound   = "not_found_error"
	ErrorTypeConflict   = "conflict_error"
	ErrorTypeAtomicity  = "atomicity_error"
	ErrorTypeAuth       = "auth_error"
	ErrorTypeInternal   = "internal_error"
)

// ErrorType classifies err by the core error class it wraps.
func ErrorType(err error) string {
	switch {
	case errors.Is(err, core.ErrValidation):
		return ErrorTypeValidation
	case errors.Is(err, core.ErrNotFound):
		return ErrorTypeNotFound
	case errors.Is(err, core.ErrConflict):
		return ErrorTypeConflict
	case errors.Is(err, core.ErrAtomicity):
		return ErrorTypeAtomicity
	default:
		return ErrorTypeInternal
	}
}

// LogFields provides a builder pattern for structured log fields
type LogFields map[string]any

func NewFields() LogFields {
	return make(LogFields)
}

func (f LogFields) WithComponent(component string) LogFields {
	f[FieldComponent] = component
	return f
}

func (f LogFields) WithRequestID(requestID string) LogFields {
	if requestID != "" {
		f[FieldRequestID] = requestID
	}
	return f
}

func (f LogFields) WithClientIP(ip string) LogFields {
	f[FieldClientIP] = ip
	return f
}

// WithError adds the error message and its class.
func (f LogFields) WithError(err error) LogFields {
	if err != nil {
		f[FieldError] = err.Error()
		f[FieldErrorType] = ErrorType(err)
	}
	return f
}

func (f LogFields) WithOperation(op string) LogFields {
	f[FieldOperation] = op
	return f
}

// WithScope adds the tenancy of the operation. An empty workspace is omitted.
func (f LogFields) WithScope(s core.Scope) LogFields {
	f[FieldUserID] = s.UserID
	if s.WorkspaceID != "" {
		f[FieldWorkspaceID] = s.WorkspaceID
	}
	return f
}

// WithTransaction adds the identifying fields of a stored transaction.
func (f LogFields) WithTransaction(t core.Transaction) LogFields {
	f[FieldTransactionID] = t.ID
	f[FieldAccountID] = t.AccountID
	f[FieldAmount] = t.Amount.String()
	if t.TransferID != "" {
		f[FieldTransferID] = t.TransferID
	}
	if t.CategoryID != "" {
		f[FieldCategoryID] = t.CategoryID
	}
	return f
}

// WithBill adds a bill occurrence. A zero date is omitted.
func (f LogFields) WithBill(billID string, date core.Date) LogFields {
	f[FieldBillID] = billID
	if !date.IsZero() {
		f[FieldOccurrenceDate] = date.String()
	}
	return f
}

func (f LogFields) WithAmount(amount decimal.Decimal) LogFields {
	f[FieldAmount] = amount.String()
	return f
}

func (f LogFields) WithHTTPRequest(method, path, query, userAgent string) LogFields {
	f[FieldMethod] = method
	f[FieldPath] = path
	if query != "" {
		f[FieldQuery] = query
	}
	if userAgent != "" {
		f[FieldUserAgent] = userAgent
	}
	return f
}

func (f LogFields) WithHTTPResponse(statusCode int, durationMs int64, success bool) LogFields {
	f[FieldStatusCode] = statusCode
	f[FieldDuration] = durationMs
	f[FieldSuccess] = success
	return f
}

// ToSlice converts LogFields to a slice for slog
func (f LogFields) ToSlice() []any {
	slice := make([]any, 0, len(f)*2)
	for k, v := range f {
		slice = append(slice, k, v)
	}
	return slice
}
