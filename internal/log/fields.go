package log

// Common field names for structured logging
const (
	FieldComponent     = "component"
	FieldRequestID     = "request_id"
	FieldClientIP      = "client_ip"
	FieldMethod        = "method"
	FieldPath          = "path"
	FieldStatusCode    = "status_code"
	FieldDuration      = "duration_ms"
	FieldSuccess       = "success"
	FieldError         = "error"
	FieldOperation     = "operation"
	FieldAccountID     = "account_id"
	FieldAccountName   = "account_name"
	FieldTypeID        = "type_id"
	FieldCurrency      = "currency"
	FieldBackupFile    = "backup_file"
	FieldAccountsCount = "accounts_count"
)

// Components defines standard component names
const (
	ComponentApp       = "app"
	ComponentHTTP      = "http"
	ComponentAccounts  = "accounts"
	ComponentTypes     = "account_types"
	ComponentStorage   = "storage"
	ComponentCurrency  = "currency"
	ComponentAMQP      = "amqp"
	ComponentBackend   = "backend"
	ComponentCache     = "cache"
	ComponentRateLimit = "rate_limit"
	ComponentTrace     = "trace"
)

// Operations defines standard operation names
const (
	OpCreate   = "create"
	OpRead     = "read"
	OpUpdate   = "update"
	OpDelete   = "delete"
	OpList     = "list"
	OpLoad     = "load"
	OpSave     = "save"
	OpBackup   = "backup"
	OpRestore  = "restore"
	OpConvert  = "convert"
	OpFetch    = "fetch"
	OpValidate = "validate"
	OpShutdown = "shutdown"
	OpStartup  = "startup"
)
