package logger

// Fields is an alias for map[string]interface{} for convenience.
type Fields map[string]interface{}

// Standard tracing fields, propagated through the call chain via context.
const (
	// FieldRequestID is the HTTP request ID (UUID)
	FieldRequestID = "request_id"

	// FieldJobID is the OCR job ID
	FieldJobID = "job_id"

	// FieldOwnerID is the requesting user's ID
	FieldOwnerID = "owner_id"

	// FieldContentKey is the blob storage key of the document
	FieldContentKey = "content_key"

	// FieldStrategy is the extraction strategy name
	FieldStrategy = "strategy"

	// FieldComponent is the component/module name
	FieldComponent = "component"
)

// Standard metric fields, attached at the log site.
const (
	// FieldDurationMs is the execution duration in milliseconds
	FieldDurationMs = "duration_ms"

	// FieldSize is the data size in bytes
	FieldSize = "size"

	// FieldStatus is the operation status
	FieldStatus = "status"

	// FieldChars is an extracted character count
	FieldChars = "chars"
)
