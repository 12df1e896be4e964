package validate

// Machine-readable reason codes carried by ValidationError. Callers branch
// on the code, never on the message text.
const (
	CodeEmpty          = "empty"
	CodeTooLong        = "too_long"
	CodeControlChars   = "control_chars"
	CodeMarkup         = "markup"
	CodeFormat         = "format"
	CodeTraversal      = "path_traversal"
	CodeAbsolutePath   = "absolute_path"
	CodeScheme         = "scheme_not_allowed"
	CodePrivateAddress = "private_address"
	CodeHostNotAllowed = "host_not_allowed"
)

// ValidationError reports rejected input. It never echoes the raw input
// value: only the field name and a reason code, so logs cannot leak
// sensitive or malicious payloads.
type ValidationError struct {
	Field string
	Code  string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + e.Field + ": " + e.Code
}

func errf(field, code string) *ValidationError {
	return &ValidationError{Field: field, Code: code}
}
