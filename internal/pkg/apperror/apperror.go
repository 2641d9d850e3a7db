package apperror

// AppError carries an HTTP status, a user-facing message and optional
// structured details for the client.
type AppError struct {
	Code    int    // HTTP status code
	Message string // user-facing message
	Details any    // extra payload rendered next to the message
	Err     error  // underlying error, never exposed
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError with a status code and message.
func New(code int, message string) *AppError {
	return &AppError{Code: code, Message: message}
}

// Wrap creates a new AppError wrapping an existing error.
func Wrap(err error, code int, message string) *AppError {
	return &AppError{Code: code, Message: message, Err: err}
}

// WithDetails attaches details and returns e.
func (e *AppError) WithDetails(details any) *AppError {
	e.Details = details
	return e
}
