package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrorCategory represents different types of errors a deployment can fail with
type ErrorCategory string

const (
	ErrorCategoryConfiguration  ErrorCategory = "CONFIGURATION"
	ErrorCategoryAuthentication ErrorCategory = "AUTHENTICATION"
	ErrorCategoryValidation     ErrorCategory = "VALIDATION"
	ErrorCategoryNetwork        ErrorCategory = "NETWORK"
	ErrorCategoryExecution      ErrorCategory = "EXECUTION"
	ErrorCategoryPanic          ErrorCategory = "PANIC"
	ErrorCategoryUnknown        ErrorCategory = "UNKNOWN"
)

// ErrorType represents specific error types within categories
type ErrorType string

const (
	// Configuration errors
	ErrorTypeMissingSetting ErrorType = "MISSING_SETTING"
	ErrorTypeInvalidSetting ErrorType = "INVALID_SETTING"

	// Authentication errors
	ErrorTypeUnauthorized ErrorType = "UNAUTHORIZED"
	ErrorTypeForbidden    ErrorType = "FORBIDDEN"

	// Validation errors
	ErrorTypeTargetNotFound ErrorType = "TARGET_NOT_FOUND"
	ErrorTypeInvalidInput   ErrorType = "INVALID_INPUT"
	ErrorTypeConflict       ErrorType = "CONFLICT"

	// Network errors
	ErrorTypeRateLimit        ErrorType = "RATE_LIMIT"
	ErrorTypeServerError      ErrorType = "SERVER_ERROR"
	ErrorTypeConnectionFailed ErrorType = "CONNECTION_FAILED"

	// Execution errors
	ErrorTypeExecutionRejected ErrorType = "EXECUTION_REJECTED"

	ErrorTypePanic   ErrorType = "PANIC"
	ErrorTypeUnknown ErrorType = "UNKNOWN"
)

// ErrReported marks a failure whose diagnostic line has already been written.
var ErrReported = stderrors.New("deployment failed")

// DeployError represents a structured error with category, type, and context
type DeployError struct {
	Category     ErrorCategory
	Type         ErrorType
	Message      string
	Target       string
	Cause        error
	Recoverable  bool
	UserFriendly string
}

func (e *DeployError) Error() string {
	if e.Target != "" {
		return fmt.Sprintf("[%s:%s] %s (target: %s)", e.Category, e.Type, e.Message, e.Target)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Category, e.Type, e.Message)
}

func (e *DeployError) Unwrap() error {
	return e.Cause
}

// IsRecoverable returns true if the error is likely to go away on a later run
func (e *DeployError) IsRecoverable() bool {
	return e.Recoverable
}

// GetUserFriendlyMessage returns a user-friendly error message
func (e *DeployError) GetUserFriendlyMessage() string {
	if e.UserFriendly != "" {
		return e.UserFriendly
	}
	return e.Message
}

// NewMissingSettingError creates an error for a required setting that was not provided
func NewMissingSettingError(setting string) *DeployError {
	return &DeployError{
		Category:     ErrorCategoryConfiguration,
		Type:         ErrorTypeMissingSetting,
		Message:      fmt.Sprintf("%s is required", setting),
		Recoverable:  false,
		UserFriendly: fmt.Sprintf("Setting '%s' is missing. Set it in deploy.yaml or through the matching DEPLOY_ environment variable.", setting),
	}
}

// NewInvalidSettingError creates an error for a setting with an unusable value
func NewInvalidSettingError(setting string, cause error) *DeployError {
	msg := fmt.Sprintf("invalid value for %s", setting)
	if cause != nil {
		msg = fmt.Sprintf("%s: %s", msg, cause.Error())
	}
	return &DeployError{
		Category:    ErrorCategoryConfiguration,
		Type:        ErrorTypeInvalidSetting,
		Message:     msg,
		Cause:       cause,
		Recoverable: false,
	}
}

// NewUnauthorizedError creates an error for authentication issues
func NewUnauthorizedError(message string, cause error) *DeployError {
	return &DeployError{
		Category:     ErrorCategoryAuthentication,
		Type:         ErrorTypeUnauthorized,
		Message:      message,
		Cause:        cause,
		Recoverable:  false,
		UserFriendly: "Authentication failed. Please check your API keys and permissions.",
	}
}

// NewRateLimitError creates an error for rate limiting
func NewRateLimitError(target string, cause error) *DeployError {
	return &DeployError{
		Category:     ErrorCategoryNetwork,
		Type:         ErrorTypeRateLimit,
		Message:      "rate limit exceeded",
		Target:       target,
		Cause:        cause,
		Recoverable:  true,
		UserFriendly: "API rate limit exceeded. Wait for the limit to reset and run the deployment again.",
	}
}

// NewExecutionRejectedError creates an error for a deployment the remote side refused to start
func NewExecutionRejectedError(target, reason string) *DeployError {
	return &DeployError{
		Category:    ErrorCategoryExecution,
		Type:        ErrorTypeExecutionRejected,
		Message:     fmt.Sprintf("execution rejected: %s", reason),
		Target:      target,
		Recoverable: false,
	}
}

// NewPanicError wraps a value recovered from a panicking deployer
func NewPanicError(recovered interface{}) *DeployError {
	var cause error
	if err, ok := recovered.(error); ok {
		cause = err
	}
	return &DeployError{
		Category:    ErrorCategoryPanic,
		Type:        ErrorTypePanic,
		Message:     fmt.Sprintf("deployer panicked: %v", recovered),
		Cause:       cause,
		Recoverable: false,
	}
}

// CategorizeHTTP maps a failed HTTP exchange with a deployment backend to a DeployError
func CategorizeHTTP(statusCode int, body, target string, cause error) *DeployError {
	detail := strings.TrimSpace(body)
	if len(detail) > 300 {
		detail = detail[:300] + "..."
	}
	message := fmt.Sprintf("HTTP %d", statusCode)
	if detail != "" {
		message = fmt.Sprintf("%s: %s", message, detail)
	}

	e := &DeployError{
		Category: ErrorCategoryUnknown,
		Type:     ErrorTypeUnknown,
		Message:  message,
		Target:   target,
		Cause:    cause,
	}

	switch {
	case statusCode == http.StatusUnauthorized:
		e.Category, e.Type = ErrorCategoryAuthentication, ErrorTypeUnauthorized
		e.UserFriendly = "Authentication failed. Please check your API keys and permissions."
	case statusCode == http.StatusForbidden:
		e.Category, e.Type = ErrorCategoryAuthentication, ErrorTypeForbidden
		e.UserFriendly = fmt.Sprintf("Access to '%s' is forbidden. Check the permissions of the configured credentials.", target)
	case statusCode == http.StatusNotFound:
		e.Category, e.Type = ErrorCategoryValidation, ErrorTypeTargetNotFound
		e.UserFriendly = fmt.Sprintf("Deployment target '%s' was not found. Check the configured identifiers.", target)
	case statusCode == http.StatusConflict:
		e.Category, e.Type = ErrorCategoryValidation, ErrorTypeConflict
	case statusCode == http.StatusBadRequest || statusCode == http.StatusUnprocessableEntity:
		e.Category, e.Type = ErrorCategoryValidation, ErrorTypeInvalidInput
	case statusCode == http.StatusTooManyRequests:
		e.Category, e.Type = ErrorCategoryNetwork, ErrorTypeRateLimit
		e.Recoverable = true
	case statusCode >= 500:
		e.Category, e.Type = ErrorCategoryNetwork, ErrorTypeServerError
		e.Recoverable = true
	}

	return e
}

// CategorizeError analyzes an error and returns a structured DeployError
func CategorizeError(err error, target string) *DeployError {
	if err == nil {
		return nil
	}

	var deployErr *DeployError
	if stderrors.As(err, &deployErr) {
		if deployErr.Target == "" {
			deployErr.Target = target
		}
		return deployErr
	}

	errMsg := strings.ToLower(err.Error())

	if strings.Contains(errMsg, "401") || strings.Contains(errMsg, "unauthorized") {
		return NewUnauthorizedError("authentication failed", err)
	}
	if strings.Contains(errMsg, "429") || strings.Contains(errMsg, "rate limit") {
		return NewRateLimitError(target, err)
	}
	if strings.Contains(errMsg, "connection refused") || strings.Contains(errMsg, "no such host") ||
		strings.Contains(errMsg, "timeout") {
		return &DeployError{
			Category:    ErrorCategoryNetwork,
			Type:        ErrorTypeConnectionFailed,
			Message:     err.Error(),
			Target:      target,
			Cause:       err,
			Recoverable: true,
		}
	}

	return &DeployError{
		Category:    ErrorCategoryUnknown,
		Type:        ErrorTypeUnknown,
		Message:     err.Error(),
		Target:      target,
		Cause:       err,
		Recoverable: false,
	}
}

// IsReported reports whether err has already been written out by the reporter
func IsReported(err error) bool {
	return stderrors.Is(err, ErrReported)
}
