// Package faults is the single classification surface for failures.
// Every component consumes ClassifiedError instead of inventing ad hoc
// error shapes: recoverable errors are safe to retry with backoff,
// non-recoverable ones must escalate.
package faults

import (
	"errors"
	"fmt"
	"strings"
)

// Category groups failures by the subsystem they originate from
type Category string

const (
	CategoryStorage         Category = "storage"
	CategoryExternalService Category = "external_service"
	CategorySandbox         Category = "sandbox"
	CategoryValidation      Category = "validation"
	CategoryToolExecution   Category = "tool_execution"
	CategorySession         Category = "session"
	CategoryIntervention    Category = "intervention"
	CategoryResource        Category = "resource"
	CategoryConfiguration   Category = "configuration"
	CategoryUnknown         Category = "unknown"
)

// ClassifiedError carries a category, a stable code, and a recoverability
// verdict alongside the underlying failure.
type ClassifiedError struct {
	Category    Category
	Code        string
	Message     string
	Recoverable bool
	Context     map[string]interface{}
	Err         error
}

// Error implements the error interface
func (e *ClassifiedError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s/%s: %s: %v", e.Category, e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s/%s: %s", e.Category, e.Code, e.Message)
}

// Unwrap implements error unwrapping
func (e *ClassifiedError) Unwrap() error {
	return e.Err
}

// WithContext attaches a key/value pair and returns the error for chaining
func (e *ClassifiedError) WithContext(key string, value interface{}) *ClassifiedError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// New creates a classified error with no underlying cause
func New(category Category, code, message string, recoverable bool) *ClassifiedError {
	return &ClassifiedError{
		Category:    category,
		Code:        code,
		Message:     message,
		Recoverable: recoverable,
	}
}

// Wrap classifies an underlying error
func Wrap(err error, category Category, code, message string, recoverable bool) *ClassifiedError {
	return &ClassifiedError{
		Category:    category,
		Code:        code,
		Message:     message,
		Recoverable: recoverable,
		Err:         err,
	}
}

// pattern maps an error-string fragment to a classification
type pattern struct {
	substr      string
	category    Category
	code        string
	recoverable bool
}

// Matching is first-hit; more specific fragments come first.
var patterns = []pattern{
	// Storage: transient connectivity to the durable store
	{"database is locked", CategoryStorage, "db_locked", true},
	{"too many connections", CategoryStorage, "db_saturated", true},
	{"connection refused", CategoryStorage, "connect_refused", true},
	{"connection reset", CategoryStorage, "connect_reset", true},
	{"broken pipe", CategoryStorage, "connect_broken", true},
	{"no such host", CategoryStorage, "dns_failure", true},

	// Storage: data errors, retrying will not help
	{"unique constraint", CategoryStorage, "constraint_violation", false},
	{"constraint failed", CategoryStorage, "constraint_violation", false},
	{"duplicate key", CategoryStorage, "constraint_violation", false},

	// External execution service
	{"status 500", CategoryExternalService, "service_error", true},
	{"status 502", CategoryExternalService, "service_unavailable", true},
	{"status 503", CategoryExternalService, "service_unavailable", true},
	{"status 504", CategoryExternalService, "service_timeout", true},
	{"rate limit", CategoryExternalService, "rate_limited", true},
	{"too many requests", CategoryExternalService, "rate_limited", true},
	{"deadline exceeded", CategoryExternalService, "timeout", true},
	{"timeout", CategoryExternalService, "timeout", true},
	{"temporary failure", CategoryExternalService, "transient", true},
	{"eof", CategoryExternalService, "connection_dropped", true},

	// Container runtime
	{"container not found", CategorySandbox, "container_missing", false},
	{"no such container", CategorySandbox, "container_missing", false},
	{"oci runtime", CategorySandbox, "runtime_failure", false},

	// Resource exhaustion on the host
	{"out of memory", CategoryResource, "oom", false},
	{"no space left", CategoryResource, "disk_full", false},
	{"too many open files", CategoryResource, "fd_exhausted", true},
	{"disk quota exceeded", CategoryResource, "disk_quota", false},

	// Configuration
	{"permission denied", CategoryConfiguration, "permission_denied", false},
	{"not set", CategoryConfiguration, "missing_setting", false},
}

// Classify maps a raw failure to exactly one ClassifiedError. Already
// classified errors pass through unchanged. Unrecognized failures map to
// the unknown category with recoverable=false: fail closed.
func Classify(err error) *ClassifiedError {
	if err == nil {
		return nil
	}

	var cerr *ClassifiedError
	if errors.As(err, &cerr) {
		return cerr
	}

	msg := strings.ToLower(err.Error())
	for _, p := range patterns {
		if strings.Contains(msg, p.substr) {
			return Wrap(err, p.category, p.code, err.Error(), p.recoverable)
		}
	}

	return Wrap(err, CategoryUnknown, "unclassified", err.Error(), false)
}

// Recoverable reports whether a failure is safe to retry with backoff
func Recoverable(err error) bool {
	if err == nil {
		return false
	}
	return Classify(err).Recoverable
}

// IsCategory reports whether err classifies into the given category
func IsCategory(err error, category Category) bool {
	if err == nil {
		return false
	}
	return Classify(err).Category == category
}
