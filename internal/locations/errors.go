package locations

import "fmt"

// ValidationError reports malformed caller input. Raised before any
// transaction is opened, so there is nothing to roll back.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Message)
}

// BusinessRuleError reports a domain invariant violated inside a handler. It
// triggers a rollback and surfaces to the caller with a stable code.
type BusinessRuleError struct {
	Code    string
	Message string
}

func (e *BusinessRuleError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// ErrCodeTaken is returned when registering a code already in use by the
// tenant.
var ErrCodeTaken = &BusinessRuleError{
	Code:    "location_code_taken",
	Message: "a location with this code already exists",
}

// ErrNotDeleted is returned when reactivating a location that is not
// soft-deleted.
var ErrNotDeleted = &BusinessRuleError{
	Code:    "location_not_deleted",
	Message: "location is not deactivated",
}
