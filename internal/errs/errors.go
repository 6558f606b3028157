// Package errs defines the error kinds surfaced by the compliance and EDI
// services. Handlers map each kind to an HTTP status; services wrap them
// with fmt.Errorf("...: %w", ...) so errors.As still matches.
package errs

import "fmt"

// ValidationError reports malformed or missing caller input.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation failed: %s", e.Reason)
	}
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Reason)
}

// NotFoundError reports a missing listing, cost input or transaction.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.ID)
}

// InvalidPredecessorError reports a chain step invoked on a transaction of
// the wrong type.
type InvalidPredecessorError struct {
	TransactionID string
	ExpectedType  string
	ActualType    string
}

func (e *InvalidPredecessorError) Error() string {
	if e.ActualType == "" {
		return fmt.Sprintf("predecessor %s not found, expected a %s transaction", e.TransactionID, e.ExpectedType)
	}
	return fmt.Sprintf("predecessor %s is a %s transaction, expected %s", e.TransactionID, e.ActualType, e.ExpectedType)
}

// NotQualifiedError reports a certificate request for a listing that does
// not qualify for preferential tariff treatment.
type NotQualifiedError struct {
	ListingID string
}

func (e *NotQualifiedError) Error() string {
	return fmt.Sprintf("listing %s does not qualify for a certificate of origin", e.ListingID)
}

// ExternalServiceError reports a collaborator failure. It is always caught
// at the component boundary that made the call and converted into a
// degraded result; it never reaches API callers.
type ExternalServiceError struct {
	Service string
	Err     error
}

func (e *ExternalServiceError) Error() string {
	return fmt.Sprintf("external service %s failed: %v", e.Service, e.Err)
}

func (e *ExternalServiceError) Unwrap() error {
	return e.Err
}
