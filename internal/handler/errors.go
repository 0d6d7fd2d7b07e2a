package handler

import "errors"

var (
	// ErrUnknownHandler is returned when the registry has no entry for a job type.
	ErrUnknownHandler = errors.New("handler: unknown handler")

	// ErrInvalidPayload marks a job failure as a configuration error: the
	// processor classifies it as non-retryable per §7.
	ErrInvalidPayload = errors.New("handler: invalid payload")

	// ErrSubscriptionNotFound is returned by recurring_billing when the
	// subscription referenced in the payload does not exist.
	ErrSubscriptionNotFound = errors.New("handler: subscription not found")

	// ErrPricingPlanNotFound is returned by recurring_billing when the
	// tenant's tier has no matching pricing_plans row. DESIGN.md Open
	// Question 2: this fails the job rather than billing $0.
	ErrPricingPlanNotFound = errors.New("handler: pricing plan not found")

	// ErrMissingAuthorizationToken is returned when a subscription has no
	// stored payment authorization to charge against.
	ErrMissingAuthorizationToken = errors.New("handler: missing authorization token")
)

// IsConfigError reports whether err should be classified as a non-retryable
// configuration error per §7 ("Invalid input ... does not retry").
func IsConfigError(err error) bool {
	return errors.Is(err, ErrInvalidPayload)
}
