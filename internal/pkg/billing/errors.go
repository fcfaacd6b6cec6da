package billing

import "errors"

var (
	ErrUnknownPlan        = errors.New("unknown plan")
	ErrPriceNotConfigured = errors.New("price not configured")
	ErrNoGateway          = errors.New("payment gateway not configured")
	ErrNoCustomer         = errors.New("no billing customer for user")
	ErrNoSubscription     = errors.New("no subscription for user")
	ErrInvalidSignature   = errors.New("invalid webhook signature")
	ErrMissingUser        = errors.New("user_id is required")
)
