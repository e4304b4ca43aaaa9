package domain

import "errors"

var (
	// ErrInvalidRequest is returned when request parameters are invalid
	ErrInvalidRequest = errors.New("invalid request parameters")

	// ErrTextTooLong is returned when the submitted text exceeds the configured limit
	ErrTextTooLong = errors.New("text exceeds maximum length")

	// ErrInvalidBarcode is returned when a barcode is not 8-14 digits
	ErrInvalidBarcode = errors.New("invalid barcode")

	// ErrInvalidProfile is returned when an allergen profile cannot be used
	ErrInvalidProfile = errors.New("invalid allergen profile")

	// ErrCacheMiss is returned when data is not found in cache
	ErrCacheMiss = errors.New("cache miss")

	// ErrDetectionUnavailable is returned when the ML detection service request fails
	ErrDetectionUnavailable = errors.New("detection service request failed")

	// ErrProductNotFound is returned when a barcode is unknown to the product database
	ErrProductNotFound = errors.New("product not found")

	// ErrProductLookupFailure is returned when the product database request fails
	ErrProductLookupFailure = errors.New("product lookup failed")

	// ErrRateLimited is returned when rate limit is exceeded
	ErrRateLimited = errors.New("rate limit exceeded")
)
