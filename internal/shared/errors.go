package shared

import "fmt"

var (
	// Configuration errors
	ErrMissingConfig      = fmt.Errorf("configuration not found")
	ErrInvalidConfig      = fmt.Errorf("invalid configuration")
	ErrMissingCredentials = fmt.Errorf("missing credentials")

	// Authentication errors. ErrAuth is fatal for a pipeline run: the
	// operator has to re-authorize before another run can succeed.
	ErrAuth             = fmt.Errorf("authentication failed")
	ErrNotAuthenticated = fmt.Errorf("not authenticated")
	ErrTokenExpired     = fmt.Errorf("access token expired")
	ErrNoRefreshToken   = fmt.Errorf("no refresh token available")
	ErrTimeout          = fmt.Errorf("operation timed out")

	// Pipeline stage errors
	ErrExtraction     = fmt.Errorf("extraction failed")
	ErrTransformation = fmt.Errorf("transformation failed")
	ErrLoad           = fmt.Errorf("load failed")
	ErrQualityCheck   = fmt.Errorf("quality check failed")
	ErrPipeline       = fmt.Errorf("pipeline failure")
	ErrRunActive      = fmt.Errorf("a pipeline run is already active")

	// API and service errors
	ErrAPIRequest         = fmt.Errorf("API request failed")
	ErrServiceUnavailable = fmt.Errorf("service unavailable")

	// Input validation errors
	ErrInvalidInput    = fmt.Errorf("invalid input")
	ErrMissingArgument = fmt.Errorf("missing required argument")
	ErrInvalidArgument = fmt.Errorf("invalid argument")
)
