package llm

import "fmt"

// Reason classifies why a model call produced no usable fields.
type Reason string

const (
	ReasonAPIKeyMissing     Reason = "api_key_missing"
	ReasonProviderError     Reason = "provider_error"
	ReasonEmptyResponse     Reason = "empty_response"
	ReasonMalformedResponse Reason = "malformed_response"
)

// ProviderError is a failed model call. ExtractFields never returns it; it
// is logged and turned into an all-unresolved result.
type ProviderError struct {
	Provider string
	Reason   Reason
	Err      error
}

func (e *ProviderError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("llm: %s: %s", e.Provider, e.Reason)
	}
	return fmt.Sprintf("llm: %s: %s: %v", e.Provider, e.Reason, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }
