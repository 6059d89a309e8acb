package catalog

import "fmt"

type (
	// RegistrationError reports a catalog that refused a registration.
	RegistrationError struct {
		StatusCode int
		Message    string
	}

	// ConnectionError reports a catalog that could not be reached or
	// answered outside the expected status range.
	ConnectionError struct {
		Message string
		Err     error
	}

	// DecodingError reports a catalog response that was not valid JSON.
	DecodingError struct {
		Message string
		Err     error
	}

	// NotFoundError reports a lookup for an agent the catalog does not list.
	NotFoundError struct {
		AgentID string
	}
)

func (e *RegistrationError) Error() string {
	return fmt.Sprintf("failed to register agent: %s (status: %d)", e.Message, e.StatusCode)
}

func (e *ConnectionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("failed to reach catalog: %s: %v", e.Message, e.Err)
	}

	return fmt.Sprintf("failed to reach catalog: %s", e.Message)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

func (e *DecodingError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("failed to decode catalog response: %s: %v", e.Message, e.Err)
	}

	return fmt.Sprintf("failed to decode catalog response: %s", e.Message)
}

func (e *DecodingError) Unwrap() error {
	return e.Err
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("agent not found: %s", e.AgentID)
}
