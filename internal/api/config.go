package api

import (
	"time"

	"github.com/fmeflow/fmeflow-cli/internal/validation"
)

// ClientConfig is everything a Client needs to reach one FME Flow server.
type ClientConfig struct {
	ServerURL  string `json:"serverUrl" validate:"required,url"`
	Token      string `json:"token" validate:"required"`
	Repository string `json:"repository" validate:"required"`
	// TimeoutMs bounds webhook calls in place of the transport timeout; 0 keeps
	// the transport timeout.
	TimeoutMs int `json:"timeoutMs,omitempty" validate:"min=0"`
}

// Validate returns an INVALID_CONFIG error naming every missing or
// malformed field.
func (c ClientConfig) Validate() error {
	if err := validation.ValidateStruct(c); err != nil {
		return newError(CodeInvalidConfig, 0, string(CodeInvalidConfig), err)
	}
	return nil
}

// Timeout returns TimeoutMs as a duration.
func (c ClientConfig) Timeout() time.Duration {
	if c.TimeoutMs <= 0 {
		return 0
	}
	return time.Duration(c.TimeoutMs) * time.Millisecond
}
