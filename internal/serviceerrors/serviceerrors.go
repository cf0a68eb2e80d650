package serviceerrors

import (
	"errors"

	"github.com/mckinsey/ark-evaluator/internal/messages"
)

// ServiceError is the error type every handler and provider returns for
// failures that have a defined outbound shape. It carries the message code
// (and therefore the HTTP status) plus the interpolation parameters.
type ServiceError struct {
	Code   *messages.MessageCode
	Params []any
}

func NewServiceError(code *messages.MessageCode, params ...any) *ServiceError {
	return &ServiceError{
		Code:   code,
		Params: params,
	}
}

func (e *ServiceError) Error() string {
	return messages.GetErrorMessage(e.Code, e.Params...)
}

func (e *ServiceError) StatusCode() int {
	return e.Code.GetStatusCode()
}

// AsServiceError unwraps err into a *ServiceError if possible.
func AsServiceError(err error) (*ServiceError, bool) {
	var serviceError *ServiceError
	if errors.As(err, &serviceError) {
		return serviceError, true
	}
	return nil, false
}
