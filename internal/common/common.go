package common

import (
	"github.com/google/uuid"
)

// GUID returns a new random identifier for request and trace correlation.
func GUID() string {
	return uuid.NewString()
}
