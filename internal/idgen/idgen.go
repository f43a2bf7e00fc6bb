package idgen

import (
	"strings"

	"github.com/google/uuid"
)

// NewFunc returns a new globally unique identifier. Tests may stub it.
var NewFunc = func() string { return uuid.New().String() }

// New returns a new globally unique identifier as string.
func New() string { return NewFunc() }

// ShortFunc returns a short request id used for allocation placeholders.
var ShortFunc = func() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")[:8]
}

// Short returns a short request id.
func Short() string { return ShortFunc() }
