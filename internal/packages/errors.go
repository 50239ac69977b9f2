package packages

import (
	"errors"
	"fmt"
)

// CodeNotFound is the machine readable kind of a lookup miss.
const CodeNotFound = "NOT_FOUND"

var (
	// ErrArtifactNotFound means a package list file does not exist;
	// the package list builder has not been run.
	ErrArtifactNotFound = errors.New("package list not found")

	// ErrArtifactInvalid means a package list file could not be decoded.
	ErrArtifactInvalid = errors.New("package list is not valid")
)

// LookupError explains why a distribution/version/architecture has no package.
type LookupError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *LookupError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func notFound(format string, args ...interface{}) *LookupError {
	return &LookupError{
		Code:    CodeNotFound,
		Message: fmt.Sprintf(format, args...),
	}
}
