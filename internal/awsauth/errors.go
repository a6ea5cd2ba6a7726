package awsauth

import (
	"errors"

	"github.com/aws/smithy-go"
)

// ErrorCode extracts the AWS API error code (e.g. "AccessDenied",
// "Throttling") from anywhere in err's chain, or "" when there is none.
func ErrorCode(err error) string {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode()
	}
	return ""
}

// IsAccessDenied reports whether err is an authorization rejection rather
// than a transient or configuration failure.
func IsAccessDenied(err error) bool {
	switch ErrorCode(err) {
	case "AccessDenied", "AccessDeniedException", "UnauthorizedOperation":
		return true
	}
	return false
}
