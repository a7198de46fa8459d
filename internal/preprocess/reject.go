package preprocess

import (
	"strings"

	"github.com/bimmerbailey/sift/internal/errors"
)

// PolicyRejectionMessage is the sentence a transformer's failure message
// must contain for the file to count as rejected by policy rather than
// errored. Third-party transformers rely on it verbatim.
const PolicyRejectionMessage = "Image is rejected due to de-identification protocol."

// ErrPolicyRejection marks a structured policy rejection.
var ErrPolicyRejection = errors.New(PolicyRejectionMessage)

// Reject returns a policy rejection. detail, if given, follows the
// rejection sentence.
func Reject(detail string) error {
	msg := PolicyRejectionMessage
	if detail != "" {
		msg += " " + detail
	}
	return errors.Mark(errors.New(msg), ErrPolicyRejection)
}

// IsPolicyRejection classifies a transform failure.
func IsPolicyRejection(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrPolicyRejection) || IsPolicyRejectionText(err.Error())
}

// IsPolicyRejectionText reports whether a failure message carries the
// rejection sentence.
func IsPolicyRejectionText(msg string) bool {
	return strings.Contains(msg, PolicyRejectionMessage)
}
