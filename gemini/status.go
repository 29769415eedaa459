// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package gemini

import "strconv"

// Status is a two digit Gemini response status code.
type Status int

const (
	StatusInput          Status = 10
	StatusSensitiveInput Status = 11

	StatusSuccess Status = 20

	StatusTemporaryRedirect Status = 30
	StatusPermanentRedirect Status = 31

	StatusTemporaryFailure  Status = 40
	StatusServerUnavailable Status = 41
	StatusCGIError          Status = 42
	StatusProxyError        Status = 43
	StatusSlowDown          Status = 44

	StatusPermanentFailure    Status = 50
	StatusNotFound            Status = 51
	StatusGone                Status = 52
	StatusProxyRequestRefused Status = 53
	StatusBadRequest          Status = 59

	StatusCertificateRequired      Status = 60
	StatusCertificateNotAuthorised Status = 61
	StatusCertificateNotValid      Status = 62
)

// Class returns the first digit category of s, e.g. 51 -> 50.
func (s Status) Class() Status {
	return s / 10 * 10
}

// String implements the [fmt.Stringer] interface.
func (s Status) String() string {
	return strconv.Itoa(int(s))
}
