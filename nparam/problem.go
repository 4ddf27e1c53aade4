package nparam

import (
	"fmt"
	"strings"

	"github.com/muir/nhttp/ncodec"
	"github.com/muir/nhttp/nvelope"

	"github.com/pkg/errors"
)

// Kind classifies a validation Problem
type Kind string

const (
	MissingRequestParam Kind = "missing-request-param"
	InvalidDataType     Kind = "invalid-data-type"
	InvalidJSONReceived Kind = "invalid-json-received"
	InvalidForm         Kind = "invalid-form"
	CustomDecodeError   Kind = "custom-decode-error"
)

var defaultMessages = map[Kind]string{
	MissingRequestParam: "Param is Missing",
	InvalidDataType:     "Param is not of right type",
	InvalidJSONReceived: "Param value is not a valid json",
	InvalidForm:         "Form is not valid",
}

// Problem is one thing wrong with a request
type Problem struct {
	Kind     Kind   `json:"type"`
	Location Source `json:"location"`
	Param    string `json:"param"`
	Message  string `json:"message"`
	// Status, when set by a CustomValidationError, overrides the
	// response status
	Status int `json:"-"`
}

// NewProblem builds a Problem with the default message for its kind
// when message is empty.
func NewProblem(kind Kind, location Source, param, message string) *Problem {
	if message == "" {
		message = defaultMessages[kind]
	}
	return &Problem{
		Kind:     kind,
		Location: location,
		Param:    param,
		Message:  message,
	}
}

func (p Problem) String() string {
	return fmt.Sprintf("%s %s: %s", p.Location, p.Param, p.Message)
}

// CustomValidationError can be returned by user decoders to control
// the message (and optionally the status) reported to the client.
type CustomValidationError struct {
	Detail string
	Status int
}

func (e *CustomValidationError) Error() string { return e.Detail }

// problemFor classifies a decode error
func problemFor(location Source, param string, err error) *Problem {
	var cve *CustomValidationError
	switch {
	case errors.As(err, &cve):
		p := NewProblem(CustomDecodeError, location, param, cve.Detail)
		p.Status = cve.Status
		return p
	case ncodec.IsMalformed(err):
		return NewProblem(InvalidJSONReceived, location, param, "")
	}
	return NewProblem(InvalidDataType, location, param, err.Error())
}

// RequestErrors is every Problem found in one request.  It is a
// nvelope.Problem with status 422 unless every problem carries the
// same explicit status.
type RequestErrors struct {
	Problems []*Problem
}

var _ nvelope.Problem = &RequestErrors{}

func (e *RequestErrors) Error() string {
	s := make([]string, len(e.Problems))
	for i, p := range e.Problems {
		s[i] = p.String()
	}
	return "invalid request: " + strings.Join(s, "; ")
}

// Status is the HTTP status for the response
func (e *RequestErrors) Status() int {
	status := 0
	for _, p := range e.Problems {
		switch {
		case p.Status == 0:
			return 422
		case status == 0:
			status = p.Status
		case status != p.Status:
			return 422
		}
	}
	if status == 0 {
		return 422
	}
	return status
}

// ProblemDetail describes the errors for the client
func (e *RequestErrors) ProblemDetail() nvelope.ProblemDetail {
	return nvelope.ProblemDetail{
		Type:   "invalid-request-errors",
		Title:  "Check Your Params",
		Status: e.Status(),
		Detail: e.Problems,
	}
}
