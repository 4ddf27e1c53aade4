package nvelope_test

import (
	"fmt"
	"testing"

	"github.com/muir/nhttp/nvelope"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestErrors(t *testing.T) {
	assert.Equal(t, 304, nvelope.GetReturnCode(nvelope.ReturnCode(fmt.Errorf("x"), 304)), "unwrapped")
	assert.Equal(t, 303, nvelope.GetReturnCode(errors.Wrap(nvelope.ReturnCode(fmt.Errorf("x"), 303), "o")), "wrapped")
	assert.Equal(t, 400, nvelope.GetReturnCode(nvelope.BadRequest(fmt.Errorf("x"))), "bad")
	assert.Equal(t, 401, nvelope.GetReturnCode(nvelope.Unauthorized(fmt.Errorf("x"))), "unauth")
	assert.Equal(t, 403, nvelope.GetReturnCode(nvelope.Forbidden(fmt.Errorf("x"))), "forbid")
	assert.Equal(t, 404, nvelope.GetReturnCode(nvelope.NotFound(fmt.Errorf("x"))), "missing")
	assert.Equal(t, 422, nvelope.GetReturnCode(nvelope.Unprocessable(fmt.Errorf("x"))), "unprocessable")
	assert.Equal(t, 500, nvelope.GetReturnCode(fmt.Errorf("x")), "plain")
}

type teapot struct{ status int }

func (teapot) Error() string { return "short and stout" }
func (p teapot) ProblemDetail() nvelope.ProblemDetail {
	return nvelope.ProblemDetail{Status: p.status}
}

func TestProblemReturnCode(t *testing.T) {
	assert.Equal(t, 401, nvelope.GetReturnCode(authProblem{}), "problem status")
	assert.Equal(t, 418, nvelope.GetReturnCode(errors.Wrap(teapot{status: 418}, "brewing")), "wrapped problem")
	assert.Equal(t, 500, nvelope.GetReturnCode(teapot{}), "problem without a status")
	assert.Equal(t, 409, nvelope.GetReturnCode(nvelope.ReturnCode(teapot{status: 418}, 409)), "explicit code wins")
}
