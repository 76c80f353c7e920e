package perr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConstructors(t *testing.T) {
	cases := []struct {
		err  *Error
		code Code
	}{
		{BadRequest("bad %s", "input"), CodeBadRequest},
		{Unauthorized("nope"), CodeUnauthorized},
		{Forbidden("nope"), CodeForbidden},
		{NotFound("missing %s", "id"), CodeNotFound},
		{UnprocessableEntity("nope"), CodeUnprocessableEntity},
		{Internal("boom"), CodeInternalServerError},
		{NotImplemented("nope"), CodeNotImplemented},
		{ServiceUnavailable("nope"), CodeServiceUnavailable},
		{ServerParseError("nope"), CodeServerParseError},
		{Timeout("nope"), CodeTimeout},
	}
	for _, c := range cases {
		assert.Equal(t, c.code, c.err.Code)
	}
	assert.Equal(t, "bad input", BadRequest("bad %s", "input").Message)
	assert.Equal(t, "missing id", NotFound("missing %s", "id").Message)
}

func TestError_ErrorString(t *testing.T) {
	err := BadRequest("invalid field %q", "topic")
	assert.Equal(t, `[400] invalid field "topic"`, err.Error())
}

func TestHTTPStatus(t *testing.T) {
	assert.Equal(t, 400, BadRequest("x").HTTPStatus())
	assert.Equal(t, 404, NotFound("x").HTTPStatus())
	assert.Equal(t, 500, Internal("x").HTTPStatus())
	assert.Equal(t, 500, ServerParseError("x").HTTPStatus())
	assert.Equal(t, 504, Timeout("x").HTTPStatus())
	assert.Equal(t, 503, ServiceUnavailable("x").HTTPStatus())
}

func TestAs(t *testing.T) {
	perrErr := NotFound("user %s not found", "u1")
	var wrapped error = perrErr

	got, ok := As(wrapped)
	assert.True(t, ok)
	assert.Same(t, perrErr, got)

	_, ok = As(errors.New("plain error"))
	assert.False(t, ok)
}
