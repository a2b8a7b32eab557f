package errors_test

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/quizduel/backend/internal/errors"
)

func TestHTTPStatusCode(t *testing.T) {
	tests := map[errors.Code]int{
		errors.CodeInvalidArgument:    http.StatusBadRequest,
		errors.CodeNotFound:           http.StatusNotFound,
		errors.CodeAlreadyExists:      http.StatusConflict,
		errors.CodePermissionDenied:   http.StatusForbidden,
		errors.CodeFailedPrecondition: http.StatusConflict,
		errors.CodeUnprocessable:      http.StatusUnprocessableEntity,
		errors.CodeUnauthenticated:    http.StatusUnauthorized,
		errors.CodeInternal:           http.StatusInternalServerError,
	}

	for code, want := range tests {
		assert.Equal(t, want, errors.New(code).HTTPStatusCode())
	}
}

func TestConvert(t *testing.T) {
	typed := errors.New(errors.CodeNotFound, errors.WithMessagef("session not found: id=%s", "s1"))
	assert.Equal(t, typed, errors.Convert(typed))

	wrapped := fmt.Errorf("load session: %w", typed)
	assert.Equal(t, errors.CodeNotFound, errors.Convert(wrapped).Code)

	plain := stderrors.New("boom")
	got := errors.Convert(plain)
	assert.Equal(t, errors.CodeInternal, got.Code)
	assert.ErrorIs(t, got, plain)
}

func TestIs(t *testing.T) {
	err := errors.New(errors.CodeAlreadyExists)
	assert.True(t, errors.Is(err, errors.CodeAlreadyExists))
	assert.False(t, errors.Is(err, errors.CodeNotFound))

	wrapped := fmt.Errorf("record answer: %w", err)
	assert.True(t, errors.Is(wrapped, errors.CodeAlreadyExists))

	assert.False(t, errors.Is(stderrors.New("boom"), errors.CodeInternal))
}
