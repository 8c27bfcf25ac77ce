package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"biomark/domain/core"

	"github.com/stretchr/testify/assert"
)

func TestWrapKeepsCode(t *testing.T) {
	err := Wrap(InvalidInput("bad window"), "history request")
	assert.Equal(t, CodeInvalidInput, GetCode(err))
	assert.Equal(t, "history request: bad window", err.Error())
	assert.Nil(t, Wrap(nil, "ignored"))
}

func TestDomainErrorsMapToCodes(t *testing.T) {
	tests := []struct {
		err    error
		code   string
		status int
	}{
		{NoImage(), CodeNoImage, http.StatusConflict},
		{fmt.Errorf("predict: %w", core.ErrNoImage), CodeNoImage, http.StatusConflict},
		{fmt.Errorf("upload: %w", core.ErrUnsupportedImage), CodeUnsupportedMedia, http.StatusUnsupportedMediaType},
		{core.ErrSessionNotFound, CodeSessionNotFound, http.StatusNotFound},
		{core.NewRangeError("age", 200, 0, 120), CodeValidationError, http.StatusUnprocessableEntity},
		{Wrap(core.ErrNoPrediction, "report"), CodeNoPrediction, http.StatusConflict},
		{stderrors.New("boom"), "UNKNOWN", http.StatusInternalServerError},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.code, GetCode(tt.err), tt.err.Error())
		assert.Equal(t, tt.status, HTTPStatus(tt.err), tt.err.Error())
	}
}

func TestWithCode(t *testing.T) {
	err := WithCode(CodeExternalService, stderrors.New("timeout"))
	assert.True(t, IsAppError(err))
	assert.Equal(t, CodeExternalService, GetCode(err))
	assert.Equal(t, http.StatusBadGateway, HTTPStatus(err))
}

func TestNoImageUnwrapsToSentinel(t *testing.T) {
	assert.ErrorIs(t, NoImage(), core.ErrNoImage)
	assert.ErrorIs(t, NoPrediction(), core.ErrNoPrediction)
}
