package errors

import (
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCodedErrorsMatchSentinels(t *testing.T) {
	err := WrapWithCode(io.ErrUnexpectedEOF, CodeTransientFetch, "capture failed")

	assert.True(t, IsTransientFetch(err))
	assert.False(t, IsStructuralParse(err))
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	assert.Equal(t, "capture failed: unexpected EOF", err.Error())
}

func TestWrapKeepsCode(t *testing.T) {
	inner := Newf(CodeValidation, "bad id %d", -1)
	outer := fmt.Errorf("admit: %w", Wrap(inner, "check"))

	assert.True(t, IsValidation(outer))
	assert.Equal(t, CodeValidation, GetCode(outer))
	assert.Equal(t, "check", GetMessage(outer))
}

func TestPlainErrorHasNoCode(t *testing.T) {
	err := New("boom")

	assert.Equal(t, "", GetCode(err))
	assert.False(t, IsDelivery(err))
	assert.Nil(t, Wrap(nil, "noop"))
	assert.Equal(t, "", GetMessage(nil))
}
