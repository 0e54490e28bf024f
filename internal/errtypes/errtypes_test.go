package errtypes

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_UnwrapAndMessage(t *testing.T) {
	cause := errors.New("disk full")
	e := New(KindFilesystemMissing, "scan", cause).WithPath("/data")

	assert.Equal(t, cause, errors.Unwrap(e))
	assert.Contains(t, e.Error(), "scan")
	assert.Contains(t, e.Error(), "/data")
}

func TestKind_Retryable(t *testing.T) {
	assert.False(t, KindFilesystemMissing.Retryable())
	assert.False(t, KindForeignLock.Retryable())
	assert.False(t, KindCancelled.Retryable())
	assert.True(t, KindTimeoutExceeded.Retryable())
	assert.True(t, KindVectorStoreDown.Retryable())
}

func TestMultiError_FiltersNilsAndAggregates(t *testing.T) {
	me := NewMultiError([]error{nil, errors.New("a"), nil, errors.New("b")})
	assert.True(t, me.HasErrors())
	assert.Len(t, me.Errors, 2)
	assert.Contains(t, me.Error(), "2 errors")
}

func TestMultiError_EmptyReportsNoErrors(t *testing.T) {
	me := NewMultiError(nil)
	assert.False(t, me.HasErrors())
	assert.Equal(t, "no errors", me.Error())
}
