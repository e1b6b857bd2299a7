package kerr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResultOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Result
	}{
		{name: "nil is success", err: nil, want: Success},
		{name: "stream closed", err: ErrStreamClosed, want: StreamClosed},
		{name: "wrapped invalid argument", err: fmt.Errorf("set size: %w", ErrInvalidArgument), want: InvalidArgument},
		{name: "inappropriate call", err: ErrInappropriateCall, want: InappropriateCallForDevice},
		{name: "bad handle", err: ErrBadHandle, want: BadHandle},
		{name: "access denied", err: ErrAccessDenied, want: AccessDenied},
		{name: "not found", err: ErrNotFound, want: NotFound},
		{name: "exists", err: ErrExists, want: Exists},
		{name: "destroyed", err: ErrDestroyed, want: Destroyed},
		{name: "foreign error", err: errors.New("disk on fire"), want: Failure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ResultOf(tt.err))
		})
	}
}

func TestResultOf_EverySentinelMapsBack(t *testing.T) {
	for code, err := range resultErrors {
		assert.Equal(t, code, ResultOf(err), code.String())
	}
}

func TestResult_Errno(t *testing.T) {
	assert.Equal(t, 0, Success.Errno())
	assert.Equal(t, -1, StreamClosed.Errno())
	assert.Less(t, InappropriateCallForDevice.Errno(), 0)
}
