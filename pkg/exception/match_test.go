package exception

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWrapKeepsSentinelMatchable(t *testing.T) {
	err := Wrap(ErrTransport, "connection reset")
	assert.ErrorIs(t, err, ErrTransport)
	assert.True(t, Is(err, ErrTransport))
	assert.Contains(t, err.Error(), "connection reset")

	err = Wrapf(ErrOverfill, "order %s", "o1")
	assert.ErrorIs(t, err, ErrOverfill)
	assert.Contains(t, err.Error(), "order o1")

	assert.False(t, Is(err, ErrTransport))
}

func TestWrapDoubleLayerStaysMatchable(t *testing.T) {
	inner := Wrap(ErrCancelRejected, "venue refused")
	outer := Wrapf(inner, "order %s", "o1")
	assert.ErrorIs(t, outer, ErrCancelRejected)
}
