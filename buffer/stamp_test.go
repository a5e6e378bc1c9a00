package buffer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStamp(t *testing.T) {
	assert := assert.New(t)

	s := StampFromSecNsec(1, 500000000)
	assert.InDelta(1.5, s.Seconds(), 1e-12)

	a := StampFromSec(1.0)
	b := StampFromSec(2.0)

	assert.True(a.Before(b))
	assert.True(b.After(a))
	assert.False(a.Equal(b))
	assert.True(a.Equal(StampFromSec(1.0)))
	assert.InDelta(1.0, b.Sub(a), 1e-12)
}
