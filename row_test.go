package eskf

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRowRoundTrip(t *testing.T) {
	assert := assert.New(t)

	vals := []float64{
		-20946.817372738657,
		0.048830414166879263,
		-0.12939345742158029,
		1e-300,
		0,
	}

	row := Row(2.5, vals...)
	ts, got, err := ParseRow(row)
	assert.NoError(err)
	assert.Equal(2.5, ts)
	assert.Len(got, len(vals))

	// 17 significant digits reproduce every value bit-exact
	for i := range vals {
		assert.Equal(vals[i], got[i])
	}
}

func TestParseRowInvalid(t *testing.T) {
	assert := assert.New(t)

	_, _, err := ParseRow("1.0, nope")
	assert.Error(err)
}

func TestStatusString(t *testing.T) {
	assert := assert.New(t)

	assert.Equal("Accepted", Accepted.String())
	assert.Equal("Rejected", Rejected.String())
	assert.Equal("Deferred", Deferred.String())
	assert.Equal("Unknown", Status(42).String())
}
