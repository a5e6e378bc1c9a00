package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/milosgajdos/go-eskf/core"
	"github.com/milosgajdos/go-eskf/sensors"
	"github.com/milosgajdos/go-eskf/sensors/pose"
)

var testYAML = []byte(`
imu:
  n_w: [0.013, 0.013, 0.013]
  n_bw: [0.0013, 0.0013, 0.0013]
  n_a: [0.083, 0.083, 0.083]
  n_ba: [0.0083, 0.0083, 0.0083]
buffer:
  n_max: 500
chi2_alpha: 0.99
sensors:
  Pose:
    r_std: [0.02, 0.02, 0.02, 0.035, 0.035, 0.035]
    calib_std: [0.1, 0.1, 0.1, 0.17, 0.17, 0.17]
    const_ref_to_nav: true
`)

func TestParse(t *testing.T) {
	assert := assert.New(t)

	c, err := Parse(testYAML)
	assert.NoError(err)
	assert.Equal(0.99, c.Chi2Alpha)
	assert.Equal(500, c.Buffer.MaxSize)
	assert.Len(c.IMU.NW, 3)

	sc, ok := c.Sensors["Pose"]
	assert.True(ok)
	assert.True(sc.ConstRefToNav)
	assert.Len(sc.RStd, 6)
	assert.Len(sc.CalibStd, 6)
}

func TestParseDefaults(t *testing.T) {
	assert := assert.New(t)

	c, err := Parse([]byte("{}"))
	assert.NoError(err)
	assert.Equal(sensors.DefaultAlpha, c.Chi2Alpha)
}

func TestParseInvalid(t *testing.T) {
	assert := assert.New(t)

	_, err := Parse([]byte("chi2_alpha: 1.5"))
	assert.Error(err)

	_, err = Parse([]byte("imu:\n  n_w: [1, 2]"))
	assert.Error(err)

	_, err = Parse([]byte("["))
	assert.Error(err)
}

func TestLoad(t *testing.T) {
	assert := assert.New(t)

	path := filepath.Join(t.TempDir(), "filter.yaml")
	assert.NoError(os.WriteFile(path, testYAML, 0o600))

	c, err := Load(path)
	assert.NoError(err)
	assert.Equal(500, c.Buffer.MaxSize)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(err)
}

func TestApplyCore(t *testing.T) {
	assert := assert.New(t)

	c, err := Parse(testYAML)
	assert.NoError(err)

	cs := core.New()
	c.ApplyCore(cs)
	// no direct accessor for the noise model, the call must not panic and
	// gravity stays untouched
	assert.InDelta(-9.81, cs.Gravity().AtVec(2), 1e-12)
}

func TestApplySensor(t *testing.T) {
	assert := assert.New(t)

	c, err := Parse(testYAML)
	assert.NoError(err)

	s := pose.New("Pose")
	assert.NoError(c.ApplySensor(s))
	assert.True(s.ConstRefToNav())
	assert.Equal(0.99, s.Gate().Alpha())
	assert.InDelta(0.02*0.02, s.R().At(0, 0), 1e-15)

	// the configured calibration covariance is installed
	d, ok := s.InitialCalib()
	assert.True(ok)
	assert.Equal(6, d.Cov.SymmetricDim())
	assert.InDelta(0.1*0.1, d.Cov.At(0, 0), 1e-15)
	assert.InDelta(0.17*0.17, d.Cov.At(5, 5), 1e-15)
	st, isPose := d.State.(pose.State)
	assert.True(isPose)
	assert.InDelta(1.0, st.Qip.Norm(), 1e-15)

	// unknown sensors are left untouched
	other := pose.New("Other")
	assert.NoError(c.ApplySensor(other))
	assert.False(other.ConstRefToNav())
	assert.Equal(sensors.DefaultAlpha, other.Gate().Alpha())
	_, ok = other.InitialCalib()
	assert.False(ok)

	// mismatched noise and calibration dimensions fail
	bad := *c
	bad.Sensors = map[string]Sensor{"Pose": {RStd: []float64{1, 2}}}
	assert.Error(bad.ApplySensor(s))

	bad.Sensors = map[string]Sensor{"Pose": {CalibStd: []float64{1, 2}}}
	assert.Error(bad.ApplySensor(s))
}
