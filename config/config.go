// Package config provides YAML configuration of the filter: IMU noise
// model, buffer capacity, outlier gate confidence and per sensor
// measurement noise and calibration.
package config

import (
	"fmt"
	"os"

	"gonum.org/v1/gonum/mat"
	"gopkg.in/yaml.v3"

	"github.com/milosgajdos/go-eskf/core"
	"github.com/milosgajdos/go-eskf/matrix"
	"github.com/milosgajdos/go-eskf/sensors"
)

// Config is the filter configuration.
type Config struct {
	// IMU is the propagation sensor noise model
	IMU IMU `yaml:"imu"`
	// Buffer configures the measurement buffer
	Buffer Buffer `yaml:"buffer"`
	// Chi2Alpha is the outlier gate confidence
	Chi2Alpha float64 `yaml:"chi2_alpha"`
	// Sensors holds per sensor settings keyed by sensor name
	Sensors map[string]Sensor `yaml:"sensors"`
}

// IMU holds the continuous time IMU noise standard deviations.
type IMU struct {
	NW  []float64 `yaml:"n_w"`
	NBW []float64 `yaml:"n_bw"`
	NA  []float64 `yaml:"n_a"`
	NBA []float64 `yaml:"n_ba"`
}

// Buffer holds the measurement buffer settings.
type Buffer struct {
	// MaxSize is the buffer capacity
	MaxSize int `yaml:"n_max"`
}

// Sensor holds the settings of a single update sensor.
type Sensor struct {
	// RStd are the per axis measurement noise standard deviations
	RStd []float64 `yaml:"r_std"`
	// ConstRefToNav fixes the sensor reference frame in the navigation frame
	ConstRefToNav bool `yaml:"const_ref_to_nav"`
	// CalibStd are the per axis initial calibration standard deviations
	CalibStd []float64 `yaml:"calib_std"`
}

// Load reads and parses the YAML configuration file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %v", err)
	}

	return Parse(data)
}

// Parse parses YAML configuration data and applies defaults.
func Parse(data []byte) (*Config, error) {
	c := &Config{}
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("failed to parse config: %v", err)
	}

	if c.Chi2Alpha == 0 {
		c.Chi2Alpha = sensors.DefaultAlpha
	}
	if c.Chi2Alpha <= 0 || c.Chi2Alpha >= 1 {
		return nil, fmt.Errorf("invalid chi2_alpha: %f", c.Chi2Alpha)
	}

	for _, v := range []struct {
		name string
		vec  []float64
	}{
		{"n_w", c.IMU.NW},
		{"n_bw", c.IMU.NBW},
		{"n_a", c.IMU.NA},
		{"n_ba", c.IMU.NBA},
	} {
		if v.vec != nil && len(v.vec) != 3 {
			return nil, fmt.Errorf("invalid %s dimension: %d", v.name, len(v.vec))
		}
	}

	return c, nil
}

// ApplyCore configures the core state definition with the IMU noise model.
func (c *Config) ApplyCore(cs *core.CoreState) {
	nw := noiseVec(c.IMU.NW)
	nbw := noiseVec(c.IMU.NBW)
	na := noiseVec(c.IMU.NA)
	nba := noiseVec(c.IMU.NBA)

	cs.SetNoiseStd(nw, nbw, na, nba)
}

// ApplySensor configures the update sensor u from its named section.
// Unknown names leave the sensor untouched.
func (c *Config) ApplySensor(u sensors.Updater) error {
	sc, ok := c.Sensors[u.Name()]
	if !ok {
		return nil
	}

	if sc.RStd != nil {
		if len(sc.RStd) != u.MeasDim() {
			return fmt.Errorf("invalid r_std dimension for %s: %d", u.Name(), len(sc.RStd))
		}
		if err := u.SetR(matrix.DiagStds(sc.RStd)); err != nil {
			return err
		}
	}

	if sc.CalibStd != nil {
		if len(sc.CalibStd) != u.CovDim() {
			return fmt.Errorf("invalid calib_std dimension for %s: %d", u.Name(), len(sc.CalibStd))
		}
		u.SetInitialCalib(sensors.NewData(u.DefaultState(), matrix.DiagStds(sc.CalibStd)))
	}

	u.SetConstRefToNav(sc.ConstRefToNav)
	u.Gate().SetAlpha(c.Chi2Alpha)

	return nil
}

func noiseVec(v []float64) *mat.VecDense {
	if len(v) != 3 {
		return mat.NewVecDense(3, nil)
	}
	return mat.NewVecDense(3, append([]float64(nil), v...))
}
