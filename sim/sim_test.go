package sim

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/milosgajdos/go-eskf/buffer"
	"github.com/milosgajdos/go-eskf/noise"
	"github.com/milosgajdos/go-eskf/sensors/imu"
	"github.com/milosgajdos/go-eskf/sensors/pose"
	"github.com/milosgajdos/go-eskf/sensors/pressure"
)

var (
	tr    = Trajectory{Radius: 10, Rate: 0.5, Height: 5}
	imuS  = imu.New("IMU")
	poseS = pose.New("Pose")
)

func TestTrajectoryState(t *testing.T) {
	assert := assert.New(t)

	s := tr.State(0)
	assert.InDelta(10.0, s.Pwi.AtVec(0), 1e-12)
	assert.InDelta(0.0, s.Pwi.AtVec(1), 1e-12)
	assert.InDelta(5.0, s.Pwi.AtVec(2), 1e-12)

	// the speed is constant along the circle
	v := s.Vwi
	speed := v.AtVec(0)*v.AtVec(0) + v.AtVec(1)*v.AtVec(1)
	assert.InDelta(tr.Radius*tr.Rate*tr.Radius*tr.Rate, speed, 1e-9)

	assert.InDelta(1.0, s.Qwi.Norm(), 1e-12)
}

func TestTrajectoryIMU(t *testing.T) {
	assert := assert.New(t)

	m := tr.IMU(1.3)
	assert.InDelta(tr.Rate, m.Gyro.AtVec(2), 1e-12)

	// a hovering trajectory measures pure gravity compensation
	hover := Trajectory{Height: 5}
	hm := hover.IMU(0)
	assert.InDelta(0.0, hm.Gyro.AtVec(2), 1e-12)
	assert.InDelta(gravity, hm.Acc.AtVec(2), 1e-12)
}

func TestTrajectorySensors(t *testing.T) {
	assert := assert.New(t)

	p := tr.Pose(2.0)
	s := tr.State(2.0)
	assert.InDelta(s.Pwi.AtVec(0), p.Pwp.AtVec(0), 1e-12)
	assert.InDelta(s.Qwi.W, p.Qwp.W, 1e-12)

	pos := tr.Position(2.0)
	assert.InDelta(s.Pwi.AtVec(1), pos.Pwp.AtVec(1), 1e-12)

	pr := tr.Pressure(2.0)
	assert.InDelta(5.0, pr.Height, 1e-12)
}

func TestStreams(t *testing.T) {
	assert := assert.New(t)

	is := IMUStream(tr, imuS, 0, 1, 0.01)
	assert.Len(is, 101)
	for _, e := range is {
		assert.Equal(buffer.Measurement, e.Kind)
		_, ok := e.Data.(imu.Measurement)
		assert.True(ok)
	}

	ps := PoseStream(tr, poseS, 0, 1, 0.1, nil)
	assert.Len(ps, 11)

	g, err := noise.NewGaussianDiag([]float64{0.01, 0.01, 0.01, 0.001, 0.001, 0.001})
	assert.NoError(err)
	psn := PoseStream(tr, poseS, 0, 1, 0.1, g)
	assert.Len(psn, 11)
	for _, e := range psn {
		m := e.Data.(pose.Measurement)
		assert.InDelta(1.0, m.Qwp.Norm(), 1e-12)
	}

	bs := PressureStream(tr, poseS, 0, 1, 0.5, nil)
	assert.Len(bs, 3)
	_, ok := bs[0].Data.(pressure.Measurement)
	assert.True(ok)
}

func TestMerge(t *testing.T) {
	assert := assert.New(t)

	merged := Merge(
		IMUStream(tr, imuS, 0, 1, 0.01),
		PoseStream(tr, poseS, 0.05, 1, 0.1, nil),
	)

	for i := 1; i < len(merged); i++ {
		assert.False(merged[i].Stamp.Before(merged[i-1].Stamp))
	}
}
