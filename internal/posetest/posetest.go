// Package posetest generates synthetic landmark traces for tests.
package posetest

import (
	"bytes"
	"encoding/json"
	"math"
	"time"

	"github.com/claude/repform/internal/models"
	"github.com/klauspost/compress/gzip"
)

// FPS is the frame rate of generated traces.
const FPS = 30

// Body returns a front-facing upright body with vertical thighs and the
// shins rotated about the knees so both knee angles equal knee degrees.
func Body(index int, knee float64) models.LandmarkSet {
	p := func(x, y float64) models.Landmark { return models.Landmark{X: x, Y: y, Confidence: 0.95} }
	rad := knee * math.Pi / 180
	ankle := func(kx float64) models.Landmark { return p(kx+0.2*math.Sin(rad), 0.7-0.2*math.Cos(rad)) }
	return models.LandmarkSet{
		Index:     index,
		Timestamp: time.Duration(index) * time.Second / FPS,
		Points: map[models.Joint]models.Landmark{
			models.Nose:          p(0.5, 0.1),
			models.LeftShoulder:  p(0.45, 0.2),
			models.RightShoulder: p(0.55, 0.2),
			models.LeftElbow:     p(0.45, 0.3),
			models.RightElbow:    p(0.55, 0.3),
			models.LeftWrist:     p(0.45, 0.4),
			models.RightWrist:    p(0.55, 0.4),
			models.LeftHip:       p(0.45, 0.5),
			models.RightHip:      p(0.55, 0.5),
			models.LeftKnee:      p(0.45, 0.7),
			models.RightKnee:     p(0.55, 0.7),
			models.LeftAnkle:     ankle(0.45),
			models.RightAnkle:    ankle(0.55),
		},
	}
}

// SquatTrace is a 90-frame knee-angle trace: 10 frames standing, 20
// descending, 20 at the bottom, 20 ascending and 20 standing.
func SquatTrace(bottom float64) []float64 {
	step := (170 - bottom) / 20
	trace := make([]float64, 90)
	for i := range trace {
		switch {
		case i < 10:
			trace[i] = 170
		case i < 30:
			trace[i] = 170 - float64(i-9)*step
		case i < 50:
			trace[i] = bottom
		case i < 70:
			trace[i] = bottom + float64(i-49)*step
		default:
			trace[i] = 170
		}
	}
	return trace
}

// Frames turns a knee-angle trace into consecutive frames starting at 0.
func Frames(trace []float64) []models.LandmarkSet {
	out := make([]models.LandmarkSet, len(trace))
	for i, v := range trace {
		out[i] = Body(i, v)
	}
	return out
}

// Squats returns n consecutive squats bottoming out at bottom degrees.
func Squats(bottom float64, n int) []models.LandmarkSet {
	var trace []float64
	for range n {
		trace = append(trace, SquatTrace(bottom)...)
	}
	return Frames(trace)
}

// NDJSON encodes frames in the recording format.
func NDJSON(sets []models.LandmarkSet) []byte {
	type line struct {
		Frame     int                   `json:"frame"`
		T         float64               `json:"t"`
		Landmarks map[string][3]float64 `json:"landmarks"`
	}
	var b bytes.Buffer
	enc := json.NewEncoder(&b)
	for _, s := range sets {
		l := line{Frame: s.Index, T: s.Timestamp.Seconds(), Landmarks: map[string][3]float64{}}
		for j, lm := range s.Points {
			l.Landmarks[string(j)] = [3]float64{lm.X, lm.Y, lm.Confidence}
		}
		if err := enc.Encode(l); err != nil {
			panic(err)
		}
	}
	return b.Bytes()
}

// Gzip compresses data.
func Gzip(data []byte) []byte {
	var b bytes.Buffer
	zw := gzip.NewWriter(&b)
	if _, err := zw.Write(data); err != nil {
		panic(err)
	}
	if err := zw.Close(); err != nil {
		panic(err)
	}
	return b.Bytes()
}
