package models

import "time"

// Joint is the anatomical name of a tracked body landmark.
type Joint string

const (
	Nose          Joint = "nose"
	LeftShoulder  Joint = "left_shoulder"
	RightShoulder Joint = "right_shoulder"
	LeftElbow     Joint = "left_elbow"
	RightElbow    Joint = "right_elbow"
	LeftWrist     Joint = "left_wrist"
	RightWrist    Joint = "right_wrist"
	LeftHip       Joint = "left_hip"
	RightHip      Joint = "right_hip"
	LeftKnee      Joint = "left_knee"
	RightKnee     Joint = "right_knee"
	LeftAnkle     Joint = "left_ankle"
	RightAnkle    Joint = "right_ankle"
)

// AllJoints lists every joint the pipeline understands, in a stable order.
var AllJoints = []Joint{
	Nose,
	LeftShoulder, RightShoulder,
	LeftElbow, RightElbow,
	LeftWrist, RightWrist,
	LeftHip, RightHip,
	LeftKnee, RightKnee,
	LeftAnkle, RightAnkle,
}

// Landmark is a 2D position in normalized [0,1] image coordinates with the
// pose estimator's confidence for it.
type Landmark struct {
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Confidence float64 `json:"confidence"`
}

// LandmarkSet is one frame of landmarks from the pose estimator.
// Treat it as immutable once received; Clone before modifying.
type LandmarkSet struct {
	Index     int                `json:"frame"`
	Timestamp time.Duration      `json:"t"`
	Points    map[Joint]Landmark `json:"landmarks"`
}

// Get returns the landmark for j and whether it was present.
func (s LandmarkSet) Get(j Joint) (Landmark, bool) {
	lm, ok := s.Points[j]
	return lm, ok
}

// Clone returns a deep copy of the set.
func (s LandmarkSet) Clone() LandmarkSet {
	out := LandmarkSet{Index: s.Index, Timestamp: s.Timestamp, Points: make(map[Joint]Landmark, len(s.Points))}
	for j, lm := range s.Points {
		out.Points[j] = lm
	}
	return out
}
