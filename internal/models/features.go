package models

import (
	"fmt"
	"time"
)

// Feature names produced by the feature extractor.
const (
	KneeAngleL    = "knee_angle_l"
	KneeAngleR    = "knee_angle_r"
	KneeAngleAvg  = "knee_angle_avg"
	HipAngleL     = "hip_angle_l"
	HipAngleR     = "hip_angle_r"
	HipAngleAvg   = "hip_angle_avg"
	ElbowAngleL   = "elbow_angle_l"
	ElbowAngleR   = "elbow_angle_r"
	ElbowAngleAvg = "elbow_angle_avg"

	SymKnee  = "sym_knee"
	SymElbow = "sym_elbow"
	SymHip   = "sym_hip"

	PlankLine = "shoulder_hip_ankle_angle_avg"
	TrunkTilt = "trunk_tilt"

	FrontKneeAngle = "front_knee_angle"
	BackKneeAngle  = "back_knee_angle"

	KneeVelAvg   = "knee_vel_avg"
	ElbowVelAvg  = "elbow_vel_avg"
	FrontKneeVel = "front_knee_vel"

	HipY         = "hip_y"
	ShoulderY    = "shoulder_y"
	WristY       = "wrist_y"
	VerticalDisp = "vertical_disp"
)

// FeatureNames lists every feature the extractor emits. Config validation
// uses it to reject rules that reference unknown signals.
var FeatureNames = []string{
	KneeAngleL, KneeAngleR, KneeAngleAvg,
	HipAngleL, HipAngleR, HipAngleAvg,
	ElbowAngleL, ElbowAngleR, ElbowAngleAvg,
	SymKnee, SymElbow, SymHip,
	PlankLine, TrunkTilt,
	FrontKneeAngle, BackKneeAngle,
	KneeVelAvg, ElbowVelAvg, FrontKneeVel,
	HipY, ShoulderY, WristY, VerticalDisp,
}

// IsFeatureName reports whether name is a known feature.
func IsFeatureName(name string) bool {
	for _, n := range FeatureNames {
		if n == name {
			return true
		}
	}
	return false
}

// Features holds the derived scalar signals of one frame.
type Features struct {
	Index     int                `json:"frame"`
	Timestamp time.Duration      `json:"t"`
	Values    map[string]float64 `json:"values"`
}

// NewFeatures returns an empty feature set for the given frame.
func NewFeatures(index int, ts time.Duration) Features {
	return Features{Index: index, Timestamp: ts, Values: make(map[string]float64, len(FeatureNames))}
}

// Get returns a feature value and whether it was set.
func (f Features) Get(name string) (float64, bool) {
	v, ok := f.Values[name]
	return v, ok
}

// Must returns a feature value. Rule tables are validated against
// FeatureNames at load time, so a missing name here is a programming error.
func (f Features) Must(name string) float64 {
	v, ok := f.Values[name]
	if !ok {
		panic(fmt.Sprintf("models: feature %q missing from frame %d", name, f.Index))
	}
	return v
}
