package features

import (
	"slices"

	"github.com/claude/repform/internal/config"
	"github.com/claude/repform/internal/models"
)

var (
	leftLeg   = []models.Joint{models.LeftHip, models.LeftKnee, models.LeftAnkle}
	rightLeg  = []models.Joint{models.RightHip, models.RightKnee, models.RightAnkle}
	leftArm   = []models.Joint{models.LeftShoulder, models.LeftElbow, models.LeftWrist}
	rightArm  = []models.Joint{models.RightShoulder, models.RightElbow, models.RightWrist}
	leftHip   = []models.Joint{models.LeftShoulder, models.LeftHip, models.LeftKnee}
	rightHip  = []models.Joint{models.RightShoulder, models.RightHip, models.RightKnee}
	shoulders = []models.Joint{models.LeftShoulder, models.RightShoulder}
	hips      = []models.Joint{models.LeftHip, models.RightHip}
	ankles    = []models.Joint{models.LeftAnkle, models.RightAnkle}
	wrists    = []models.Joint{models.LeftWrist, models.RightWrist}
)

func join(groups ...[]models.Joint) []models.Joint {
	var out []models.Joint
	for _, g := range groups {
		out = append(out, g...)
	}
	return out
}

// featureJoints maps each feature to the landmarks it is computed from.
var featureJoints = map[string][]models.Joint{
	models.KneeAngleL:     leftLeg,
	models.KneeAngleR:     rightLeg,
	models.KneeAngleAvg:   join(leftLeg, rightLeg),
	models.HipAngleL:      leftHip,
	models.HipAngleR:      rightHip,
	models.HipAngleAvg:    join(leftHip, rightHip),
	models.ElbowAngleL:    leftArm,
	models.ElbowAngleR:    rightArm,
	models.ElbowAngleAvg:  join(leftArm, rightArm),
	models.SymKnee:        join(leftLeg, rightLeg),
	models.SymElbow:       join(leftArm, rightArm),
	models.SymHip:         join(leftHip, rightHip),
	models.PlankLine:      join(shoulders, hips, ankles),
	models.TrunkTilt:      join(shoulders, hips),
	models.FrontKneeAngle: join(leftLeg, rightLeg),
	models.BackKneeAngle:  join(leftLeg, rightLeg),
	models.KneeVelAvg:     join(leftLeg, rightLeg),
	models.ElbowVelAvg:    join(leftArm, rightArm),
	models.FrontKneeVel:   join(leftLeg, rightLeg),
	models.HipY:           hips,
	models.ShoulderY:      shoulders,
	models.WristY:         wrists,
	models.VerticalDisp:   join(shoulders, hips),
}

// JointsFor returns the union of joints the named features depend on, in
// models.AllJoints order. Unknown names contribute nothing.
func JointsFor(names ...string) []models.Joint {
	need := make(map[models.Joint]bool)
	for _, n := range names {
		for _, j := range featureJoints[n] {
			need[j] = true
		}
	}
	out := make([]models.Joint, 0, len(need))
	for _, j := range models.AllJoints {
		if need[j] {
			out = append(out, j)
		}
	}
	return out
}

// RequiredJoints returns the joints a frame must carry for kind to be scored.
// For a known exercise these are the joints behind its primary signal, top
// guards and frame-scope rules. For Unknown they are the joints behind every
// classifier signature term.
func RequiredJoints(cfg *config.Config, kind models.ExerciseKind) []models.Joint {
	var names []string
	if ex, ok := cfg.Exercise(kind); ok && kind.Known() {
		names = append(names, ex.Phase.Primary)
		for _, g := range ex.Phase.TopGuards {
			names = append(names, g.Feature)
		}
		for _, r := range ex.Form.Rules {
			if r.Scope == "frame" {
				names = append(names, r.Metric)
			}
		}
		return JointsFor(names...)
	}
	for _, terms := range cfg.Classifier.Signatures {
		for _, t := range terms {
			names = append(names, t.Feature)
		}
	}
	if len(names) == 0 {
		return slices.Clone(models.AllJoints)
	}
	return JointsFor(names...)
}
