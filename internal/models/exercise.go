package models

import (
	"fmt"
	"strings"
)

// ExerciseKind identifies the exercise being performed in a session.
type ExerciseKind string

const (
	Unknown ExerciseKind = "unknown"
	Squat   ExerciseKind = "squat"
	PushUp  ExerciseKind = "pushup"
	Lunge   ExerciseKind = "lunge"
)

// ExerciseKinds lists the exercises the engine can recognize.
var ExerciseKinds = []ExerciseKind{Squat, PushUp, Lunge}

// ParseExerciseKind parses a kind name. The empty string parses as Unknown.
func ParseExerciseKind(s string) (ExerciseKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "unknown", "auto":
		return Unknown, nil
	case "squat":
		return Squat, nil
	case "pushup", "push-up", "push_up":
		return PushUp, nil
	case "lunge":
		return Lunge, nil
	}
	return Unknown, fmt.Errorf("unknown exercise %q", s)
}

// Known reports whether k is one of the recognized exercises.
func (k ExerciseKind) Known() bool {
	return k == Squat || k == PushUp || k == Lunge
}

func (k ExerciseKind) String() string { return string(k) }
