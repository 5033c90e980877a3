// Package landmarks reads recorded pose-estimator output and runs it through
// an analysis session.
//
// A recording is newline-delimited JSON, one frame per line:
//
//	{"frame":12,"t":0.4,"landmarks":{"left_hip":[0.45,0.5,0.98],...}}
//
// Each landmark is [x, y, confidence] in normalized image coordinates.
// Unknown joint names are ignored; blank lines are skipped.
package landmarks

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/claude/repform/internal/models"
	"github.com/klauspost/compress/gzip"
)

var gzipMagic = []byte{0x1f, 0x8b}

// ParseError reports a malformed recording. Line is 0 when the stream as a
// whole is unreadable.
type ParseError struct {
	Line int
	Err  error
}

func (e *ParseError) Error() string {
	if e.Line == 0 {
		return "recording: " + e.Err.Error()
	}
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

type frameLine struct {
	Frame     *int                 `json:"frame"`
	T         float64              `json:"t"`
	Landmarks map[string][]float64 `json:"landmarks"`
}

// Reader decodes frames from an NDJSON recording.
type Reader struct {
	r    *bufio.Reader
	line int
}

// NewReader returns a Reader over r.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: bufio.NewReaderSize(r, 64*1024)}
}

// Decompress returns r unchanged unless the stream starts with the gzip magic
// bytes, in which case it returns a decompressing reader.
func Decompress(r io.Reader) (io.Reader, error) {
	br := bufio.NewReader(r)
	head, err := br.Peek(len(gzipMagic))
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, &ParseError{Err: err}
	}
	if !bytes.Equal(head, gzipMagic) {
		return br, nil
	}
	zr, err := gzip.NewReader(br)
	if err != nil {
		return nil, &ParseError{Err: fmt.Errorf("opening gzip stream: %w", err)}
	}
	return zr, nil
}

// Line returns the number of the last line read.
func (r *Reader) Line() int { return r.line }

// Next returns the next frame, or io.EOF after the last one.
func (r *Reader) Next() (models.LandmarkSet, error) {
	for {
		raw, err := r.r.ReadBytes('\n')
		if len(raw) == 0 && err != nil {
			if errors.Is(err, io.EOF) {
				return models.LandmarkSet{}, io.EOF
			}
			return models.LandmarkSet{}, &ParseError{Line: r.line + 1, Err: err}
		}
		r.line++

		raw = bytes.TrimSpace(raw)
		if len(raw) == 0 {
			continue
		}
		set, perr := parseLine(raw)
		if perr != nil {
			return models.LandmarkSet{}, &ParseError{Line: r.line, Err: perr}
		}
		return set, nil
	}
}

func parseLine(raw []byte) (models.LandmarkSet, error) {
	var fl frameLine
	if err := json.Unmarshal(raw, &fl); err != nil {
		return models.LandmarkSet{}, fmt.Errorf("decoding frame: %w", err)
	}
	if fl.Frame == nil {
		return models.LandmarkSet{}, errors.New("missing frame index")
	}
	if fl.T < 0 || math.IsNaN(fl.T) {
		return models.LandmarkSet{}, fmt.Errorf("invalid timestamp %v", fl.T)
	}

	set := models.LandmarkSet{
		Index:     *fl.Frame,
		Timestamp: time.Duration(fl.T * float64(time.Second)),
		Points:    make(map[models.Joint]models.Landmark, len(fl.Landmarks)),
	}
	for name, v := range fl.Landmarks {
		j := models.Joint(name)
		if !known(j) {
			continue
		}
		if len(v) != 3 {
			return models.LandmarkSet{}, fmt.Errorf("landmark %s: want [x, y, confidence], got %d values", name, len(v))
		}
		set.Points[j] = models.Landmark{X: v[0], Y: v[1], Confidence: v[2]}
	}
	return set, nil
}

func known(j models.Joint) bool {
	for _, k := range models.AllJoints {
		if k == j {
			return true
		}
	}
	return false
}
