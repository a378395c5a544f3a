package pipeline

import "errors"

var (
	ErrStageOrder         = errors.New("pipeline: stage position breaks kind order")
	ErrBackgroundConflict = errors.New("pipeline: a background stage is already installed")
	ErrStageNotFound      = errors.New("pipeline: stage not installed")
	ErrDuplicateStage     = errors.New("pipeline: stage already installed")
)

// Kind groups stages. Kinds must appear in ascending order in a pipeline:
// the mask has to exist before it is shaped, and its final shape has to
// exist before anything decides what is foreground.
type Kind int

const (
	KindIngest Kind = iota
	KindShape
	KindPatch
	KindBackground
	KindTone
)

func (k Kind) String() string {
	switch k {
	case KindIngest:
		return "ingest"
	case KindShape:
		return "shape"
	case KindPatch:
		return "patch"
	case KindBackground:
		return "background"
	case KindTone:
		return "tone"
	}
	return "unknown"
}

// Stage is one image-space transform. Apply must be a pure function of the
// frame and the stage's constructor parameters.
type Stage interface {
	Name() string
	Kind() Kind
	Apply(f *Frame) error
}
