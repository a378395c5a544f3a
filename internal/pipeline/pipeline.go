// Package pipeline runs the ordered, mutable list of image-space stages that
// turn a segmentation mask and a camera frame into the composited output.
package pipeline

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Pipeline is an ordered stage list. Mutations and Run are serialized:
// a frame always sees one consistent list from its first stage to its last.
type Pipeline struct {
	mu     sync.RWMutex
	stages []Stage
	log    *zap.Logger
}

// New creates an empty pipeline.
func New(log *zap.Logger) *Pipeline {
	if log == nil {
		log = zap.NewNop()
	}
	return &Pipeline{log: log}
}

// Add appends s at the end of its kind group.
func (p *Pipeline) Add(s Stage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	next, err := add(p.stages, s)
	if err != nil {
		return err
	}
	p.stages = next
	p.log.Debug("stage added", zap.String("stage", s.Name()), zap.Stringer("kind", s.Kind()))
	return nil
}

// Insert places s at index i, rejecting positions that break kind order.
func (p *Pipeline) Insert(i int, s Stage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := admissible(p.stages, s); err != nil {
		return err
	}
	if i < 0 || i > len(p.stages) {
		return fmt.Errorf("%w: index %d out of range", ErrStageOrder, i)
	}
	if i > 0 && p.stages[i-1].Kind() > s.Kind() {
		return fmt.Errorf("%w: %s after %s", ErrStageOrder, s.Name(), p.stages[i-1].Name())
	}
	if i < len(p.stages) && p.stages[i].Kind() < s.Kind() {
		return fmt.Errorf("%w: %s before %s", ErrStageOrder, s.Name(), p.stages[i].Name())
	}
	next := make([]Stage, 0, len(p.stages)+1)
	next = append(next, p.stages[:i]...)
	next = append(next, s)
	next = append(next, p.stages[i:]...)
	p.stages = next
	return nil
}

// Remove takes s out of the pipeline.
func (p *Pipeline) Remove(s Stage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	next, err := remove(p.stages, s)
	if err != nil {
		return err
	}
	p.stages = next
	p.log.Debug("stage removed", zap.String("stage", s.Name()))
	return nil
}

// Swap removes every stage in out, then adds every stage in in, as one step.
// On any error the pipeline is left unchanged.
func (p *Pipeline) Swap(out, in []Stage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	next := p.stages
	var err error
	for _, s := range out {
		if next, err = remove(next, s); err != nil {
			return err
		}
	}
	for _, s := range in {
		if next, err = add(next, s); err != nil {
			return err
		}
	}
	p.stages = next
	return nil
}

// Index returns the position of s, or -1.
func (p *Pipeline) Index(s Stage) int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return indexOf(p.stages, s)
}

// Stages returns a copy of the current list.
func (p *Pipeline) Stages() []Stage {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]Stage, len(p.stages))
	copy(out, p.stages)
	return out
}

// Run applies every stage in list order. The first failing stage aborts the frame.
func (p *Pipeline) Run(f *Frame) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, s := range p.stages {
		if err := s.Apply(f); err != nil {
			return fmt.Errorf("pipeline: stage %s: %w", s.Name(), err)
		}
	}
	return nil
}

func indexOf(list []Stage, s Stage) int {
	for i, x := range list {
		if x == s {
			return i
		}
	}
	return -1
}

func admissible(list []Stage, s Stage) error {
	if indexOf(list, s) >= 0 {
		return fmt.Errorf("%w: %s", ErrDuplicateStage, s.Name())
	}
	if s.Kind() == KindBackground {
		for _, x := range list {
			if x.Kind() == KindBackground {
				return fmt.Errorf("%w: %s while %s is active", ErrBackgroundConflict, s.Name(), x.Name())
			}
		}
	}
	return nil
}

// add returns a new slice with s after the last stage of kind <= s.Kind().
func add(list []Stage, s Stage) ([]Stage, error) {
	if err := admissible(list, s); err != nil {
		return nil, err
	}
	at := 0
	for i, x := range list {
		if x.Kind() <= s.Kind() {
			at = i + 1
		}
	}
	next := make([]Stage, 0, len(list)+1)
	next = append(next, list[:at]...)
	next = append(next, s)
	next = append(next, list[at:]...)
	return next, nil
}

func remove(list []Stage, s Stage) ([]Stage, error) {
	i := indexOf(list, s)
	if i < 0 {
		return nil, fmt.Errorf("%w: %s", ErrStageNotFound, s.Name())
	}
	next := make([]Stage, 0, len(list)-1)
	next = append(next, list[:i]...)
	next = append(next, list[i+1:]...)
	return next, nil
}
