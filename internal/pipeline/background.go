package pipeline

import (
	"fmt"
	"sync"
)

// Mode is the background treatment.
type Mode string

const (
	ModeReplace Mode = "replace"
	ModeBlur    Mode = "blur"
)

// ParseMode validates a mode name.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeReplace, ModeBlur:
		return Mode(s), nil
	}
	return "", fmt.Errorf("pipeline: unknown background mode %q", s)
}

// BackgroundSwitch toggles the pipeline between replace mode (body-part
// patch + background replace) and blur mode (background blur only).
// Replace and blur are never installed together.
type BackgroundSwitch struct {
	mu      sync.Mutex
	p       *Pipeline
	replace Stage
	blur    Stage
	patch   Stage
	mode    Mode
}

// NewBackgroundSwitch installs the stages for the initial mode.
// patch may be nil.
func NewBackgroundSwitch(p *Pipeline, replace, blur, patch Stage, initial Mode) (*BackgroundSwitch, error) {
	s := &BackgroundSwitch{p: p, replace: replace, blur: blur, patch: patch}
	if err := p.Swap(nil, s.stagesFor(initial)); err != nil {
		return nil, err
	}
	s.mode = initial
	return s, nil
}

// Mode returns the active mode.
func (s *BackgroundSwitch) Mode() Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// Set switches to mode. It reports false when mode is already active.
func (s *BackgroundSwitch) Set(mode Mode) (bool, error) {
	if _, err := ParseMode(string(mode)); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if mode == s.mode {
		return false, nil
	}
	if err := s.p.Swap(s.stagesFor(s.mode), s.stagesFor(mode)); err != nil {
		return false, err
	}
	s.mode = mode
	return true, nil
}

func (s *BackgroundSwitch) stagesFor(mode Mode) []Stage {
	if mode == ModeBlur {
		return []Stage{s.blur}
	}
	if s.patch == nil {
		return []Stage{s.replace}
	}
	return []Stage{s.patch, s.replace}
}
