package recording

import (
	"context"
	"encoding/json"
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"tryon-compositor/internal/assets"
	"tryon-compositor/internal/coords"
	"tryon-compositor/internal/gpu"
	"tryon-compositor/internal/pose"
	"tryon-compositor/internal/raster"
)

// Uploader creates and frees device textures.
type Uploader interface {
	NewTexture(buf *raster.Buffer) gpu.Texture
	DeleteTexture(tex gpu.Texture)
}

// Frame is one decoded frame. Release frees its mask textures; the frame
// must not be used afterwards.
type Frame struct {
	Result pose.Result
	Video  *image.NRGBA

	dev      Uploader
	textures []gpu.Texture
}

// Release deletes the frame's device textures.
func (f *Frame) Release() {
	for _, t := range f.textures {
		f.dev.DeleteTexture(t)
	}
	f.textures = nil
}

// Source replays a recording directory in sequence order.
type Source struct {
	dir   string
	dev   Uploader
	log   *zap.Logger
	files []string
	next  int
}

// Open lists the frames of dir.
func Open(dir string, dev Uploader, log *zap.Logger) (*Source, error) {
	if log == nil {
		log = zap.NewNop()
	}
	files, err := filepath.Glob(filepath.Join(dir, "frame_*.json"))
	if err != nil {
		return nil, fmt.Errorf("recording: list %s: %w", dir, err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("recording: %s: no frames", dir)
	}
	sort.Strings(files)
	return &Source{dir: dir, dev: dev, log: log, files: files}, nil
}

// Dir returns the recording directory.
func (s *Source) Dir() string { return s.dir }

// Len returns the number of frames.
func (s *Source) Len() int { return len(s.files) }

// Rewind restarts playback from the first frame.
func (s *Source) Rewind() { s.next = 0 }

// Next decodes the next frame. It returns io.EOF after the last one.
func (s *Source) Next(ctx context.Context) (*Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.next >= len(s.files) {
		return nil, io.EOF
	}
	path := s.files[s.next]
	s.next++

	seq := seqFromName(path)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &FrameError{Seq: seq, Path: path, Err: fmt.Errorf("read: %w", err)}
	}
	var ff FrameFile
	if err := json.Unmarshal(data, &ff); err != nil {
		return nil, &FrameError{Seq: seq, Path: path, Err: fmt.Errorf("parse: %w", err)}
	}
	if ff.Seq != 0 {
		seq = ff.Seq
	}
	f, err := s.decode(&ff)
	if err != nil {
		return nil, &FrameError{Seq: seq, Path: path, Err: err}
	}
	return f, nil
}

// FrameError reports a recorded frame that could not be loaded. The source
// has already moved past it, so the caller may skip it and call Next again.
type FrameError struct {
	Seq  uint64
	Path string
	Err  error
}

func (e *FrameError) Error() string {
	return fmt.Sprintf("recording: frame %d (%s): %v", e.Seq, e.Path, e.Err)
}

func (e *FrameError) Unwrap() error { return e.Err }

// seqFromName recovers the sequence number from a frame file name, or 0.
func seqFromName(path string) uint64 {
	name := strings.TrimSuffix(strings.TrimPrefix(filepath.Base(path), "frame_"), ".json")
	seq, err := strconv.ParseUint(name, 10, 64)
	if err != nil {
		return 0
	}
	return seq
}

func (s *Source) decode(ff *FrameFile) (*Frame, error) {
	f := &Frame{Result: pose.Result{Seq: ff.Seq}, dev: s.dev}
	if ff.Video != "" {
		img, err := s.image(ff.Video)
		if err != nil {
			return nil, err
		}
		f.Video = img
	}
	for i := range ff.Poses {
		pf := &ff.Poses[i]
		p := &pose.Pose{Points: pf.Points}
		if pf.Mask != nil && pf.Mask.Image != "" {
			m, err := s.mask(pf.Mask)
			if err != nil {
				f.Release()
				return nil, err
			}
			p.Mask = m
			f.textures = append(f.textures, m.Texture)
		}
		f.Result.Poses = append(f.Result.Poses, p)
	}
	s.log.Debug("frame decoded", zap.Uint64("seq", ff.Seq), zap.Int("poses", len(f.Result.Poses)))
	return f, nil
}

func (s *Source) mask(mf *MaskFile) (*pose.Mask, error) {
	img, err := s.image(mf.Image)
	if err != nil {
		return nil, err
	}
	box := coords.FullBox
	if mf.Box != nil && mf.Box.Valid() {
		box = *mf.Box
	}
	buf := raster.BufferFromNRGBA(img)
	return &pose.Mask{
		Texture: s.dev.NewTexture(buf),
		Width:   buf.Width,
		Height:  buf.Height,
		Box:     box,
	}, nil
}

func (s *Source) image(name string) (*image.NRGBA, error) {
	path := filepath.Join(s.dir, name)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	img, err := assets.DecodeImage(name, data)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", name, err)
	}
	return img, nil
}
