package recording

import (
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"

	"tryon-compositor/internal/coords"
	"tryon-compositor/internal/pose"
)

// FrameData is what WriteFrame stores for one frame. Masks are top-down
// images, one per pose; a nil mask records a pose without segmentation.
type FrameData struct {
	Seq   uint64
	Video image.Image
	Poses []*pose.Pose
	Masks []image.Image
	Box   *coords.Box
}

// WriteFrame stores fd in dir as PNG images plus the frame JSON.
func WriteFrame(dir string, fd FrameData) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("recording: %w", err)
	}
	ff := FrameFile{Seq: fd.Seq}
	if fd.Video != nil {
		ff.Video = ImageName(fd.Seq, "video", "png")
		if err := writePNG(filepath.Join(dir, ff.Video), fd.Video); err != nil {
			return err
		}
	}
	for i, p := range fd.Poses {
		pf := PoseFile{Points: p.Points}
		if i < len(fd.Masks) && fd.Masks[i] != nil {
			kind := "mask"
			if i > 0 {
				kind = fmt.Sprintf("mask%d", i)
			}
			pf.Mask = &MaskFile{Image: ImageName(fd.Seq, kind, "png"), Box: fd.Box}
			if err := writePNG(filepath.Join(dir, pf.Mask.Image), fd.Masks[i]); err != nil {
				return err
			}
		}
		ff.Poses = append(ff.Poses, pf)
	}

	data, err := json.MarshalIndent(ff, "", "  ")
	if err != nil {
		return fmt.Errorf("recording: encode frame %d: %w", fd.Seq, err)
	}
	path := filepath.Join(dir, FrameName(fd.Seq))
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("recording: write %s: %w", path, err)
	}
	return nil
}

func writePNG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("recording: create %s: %w", path, err)
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return fmt.Errorf("recording: encode %s: %w", path, err)
	}
	return f.Close()
}
