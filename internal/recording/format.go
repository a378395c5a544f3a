// Package recording reads and writes recorded try-on sessions: one JSON
// file per frame with the estimator output, next to the frame's video and
// mask images.
package recording

import (
	"fmt"

	"tryon-compositor/internal/coords"
	"tryon-compositor/internal/pose"
)

// FramePattern names frame files inside a recording directory.
const FramePattern = "frame_%06d.json"

// FrameFile is the on-disk form of one frame. Image paths are relative to
// the recording directory.
type FrameFile struct {
	Seq   uint64     `json:"seq"`
	Video string     `json:"video"`
	Poses []PoseFile `json:"poses,omitempty"`
}

// PoseFile is one detected person.
type PoseFile struct {
	Points map[pose.Joint]pose.Keypoint `json:"points"`
	Mask   *MaskFile                    `json:"mask,omitempty"`
}

// MaskFile points at the segmentation image. The image is stored top-down
// like any picture; Box defaults to the whole frame.
type MaskFile struct {
	Image string      `json:"image"`
	Box   *coords.Box `json:"box,omitempty"`
}

// FrameName returns the JSON file name for seq.
func FrameName(seq uint64) string {
	return fmt.Sprintf(FramePattern, seq)
}

// ImageName returns the conventional image file name for a frame's kind
// ("video", "mask", ...).
func ImageName(seq uint64, kind, ext string) string {
	return fmt.Sprintf("frame_%06d_%s.%s", seq, kind, ext)
}
