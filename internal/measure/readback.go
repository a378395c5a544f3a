package measure

import (
	"tryon-compositor/internal/gpu"
	"tryon-compositor/internal/pose"
	"tryon-compositor/internal/raster"
)

// Readback copies the pose's mask texture to host memory with a dedicated,
// immediately released framebuffer.
func Readback(dev gpu.Device, p *pose.Pose) (*raster.Buffer, error) {
	if p == nil || p.Mask == nil || p.Mask.Texture == nil {
		return nil, ErrNoMask
	}
	return gpu.Readback(dev, p.Mask.Texture)
}
