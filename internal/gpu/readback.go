package gpu

import (
	"errors"
	"fmt"

	"tryon-compositor/internal/raster"
)

// Readback copies tex to host memory.
//
// Each call owns its framebuffer: create, bind, attach, read, then unbind and
// delete. The unbind/delete runs even when the read fails, so no binding
// survives the call.
func Readback(dev Device, tex Texture) (buf *raster.Buffer, err error) {
	if tex == nil {
		return nil, ErrUnknownTexture
	}
	w, h := tex.Size()

	fb, err := dev.CreateFramebuffer()
	if err != nil {
		return nil, fmt.Errorf("gpu: create framebuffer: %w", err)
	}
	defer func() {
		unbindErr := dev.BindFramebuffer(nil)
		deleteErr := dev.DeleteFramebuffer(fb)
		if err == nil {
			err = errors.Join(unbindErr, deleteErr)
		}
		if err != nil {
			buf = nil
		}
	}()

	if err := dev.BindFramebuffer(fb); err != nil {
		return nil, fmt.Errorf("gpu: bind framebuffer: %w", err)
	}
	if err := dev.AttachTexture(tex); err != nil {
		return nil, fmt.Errorf("gpu: attach texture: %w", err)
	}

	out := raster.NewBuffer(w, h)
	if err := dev.ReadPixels(0, 0, w, h, out.Pix); err != nil {
		return nil, fmt.Errorf("gpu: read pixels: %w", err)
	}
	return out, nil
}
