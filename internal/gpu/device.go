// Package gpu is the narrow slice of a GL-style device the core needs:
// texture handles, framebuffer objects and pixel readback.
package gpu

import (
	"errors"
	"fmt"
	"sync"

	"tryon-compositor/internal/raster"
)

var (
	ErrUnknownTexture     = errors.New("gpu: unknown texture")
	ErrUnknownFramebuffer = errors.New("gpu: unknown framebuffer")
	ErrNoAttachment       = errors.New("gpu: framebuffer has no color attachment")
	ErrFramebufferBound   = errors.New("gpu: framebuffer still bound")
	ErrReadOutOfRange     = errors.New("gpu: read rectangle outside attachment")
)

// Texture is an opaque device texture handle.
type Texture interface {
	ID() uint32
	Size() (w, h int)
}

// Framebuffer is an opaque framebuffer object handle.
type Framebuffer interface {
	ID() uint32
}

// Device is the subset of a GL context the core uses.
type Device interface {
	CreateFramebuffer() (Framebuffer, error)
	// BindFramebuffer binds fb; nil restores the default framebuffer.
	BindFramebuffer(fb Framebuffer) error
	// AttachTexture sets tex as color attachment 0 of the bound framebuffer.
	AttachTexture(tex Texture) error
	// ReadPixels copies an RGBA rectangle of the bound framebuffer into dst.
	ReadPixels(x, y, w, h int, dst []byte) error
	DeleteFramebuffer(fb Framebuffer) error
	// Sample gives compositing passes texel access to tex. It is a device-side
	// copy, not a host readback, and never touches framebuffer bindings.
	Sample(tex Texture) (*raster.Buffer, error)
}

type softTexture struct {
	id  uint32
	buf *raster.Buffer
}

func (t *softTexture) ID() uint32 { return t.id }

func (t *softTexture) Size() (int, int) { return t.buf.Width, t.buf.Height }

type softFramebuffer struct {
	id         uint32
	attachment *softTexture
}

func (f *softFramebuffer) ID() uint32 { return f.id }

// SoftDevice is an in-memory Device. It backs the offline tools and tests.
type SoftDevice struct {
	mu       sync.Mutex
	nextID   uint32
	textures map[uint32]*softTexture
	fbos     map[uint32]*softFramebuffer
	bound    *softFramebuffer

	stats SoftStats
}

// SoftStats counts framebuffer traffic.
type SoftStats struct {
	Created  int
	Deleted  int
	Reads    int
	BoundNow bool
	Textures int
}

// NewSoftDevice creates an empty device.
func NewSoftDevice() *SoftDevice {
	return &SoftDevice{
		textures: make(map[uint32]*softTexture),
		fbos:     make(map[uint32]*softFramebuffer),
	}
}

// NewTexture uploads buf (texture orientation, row 0 = bottom) as a new texture.
func (d *SoftDevice) NewTexture(buf *raster.Buffer) Texture {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	t := &softTexture{id: d.nextID, buf: buf.Clone()}
	d.textures[t.id] = t
	return t
}

// DeleteTexture releases a texture.
func (d *SoftDevice) DeleteTexture(tex Texture) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if tex != nil {
		delete(d.textures, tex.ID())
	}
}

func (d *SoftDevice) CreateFramebuffer() (Framebuffer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	fb := &softFramebuffer{id: d.nextID}
	d.fbos[fb.id] = fb
	d.stats.Created++
	return fb, nil
}

func (d *SoftDevice) BindFramebuffer(fb Framebuffer) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if fb == nil {
		d.bound = nil
		return nil
	}
	f, ok := d.fbos[fb.ID()]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownFramebuffer, fb.ID())
	}
	d.bound = f
	return nil
}

func (d *SoftDevice) AttachTexture(tex Texture) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.bound == nil {
		return ErrUnknownFramebuffer
	}
	t, ok := d.textures[tex.ID()]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownTexture, tex.ID())
	}
	d.bound.attachment = t
	return nil
}

func (d *SoftDevice) ReadPixels(x, y, w, h int, dst []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.bound == nil || d.bound.attachment == nil {
		return ErrNoAttachment
	}
	src := d.bound.attachment.buf
	if x < 0 || y < 0 || x+w > src.Width || y+h > src.Height {
		return ErrReadOutOfRange
	}
	if len(dst) < w*h*4 {
		return fmt.Errorf("gpu: destination holds %d bytes, need %d", len(dst), w*h*4)
	}
	for row := 0; row < h; row++ {
		so := src.Offset(x, y+row)
		copy(dst[row*w*4:(row+1)*w*4], src.Pix[so:so+w*4])
	}
	d.stats.Reads++
	return nil
}

func (d *SoftDevice) DeleteFramebuffer(fb Framebuffer) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.fbos[fb.ID()]; !ok {
		return fmt.Errorf("%w: %d", ErrUnknownFramebuffer, fb.ID())
	}
	if d.bound != nil && d.bound.id == fb.ID() {
		d.bound = nil
	}
	delete(d.fbos, fb.ID())
	d.stats.Deleted++
	return nil
}

func (d *SoftDevice) Sample(tex Texture) (*raster.Buffer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	t, ok := d.textures[tex.ID()]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownTexture, tex.ID())
	}
	return t.buf.Clone(), nil
}

// Stats returns a snapshot of the device counters.
func (d *SoftDevice) Stats() SoftStats {
	d.mu.Lock()
	defer d.mu.Unlock()
	s := d.stats
	s.BoundNow = d.bound != nil
	s.Textures = len(d.textures)
	return s
}

// LiveFramebuffers returns how many framebuffers have not been deleted.
func (d *SoftDevice) LiveFramebuffers() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.fbos)
}
