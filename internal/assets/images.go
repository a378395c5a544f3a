package assets

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"net/http"
	"path"
	"strings"
	"sync"

	"github.com/ftrvxmtrx/tga"
	"golang.org/x/image/webp"

	"tryon-compositor/internal/raster"
)

var (
	pngMagic  = []byte("\x89PNG\r\n\x1a\n")
	jpegMagic = []byte{0xff, 0xd8, 0xff}
)

// DecodeImage decodes png, jpeg, webp or tga data to NRGBA. The decoder is
// picked here rather than by image.Decode: tga registers an empty magic
// that would claim every input. png, jpeg and webp are recognized by their
// signature; tga has none and is taken from the extension of name.
func DecodeImage(name string, data []byte) (*image.NRGBA, error) {
	decode, err := decoderFor(name, data)
	if err != nil {
		return nil, err
	}
	img, err := decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	return raster.ToNRGBA(img), nil
}

func decoderFor(name string, data []byte) (func(io.Reader) (image.Image, error), error) {
	switch {
	case bytes.HasPrefix(data, pngMagic):
		return png.Decode, nil
	case bytes.HasPrefix(data, jpegMagic):
		return jpeg.Decode, nil
	case len(data) >= 12 && string(data[:4]) == "RIFF" && string(data[8:12]) == "WEBP":
		return webp.Decode, nil
	}
	clean, _, _ := strings.Cut(name, "?")
	if strings.EqualFold(path.Ext(clean), ".tga") {
		return tga.Decode, nil
	}
	return nil, fmt.Errorf("unsupported image format: %s", name)
}

// ImageCache loads background images once per URL. Failed loads are not
// cached, so a later request retries.
type ImageCache struct {
	Root   string
	Client *http.Client

	mu    sync.RWMutex
	items map[string]*image.NRGBA
}

func NewImageCache(root string) *ImageCache {
	return &ImageCache{Root: root, items: make(map[string]*image.NRGBA)}
}

// Image returns the decoded image for url. The result is shared: callers
// must not modify it.
func (c *ImageCache) Image(ctx context.Context, url string) (*image.NRGBA, error) {
	// Fast path: read lock
	c.mu.RLock()
	if img, ok := c.items[url]; ok {
		c.mu.RUnlock()
		return img, nil
	}
	c.mu.RUnlock()

	raw, err := fetch(ctx, c.Client, c.Root, url)
	if err != nil {
		return nil, fmt.Errorf("assets: read %s: %w", url, err)
	}
	img, err := DecodeImage(url, raw)
	if err != nil {
		return nil, fmt.Errorf("assets: decode %s: %w", url, err)
	}

	// Write lock with double-check
	c.mu.Lock()
	defer c.mu.Unlock()
	if cached, ok := c.items[url]; ok {
		return cached, nil
	}
	c.items[url] = img
	return img, nil
}

// Len returns the number of cached images.
func (c *ImageCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}
