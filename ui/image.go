package ui

import (
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	xdraw "golang.org/x/image/draw"

	"github.com/franksops/gfupload/engine"
	"github.com/franksops/gfupload/provider"
)

// ensure interface is implemented
var _ engine.IconDecoder = (*ImageDecoder)(nil)

// ImageDecoder loads notification icons through a provider and scales
// them to fit the requested size, keeping their aspect ratio.
type ImageDecoder struct {
	Files provider.Provider
}

// DecodeScaled implements engine.IconDecoder. A non positive width or height
// returns the image unscaled.
func (d *ImageDecoder) DecodeScaled(path string, width, height int) (image.Image, error) {
	rc, err := d.Files.OpenRead(context.Background(), path)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	img, _, err := image.Decode(rc)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}

	if width <= 0 || height <= 0 {
		return img, nil
	}

	b := img.Bounds()
	w, h := fit(b.Dx(), b.Dy(), width, height)
	if w == b.Dx() && h == b.Dy() {
		return img, nil
	}

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	xdraw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, b, xdraw.Over, nil)
	return dst, nil
}

// fit returns the largest size with the aspect of srcW x srcH inside maxW x maxH.
func fit(srcW, srcH, maxW, maxH int) (int, int) {
	if srcW <= 0 || srcH <= 0 {
		return maxW, maxH
	}
	if srcW*maxH > srcH*maxW {
		return maxW, max(srcH*maxW/srcW, 1)
	}
	return max(srcW*maxH/srcH, 1), maxH
}
