package resources

import (
	"image"
	"image/color"
	_ "image/jpeg"
	_ "image/png"
	"os"

	"github.com/cockroachdb/errors"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"github.com/spaghettifunk/framepace/engine/core"
	"github.com/spaghettifunk/framepace/engine/renderer/buffer"
	"github.com/spaghettifunk/framepace/engine/renderer/gpu"
)

const (
	DefaultTextureName = "default"
	// MaxTextureDimension bounds uploaded textures. Larger images are scaled
	// down, keeping their aspect ratio.
	MaxTextureDimension = 2048

	textureFormat = gpu.FormatR8G8B8A8Srgb
)

// Uploader is the part of a device resources need to move data into
// device-local memory.
type Uploader interface {
	gpu.BufferAllocator
	gpu.ImageDevice
	gpu.TransferDevice
	Limits() gpu.Limits
}

// Texture is a sampled 2D image with its view and sampler, ready to be
// written into a combined or separate image descriptor.
type Texture struct {
	Name   string
	Width  uint32
	Height uint32

	Image   gpu.Image
	Memory  gpu.DeviceMemory
	View    gpu.ImageView
	Sampler gpu.Sampler

	device Uploader
}

// LoadTexture decodes the image file at path and uploads it.
func LoadTexture(device Uploader, name, path string) (*Texture, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open texture %q", path)
	}
	defer file.Close()

	img, format, err := image.Decode(file)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to decode texture %q", path)
	}
	core.LogDebug("texture %s: decoded %s image %dx%d", name, format, img.Bounds().Dx(), img.Bounds().Dy())
	return NewTexture(device, name, img)
}

// NewTexture converts img to RGBA and uploads it through a staging buffer.
func NewTexture(device Uploader, name string, img image.Image) (*Texture, error) {
	rgba := toRGBA(img, MaxTextureDimension)
	width, height := uint32(rgba.Rect.Dx()), uint32(rgba.Rect.Dy())
	if width == 0 || height == 0 {
		return nil, errors.Newf("texture %q has no pixels", name)
	}

	t := &Texture{
		Name:   name,
		Width:  width,
		Height: height,
		device: device,
	}
	if err := t.upload(rgba.Pix); err != nil {
		t.Destroy()
		return nil, err
	}
	return t, nil
}

// Checkerboard returns a size x size image of alternating cells, the
// fallback texture for objects that name none.
func Checkerboard(size, cell int, a, b color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			if (x/cell+y/cell)%2 == 0 {
				img.SetRGBA(x, y, a)
			} else {
				img.SetRGBA(x, y, b)
			}
		}
	}
	return img
}

// DefaultTexture uploads the blue and white checkerboard.
func DefaultTexture(device Uploader) (*Texture, error) {
	img := Checkerboard(256, 32, color.RGBA{R: 0, G: 0, B: 255, A: 255}, color.RGBA{R: 255, G: 255, B: 255, A: 255})
	return NewTexture(device, DefaultTextureName, img)
}

// toRGBA returns img as tightly packed RGBA, scaled down when either side
// exceeds maxDim.
func toRGBA(img image.Image, maxDim int) *image.RGBA {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w > maxDim || h > maxDim {
		if w >= h {
			h = max(1, h*maxDim/w)
			w = maxDim
		} else {
			w = max(1, w*maxDim/h)
			h = maxDim
		}
		dst := image.NewRGBA(image.Rect(0, 0, w, h))
		draw.CatmullRom.Scale(dst, dst.Rect, img, bounds, draw.Src, nil)
		return dst
	}

	if rgba, ok := img.(*image.RGBA); ok && rgba.Stride == 4*w && bounds.Min == (image.Point{}) {
		return rgba
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Rect, img, bounds.Min, draw.Src)
	return dst
}

func (t *Texture) upload(pixels []byte) error {
	staging, err := buffer.New(
		t.device,
		uint64(len(pixels)),
		1,
		gpu.BufferUsageTransferSrc,
		gpu.MemoryPropertyHostVisible|gpu.MemoryPropertyHostCoherent,
		1,
	)
	if err != nil {
		return errors.Wrapf(err, "texture %s: staging buffer", t.Name)
	}
	defer staging.Destroy()

	if err := staging.Map(); err != nil {
		return err
	}
	staging.WriteToBuffer(pixels)
	staging.Unmap()

	extent := gpu.Extent2D{Width: t.Width, Height: t.Height}
	t.Image, t.Memory, err = t.device.CreateImage(gpu.ImageCreateInfo{
		Extent:     extent,
		Format:     textureFormat,
		Tiling:     gpu.ImageTilingOptimal,
		Usage:      gpu.ImageUsageTransferDst | gpu.ImageUsageSampled,
		Properties: gpu.MemoryPropertyDeviceLocal,
	})
	if err != nil {
		return errors.Wrapf(err, "texture %s: image", t.Name)
	}

	if err := t.device.TransitionImageLayout(t.Image, textureFormat, gpu.ImageLayoutUndefined, gpu.ImageLayoutTransferDst); err != nil {
		return err
	}
	if err := t.device.CopyBufferToImage(staging.Handle(), t.Image, extent); err != nil {
		return err
	}
	if err := t.device.TransitionImageLayout(t.Image, textureFormat, gpu.ImageLayoutTransferDst, gpu.ImageLayoutShaderReadOnly); err != nil {
		return err
	}

	if t.View, err = t.device.CreateImageView(t.Image, textureFormat, gpu.ImageAspectColor); err != nil {
		return errors.Wrapf(err, "texture %s: view", t.Name)
	}
	t.Sampler, err = t.device.CreateSampler(gpu.SamplerCreateInfo{
		MagFilter:     gpu.FilterLinear,
		MinFilter:     gpu.FilterLinear,
		MaxAnisotropy: t.device.Limits().MaxSamplerAnisotropy,
	})
	if err != nil {
		return errors.Wrapf(err, "texture %s: sampler", t.Name)
	}
	return nil
}

// ImageInfo describes the texture for a descriptor write.
func (t *Texture) ImageInfo() gpu.DescriptorImageInfo {
	return gpu.DescriptorImageInfo{
		Sampler: t.Sampler,
		View:    t.View,
		Layout:  gpu.ImageLayoutShaderReadOnly,
	}
}

// Destroy releases whatever part of the texture was created.
func (t *Texture) Destroy() {
	if t.Sampler != 0 {
		t.device.DestroySampler(t.Sampler)
		t.Sampler = 0
	}
	if t.View != 0 {
		t.device.DestroyImageView(t.View)
		t.View = 0
	}
	if t.Image != 0 {
		t.device.DestroyImage(t.Image, t.Memory)
		t.Image = 0
		t.Memory = 0
	}
}
