package resources

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spaghettifunk/framepace/engine/renderer/gpu/gputest"
)

func TestCheckerboard(t *testing.T) {
	a := color.RGBA{R: 255, A: 255}
	b := color.RGBA{G: 255, A: 255}
	img := Checkerboard(8, 2, a, b)

	cases := []struct {
		x, y int
		want color.RGBA
	}{
		{0, 0, a},
		{1, 1, a},
		{2, 0, b},
		{0, 2, b},
		{2, 2, a},
		{7, 0, b},
	}
	for _, c := range cases {
		if have := img.RGBAAt(c.x, c.y); have != c.want {
			t.Fatalf("pixel (%d,%d):\nhave %v\nwant %v", c.x, c.y, have, c.want)
		}
	}
}

func TestToRGBA(t *testing.T) {
	cases := []struct {
		name          string
		src           image.Image
		maxDim        int
		width, height int
	}{
		{"rgba passthrough", image.NewRGBA(image.Rect(0, 0, 16, 8)), 64, 16, 8},
		{"gray converted", image.NewGray(image.Rect(0, 0, 10, 10)), 64, 10, 10},
		{"offset bounds", image.NewRGBA(image.Rect(4, 4, 12, 20)), 64, 8, 16},
		{"wide scaled", image.NewRGBA(image.Rect(0, 0, 400, 100)), 200, 200, 50},
		{"tall scaled", image.NewNRGBA(image.Rect(0, 0, 30, 300)), 100, 10, 100},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			dst := toRGBA(c.src, c.maxDim)
			if dst.Rect.Min != (image.Point{}) {
				t.Fatalf("origin: have %v, want (0,0)", dst.Rect.Min)
			}
			if dst.Rect.Dx() != c.width || dst.Rect.Dy() != c.height {
				t.Fatalf("size:\nhave %dx%d\nwant %dx%d", dst.Rect.Dx(), dst.Rect.Dy(), c.width, c.height)
			}
			if len(dst.Pix) != 4*c.width*c.height {
				t.Fatalf("pixel bytes: have %d, want %d", len(dst.Pix), 4*c.width*c.height)
			}
		})
	}
}

func TestDefaultTextureUpload(t *testing.T) {
	dev := gputest.NewDevice()
	tex, err := DefaultTexture(dev)
	if err != nil {
		t.Fatal(err)
	}
	if tex.Width != 256 || tex.Height != 256 {
		t.Fatalf("size: have %dx%d, want 256x256", tex.Width, tex.Height)
	}

	want := []string{
		fmt.Sprintf("image %d layout 0 -> 7", tex.Image),
		fmt.Sprintf("-> image %d (256x256)", tex.Image),
		fmt.Sprintf("image %d layout 7 -> 5", tex.Image),
	}
	if len(dev.Copies) != len(want) {
		t.Fatalf("transfer commands:\nhave %q\nwant %d entries", dev.Copies, len(want))
	}
	for i, w := range want {
		if !strings.Contains(dev.Copies[i], w) {
			t.Fatalf("transfer %d:\nhave %q\nwant %q", i, dev.Copies[i], w)
		}
	}

	// The staging buffer is gone once the upload returns.
	if n := dev.LiveCount(gputest.KindBuffer); n != 0 {
		t.Fatalf("live buffers after upload: have %d, want 0", n)
	}
	info := tex.ImageInfo()
	if info.View != tex.View || info.Sampler != tex.Sampler {
		t.Fatalf("image info: have %+v", info)
	}

	tex.Destroy()
	tex.Destroy()
	if leaks := dev.Leaks(); len(leaks) != 0 {
		t.Fatalf("leaked handles: %v", leaks)
	}
	if len(dev.Violations) != 0 {
		t.Fatalf("violations: %v", dev.Violations)
	}
}

func TestLoadTexture(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wide.png")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := png.Encode(f, image.NewNRGBA(image.Rect(0, 0, 4096, 1024))); err != nil {
		t.Fatal(err)
	}
	f.Close()

	dev := gputest.NewDevice()
	tex, err := LoadTexture(dev, "wide", path)
	if err != nil {
		t.Fatal(err)
	}
	defer tex.Destroy()
	if tex.Width != MaxTextureDimension || tex.Height != MaxTextureDimension/4 {
		t.Fatalf("size: have %dx%d, want %dx%d", tex.Width, tex.Height, MaxTextureDimension, MaxTextureDimension/4)
	}
}

func TestLoadTextureErrors(t *testing.T) {
	dir := t.TempDir()
	garbage := filepath.Join(dir, "garbage.png")
	if err := os.WriteFile(garbage, []byte("not an image"), 0o644); err != nil {
		t.Fatal(err)
	}

	cases := []struct {
		name string
		path string
	}{
		{"missing", filepath.Join(dir, "missing.png")},
		{"undecodable", garbage},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			dev := gputest.NewDevice()
			if _, err := LoadTexture(dev, c.name, c.path); err == nil {
				t.Fatal("LoadTexture: have nil error, want failure")
			}
			if leaks := dev.Leaks(); len(leaks) != 0 {
				t.Fatalf("leaked handles: %v", leaks)
			}
		})
	}
}

func TestCubeGeometry(t *testing.T) {
	vertices, indices := Cube()
	if len(vertices) != 24 || len(indices) != 36 {
		t.Fatalf("cube: have %d vertices/%d indices, want 24/36", len(vertices), len(indices))
	}
	for i, idx := range indices {
		if int(idx) >= len(vertices) {
			t.Fatalf("index %d: %d out of range", i, idx)
		}
	}
	if VertexStride != 32 {
		t.Fatalf("stride: have %d, want 32", VertexStride)
	}
	if VertexPositionOffset != 0 || VertexColorOffset != 12 || VertexUVOffset != 24 {
		t.Fatalf("offsets: have %d/%d/%d, want 0/12/24", VertexPositionOffset, VertexColorOffset, VertexUVOffset)
	}
}

func TestMeshUploadAndDraw(t *testing.T) {
	dev := gputest.NewDevice()
	vertices, indices := Cube()
	mesh, err := NewMesh(dev, "cube", vertices, indices)
	if err != nil {
		t.Fatal(err)
	}

	if len(dev.Copies) != 2 {
		t.Fatalf("copies: have %q, want 2 buffer copies", dev.Copies)
	}
	if !strings.HasSuffix(dev.Copies[0], "(768 bytes)") || !strings.HasSuffix(dev.Copies[1], "(144 bytes)") {
		t.Fatalf("copy sizes:\nhave %q\nwant 768 and 144 bytes", dev.Copies)
	}
	// Only the device-local buffers survive the upload.
	if n := dev.LiveCount(gputest.KindBuffer); n != 2 {
		t.Fatalf("live buffers: have %d, want 2", n)
	}

	cb := &gputest.CommandBuffer{}
	mesh.Draw(cb, 3, 0)
	calls := cb.Calls()
	if len(calls) != 3 || calls[2] != "draw_indexed 36 instance=0" {
		t.Fatalf("draw calls:\nhave %q", calls)
	}

	mesh.Destroy()
	if leaks := dev.Leaks(); len(leaks) != 0 {
		t.Fatalf("leaked handles: %v", leaks)
	}
}
