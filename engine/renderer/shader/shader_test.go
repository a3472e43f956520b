package shader

import (
	"os"
	"path/filepath"
	"testing"
)

const triangle = `
@vertex
fn vs_main(@builtin(vertex_index) idx: u32) -> @builtin(position) vec4<f32> {
    let x = f32(i32(idx) - 1);
    let y = f32(i32(idx & 1u) * 2 - 1);
    return vec4<f32>(x, y, 0.0, 1.0);
}

@fragment
fn fs_main() -> @location(0) vec4<f32> {
    return vec4<f32>(1.0, 0.0, 0.0, 1.0);
}
`

func TestCompile(t *testing.T) {
	words, err := Compile("triangle", triangle)
	if err != nil {
		t.Fatal(err)
	}
	// Header is five words: magic, version, generator, bound, schema.
	if len(words) <= 5 {
		t.Fatalf("module too short: %d words", len(words))
	}
	if words[0] != SPIRVMagic {
		t.Fatalf("magic:\nhave %#x\nwant %#x", words[0], SPIRVMagic)
	}
}

func TestCompileInvalid(t *testing.T) {
	if _, err := Compile("broken", "fn main( {"); err == nil {
		t.Fatal("Compile: have nil error, want failure")
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "triangle.wgsl")
	if err := os.WriteFile(path, []byte(triangle), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if _, err := Load(filepath.Join(dir, "missing.wgsl")); err == nil {
		t.Fatal("Load of missing file: have nil error, want failure")
	}
}
