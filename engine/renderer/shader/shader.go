// Package shader turns WGSL source into SPIR-V words for pipeline creation.
package shader

import (
	"encoding/binary"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/gogpu/naga"

	"github.com/spaghettifunk/framepace/engine/core"
)

// SPIRVMagic is the first word of every SPIR-V module.
const SPIRVMagic uint32 = 0x07230203

// Compile compiles WGSL source to little-endian SPIR-V words. The module
// keeps every entry point of the source.
func Compile(name, source string) ([]uint32, error) {
	spirvBytes, err := naga.Compile(source)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to compile shader %s", name)
	}
	if len(spirvBytes) == 0 || len(spirvBytes)%4 != 0 {
		return nil, errors.Newf("shader %s: SPIR-V size %d is not a whole number of words", name, len(spirvBytes))
	}

	words := make([]uint32, len(spirvBytes)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(spirvBytes[i*4:])
	}
	if words[0] != SPIRVMagic {
		return nil, errors.Newf("shader %s: bad SPIR-V magic %#x", name, words[0])
	}
	core.LogDebug("shader %s: compiled to %d SPIR-V words", name, len(words))
	return words, nil
}

// Load reads a WGSL file and compiles it.
func Load(path string) ([]uint32, error) {
	source, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read shader %q", path)
	}
	return Compile(path, string(source))
}
