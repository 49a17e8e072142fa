// Package shaders loads the precompiled SPIR-V programs used by the engine.
// The GLSL sources live next to this file. Run `go generate` in order to
// compile them again.
package shaders

import (
	"encoding/binary"
	"math/bits"
	"os"

	"github.com/cockroachdb/errors"

	"wurmple/unsafer"
)

//go:generate glslc shader.comp -o shader.spv

// DefaultPath is where the background compute shader is looked up when the
// configuration does not name another file.
const DefaultPath = "shaders/shader.spv"

// Magic is the first word of every SPIR-V module.
const Magic uint32 = 0x07230203

// ErrInvalidBytecode is returned for files which are not SPIR-V modules.
var ErrInvalidBytecode = errors.New("invalid SPIR-V bytecode")

// Load reads the SPIR-V module at path and returns it as 32 bit words, ready
// for vk.ShaderModuleCreateInfo. Modules stored in the opposite byte order
// are swapped.
func Load(path string) ([]uint32, error) {
	code, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading shader %s", path)
	}

	if err := Validate(code); err != nil {
		return nil, errors.Wrapf(err, "shader %s", path)
	}

	words := unsafer.BytesToUint32(code)
	if words[0] != Magic {
		for i, w := range words {
			words[i] = bits.ReverseBytes32(w)
		}
	}
	return words, nil
}

// Validate checks that code looks like a SPIR-V module: it must be a whole
// number of words, long enough to hold the five word header and start with
// the magic number in either byte order.
func Validate(code []byte) error {
	if len(code)%4 != 0 {
		return errors.Wrapf(ErrInvalidBytecode, "size %d is not a multiple of 4", len(code))
	}
	if len(code) < 5*4 {
		return errors.Wrapf(ErrInvalidBytecode, "size %d is shorter than the header", len(code))
	}

	little := binary.LittleEndian.Uint32(code)
	big := binary.BigEndian.Uint32(code)
	if little != Magic && big != Magic {
		return errors.Wrapf(ErrInvalidBytecode, "bad magic number %#08x", little)
	}

	return nil
}
