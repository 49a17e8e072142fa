package unsafer

import (
	"encoding/binary"
)

// BytesToUint32 repacks data into native-endian 32 bit words, the form
// vk.ShaderModuleCreateInfo expects its code in. Trailing bytes which do not
// form a whole word are dropped. The result is a copy, so the input does not
// need to be 4 byte aligned.
func BytesToUint32(data []byte) []uint32 {
	words := make([]uint32, len(data)/4)
	for i := range words {
		words[i] = binary.NativeEndian.Uint32(data[i*4:])
	}
	return words
}
