package allocator

import "math"

// fillByte is written to every byte of a touched block.
const fillByte byte = 0x5a

// ShouldTouch reports whether the block that brought the allocated total to
// allocatedMB must be touched in full. A block is touched only when the floor
// of the target touched total has moved past what is already touched, so the
// loop never touches more than ratio allows.
func ShouldTouch(allocatedMB, touchedMB int, ratio float64) bool {
	return math.Floor(float64(allocatedMB)*ratio) > float64(touchedMB)
}

// touch writes fillByte to every byte of block, forcing the kernel to back it.
func touch(block []byte) {
	for i := range block {
		block[i] = fillByte
	}
}
