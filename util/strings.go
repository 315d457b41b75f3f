package util

import (
	"unsafe"
)

// StringFromBytes makes a string backed by a specified []byte.
//
// There is no copying and the resulting string shares the same []byte contents.
//
// If data in the backing slice is changed, the string contents would reflect the changes (NOT normal Go string behavior).
//
// DO NOT use this in tests.
func StringFromBytes(buf []byte) string {
	// code from strings.Builder.String()
	return unsafe.String(unsafe.SliceData(buf), len(buf))
}
