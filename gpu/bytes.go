package gpu

import "unsafe"

// IndexElement is the set of Go types that map onto an IndexType.
type IndexElement interface {
	~uint8 | ~uint16 | ~uint32
}

// FloatBytes views v as raw bytes without copying.
func FloatBytes(v []float32) []byte {
	if len(v) == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(&v[0])), len(v)*4)
}

// IndexBytes views idx as raw bytes without copying. A nil slice stays nil so
// callers can still tell "no index data" apart from "empty index data".
func IndexBytes[T IndexElement](idx []T) []byte {
	if idx == nil {
		return nil
	}
	if len(idx) == 0 {
		return []byte{}
	}
	var zero T
	return unsafe.Slice((*byte)(unsafe.Pointer(&idx[0])), len(idx)*int(unsafe.Sizeof(zero)))
}

// IndexTypeOf returns the index tag matching T.
func IndexTypeOf[T IndexElement]() IndexType {
	var zero T
	switch unsafe.Sizeof(zero) {
	case 1:
		return IndexUnsignedByte
	case 2:
		return IndexUnsignedShort
	default:
		return IndexUnsignedInt
	}
}
