package blockio

import "math"

// These small conversions exist only so Endpoint's float/double accessors
// can reuse the integer read/write paths (and their bounds checks) instead
// of duplicating them.

func float32BitsToInt32(v float32) int32 { return int32(math.Float32bits(v)) }
func int32BitsToFloat32(v int32) float32 { return math.Float32frombits(uint32(v)) }

func float64BitsToInt64(v float64) int64 { return int64(math.Float64bits(v)) }
func int64BitsToFloat64(v int64) float64 { return math.Float64frombits(uint64(v)) }
