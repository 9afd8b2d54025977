package mathx

// MapU16 maps x in [inMin,inMax] linearly onto [outMin,outMax] using 32-bit
// intermediates. Inputs outside the range saturate at the output bounds.
func MapU16(x, inMin, inMax, outMin, outMax uint16) uint16 {
	switch {
	case inMax == inMin:
		return outMin
	case x <= inMin:
		return outMin
	case x >= inMax:
		return outMax
	}
	span := int64(outMax) - int64(outMin)
	num := int64(x-inMin) * span
	return uint16(int64(outMin) + num/int64(inMax-inMin))
}
