package firmata

import (
	"errors"
	"fmt"
)

var ErrValueRange = errors.New("firmata: value outside 14-bit range")

// Max14 is the largest value a 7-bit byte pair can carry
const Max14 = 1<<14 - 1

// Split14 splits v into low and high 7-bit bytes
func Split14(v int) (lsb, msb byte) {
	return byte(v & DataMask), byte((v >> 7) & DataMask)
}

// Join14 reassembles a 7-bit byte pair
func Join14(lsb, msb byte) int {
	return int(lsb&DataMask) | int(msb&DataMask)<<7
}

// Encode7 encodes every value as a low/high 7-bit pair
func Encode7(values ...int) ([]byte, error) {
	out := make([]byte, 0, len(values)*2)
	for _, v := range values {
		if v < 0 || v > Max14 {
			return nil, fmt.Errorf("%w: %d", ErrValueRange, v)
		}
		lsb, msb := Split14(v)
		out = append(out, lsb, msb)
	}
	return out, nil
}

// Decode7 reassembles consecutive byte pairs; a dangling odd byte is ignored
func Decode7(data []byte) []int {
	out := make([]int, 0, len(data)/2)
	for i := 0; i+1 < len(data); i += 2 {
		out = append(out, Join14(data[i], data[i+1]))
	}
	return out
}

// EncodeString packs text as 7-bit pairs, as used by string and firmware messages
func EncodeString(s string) []byte {
	out := make([]byte, 0, len(s)*2)
	for i := 0; i < len(s); i++ {
		lsb, msb := Split14(int(s[i]))
		out = append(out, lsb, msb)
	}
	return out
}

// DecodeString is the inverse of EncodeString
func DecodeString(data []byte) string {
	buf := make([]byte, 0, len(data)/2)
	for _, v := range Decode7(data) {
		buf = append(buf, byte(v))
	}
	return string(buf)
}
