package sourcemap

import (
	"errors"
	"strings"
)

const base64Chars = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789+/"

const (
	vlqBaseShift       = 5
	vlqBase            = 1 << vlqBaseShift
	vlqBaseMask        = vlqBase - 1
	vlqContinuationBit = vlqBase
)

// ErrInvalidVLQ is returned for malformed mapping segments.
var ErrInvalidVLQ = errors.New("invalid VLQ segment")

var base64Index = func() [256]int8 {
	var idx [256]int8
	for i := range idx {
		idx[i] = -1
	}
	for i := 0; i < len(base64Chars); i++ {
		idx[base64Chars[i]] = int8(i)
	}
	return idx
}()

func encodeVLQ(b *strings.Builder, value int) {
	vlq := value << 1
	if value < 0 {
		vlq = (-value << 1) | 1
	}
	for {
		digit := vlq & vlqBaseMask
		vlq >>= vlqBaseShift
		if vlq > 0 {
			digit |= vlqContinuationBit
		}
		b.WriteByte(base64Chars[digit])
		if vlq == 0 {
			return
		}
	}
}

// decodeSegment decodes every VLQ value in one comma-delimited segment.
func decodeSegment(seg string) ([]int, error) {
	var (
		fields []int
		value  int
		shift  uint
	)
	for i := 0; i < len(seg); i++ {
		digit := base64Index[seg[i]]
		if digit < 0 {
			return nil, ErrInvalidVLQ
		}
		value += int(digit&vlqBaseMask) << shift
		if digit&vlqContinuationBit != 0 {
			shift += vlqBaseShift
			continue
		}
		negative := value&1 == 1
		value >>= 1
		if negative {
			value = -value
		}
		fields = append(fields, value)
		value, shift = 0, 0
	}
	if shift != 0 {
		return nil, ErrInvalidVLQ
	}
	return fields, nil
}
