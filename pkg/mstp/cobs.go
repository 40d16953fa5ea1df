package mstp

// MaxEncodedLength is the largest COBS-encoded region an extended frame
// may carry.
const MaxEncodedLength = MaxDataLength + MaxDataLength/254 + 1

// COBSMaxLength returns the worst case encoded size of n bytes.
func COBSMaxLength(n int) int {
	return n + n/254 + 1
}

// COBSStuff appends the zero-free encoding of src to dst.
func COBSStuff(dst, src []byte) []byte {
	codeAt := len(dst)
	dst = append(dst, 0)
	code := byte(1)
	for _, b := range src {
		if b != 0 {
			dst = append(dst, b)
			code++
			if code != 0xff {
				continue
			}
		}
		dst[codeAt] = code
		codeAt, code = len(dst), 1
		dst = append(dst, 0)
	}
	dst[codeAt] = code
	return dst
}

// COBSUnstuff appends the decoding of src to dst.
// ErrBadEncoding is returned on a zero octet or a truncated block.
func COBSUnstuff(dst, src []byte) ([]byte, error) {
	for i := 0; i < len(src); {
		code := src[i]
		if code == 0 {
			return dst, ErrBadEncoding
		}
		i++
		end := i + int(code) - 1
		if end > len(src) {
			return dst, ErrBadEncoding
		}
		for ; i < end; i++ {
			if src[i] == 0 {
				return dst, ErrBadEncoding
			}
			dst = append(dst, src[i])
		}
		if code != 0xff && i < len(src) {
			dst = append(dst, 0)
		}
	}
	return dst, nil
}
