package codec

// signature is a set of magic byte strings; '?' matches any byte.
type signature []string

func (s signature) probe(data []byte) bool {
	for _, m := range s {
		if matchMagic(data, m) {
			return true
		}
	}
	return false
}

// nearMatch reports a damaged signature: the first two bytes agree with a
// magic string but the whole does not, or data is a strict prefix of one.
func (s signature) nearMatch(data []byte) bool {
	if len(data) == 0 || s.probe(data) {
		return false
	}
	for _, m := range s {
		if len(data) < len(m) && matchMagic(data, m[:len(data)]) {
			return true
		}
		if len(m) > 2 && len(data) >= 2 && matchMagic(data, m[:2]) {
			return true
		}
	}
	return false
}

func matchMagic(data []byte, magic string) bool {
	if len(data) < len(magic) {
		return false
	}
	for i := 0; i < len(magic); i++ {
		if magic[i] != '?' && data[i] != magic[i] {
			return false
		}
	}
	return true
}
