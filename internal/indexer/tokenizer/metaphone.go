package tokenizer

import "strings"

// Metaphone encodes word by its consonant sounds using Lawrence Philips'
// original rule set. Letters outside A-Z are ignored, so the code is empty
// for words with no Latin letters.
func Metaphone(word string) string {
	w := make([]byte, 0, len(word))
	for _, r := range strings.ToUpper(word) {
		if r >= 'A' && r <= 'Z' {
			w = append(w, byte(r))
		}
	}
	if len(w) == 0 {
		return ""
	}

	switch {
	case hasPrefix(w, "AE"), hasPrefix(w, "GN"), hasPrefix(w, "KN"), hasPrefix(w, "PN"), hasPrefix(w, "WR"):
		w = w[1:]
	case w[0] == 'X':
		w[0] = 'S'
	case hasPrefix(w, "WH"):
		w = append([]byte{'W'}, w[2:]...)
	}

	at := func(i int) byte {
		if i < 0 || i >= len(w) {
			return 0
		}
		return w[i]
	}
	last := len(w) - 1

	var out strings.Builder
	for i := 0; i < len(w); i++ {
		c := w[i]
		if c == at(i-1) && c != 'C' {
			continue
		}
		switch c {
		case 'A', 'E', 'I', 'O', 'U':
			if i == 0 {
				out.WriteByte(c)
			}
		case 'B':
			if !(i == last && at(i-1) == 'M') {
				out.WriteByte('B')
			}
		case 'C':
			switch {
			case at(i+1) == 'I' && at(i+2) == 'A':
				out.WriteByte('X')
			case at(i+1) == 'H':
				if at(i-1) == 'S' {
					out.WriteByte('K')
				} else {
					out.WriteByte('X')
				}
			case isFrontVowel(at(i + 1)):
				if at(i-1) != 'S' {
					out.WriteByte('S')
				}
			default:
				out.WriteByte('K')
			}
		case 'D':
			if at(i+1) == 'G' && isFrontVowel(at(i+2)) {
				out.WriteByte('J')
			} else {
				out.WriteByte('T')
			}
		case 'G':
			switch {
			case at(i+1) == 'H' && i+2 <= last && !isVowel(at(i+2)):
			case at(i+1) == 'N' && (i+1 == last || (i+3 == last && at(i+2) == 'E' && at(i+3) == 'D')):
			case isFrontVowel(at(i+1)) && at(i-1) != 'G':
				out.WriteByte('J')
			default:
				out.WriteByte('K')
			}
		case 'H':
			if isVowel(at(i+1)) && !strings.ContainsRune("CSPTG", rune(at(i-1))) {
				out.WriteByte('H')
			}
		case 'K':
			if at(i-1) != 'C' {
				out.WriteByte('K')
			}
		case 'P':
			if at(i+1) == 'H' {
				out.WriteByte('F')
			} else {
				out.WriteByte('P')
			}
		case 'Q':
			out.WriteByte('K')
		case 'S':
			if at(i+1) == 'H' || (at(i+1) == 'I' && (at(i+2) == 'O' || at(i+2) == 'A')) {
				out.WriteByte('X')
			} else {
				out.WriteByte('S')
			}
		case 'T':
			switch {
			case at(i+1) == 'I' && (at(i+2) == 'O' || at(i+2) == 'A'):
				out.WriteByte('X')
			case at(i+1) == 'H':
				out.WriteByte('0')
			case at(i+1) == 'C' && at(i+2) == 'H':
			default:
				out.WriteByte('T')
			}
		case 'V':
			out.WriteByte('F')
		case 'W', 'Y':
			if isVowel(at(i + 1)) {
				out.WriteByte(c)
			}
		case 'X':
			out.WriteString("KS")
		case 'Z':
			out.WriteByte('S')
		default:
			out.WriteByte(c)
		}
	}
	return out.String()
}

func hasPrefix(w []byte, prefix string) bool {
	return len(w) >= len(prefix) && string(w[:len(prefix)]) == prefix
}

func isVowel(c byte) bool {
	switch c {
	case 'A', 'E', 'I', 'O', 'U':
		return true
	}
	return false
}

func isFrontVowel(c byte) bool {
	return c == 'E' || c == 'I' || c == 'Y'
}
