package cache

import "errors"

var errBadPattern = errors.New("syntax error in pattern")

// validatePattern rejects patterns with an unterminated class or a trailing escape.
func validatePattern(pattern string) error {
	for i := 0; i < len(pattern); i++ {
		switch pattern[i] {
		case '\\':
			if i+1 == len(pattern) {
				return errBadPattern
			}
			i++
		case '[':
			j := i + 1
			if j < len(pattern) && pattern[j] == '^' {
				j++
			}
			closed := false
			for ; j < len(pattern); j++ {
				if pattern[j] == '\\' {
					j++
					continue
				}
				if pattern[j] == ']' {
					closed = true
					break
				}
			}
			if !closed {
				return errBadPattern
			}
			i = j
		}
	}
	return nil
}

// matchGlob matches key against pattern with Redis MATCH semantics: '*' and '?' span
// any byte, '/' included. The pattern must have passed validatePattern.
func matchGlob(pattern, key string) bool {
	for len(pattern) > 0 {
		switch pattern[0] {
		case '*':
			for len(pattern) > 1 && pattern[1] == '*' {
				pattern = pattern[1:]
			}
			if len(pattern) == 1 {
				return true
			}
			for i := 0; i <= len(key); i++ {
				if matchGlob(pattern[1:], key[i:]) {
					return true
				}
			}
			return false
		case '?':
			if key == "" {
				return false
			}
		case '[':
			if key == "" {
				return false
			}
			n, ok := matchClass(pattern, key[0])
			if !ok {
				return false
			}
			pattern, key = pattern[n:], key[1:]
			continue
		case '\\':
			pattern = pattern[1:]
			fallthrough
		default:
			if key == "" || pattern[0] != key[0] {
				return false
			}
		}
		pattern, key = pattern[1:], key[1:]
	}
	return key == ""
}

// matchClass matches c against the class opening pattern and returns the class width.
func matchClass(pattern string, c byte) (int, bool) {
	i := 1
	negate := i < len(pattern) && pattern[i] == '^'
	if negate {
		i++
	}
	matched := false
	for i < len(pattern) && pattern[i] != ']' {
		switch {
		case pattern[i] == '\\' && i+1 < len(pattern):
			matched = matched || pattern[i+1] == c
			i += 2
		case i+2 < len(pattern) && pattern[i+1] == '-' && pattern[i+2] != ']':
			lo, hi := pattern[i], pattern[i+2]
			if lo > hi {
				lo, hi = hi, lo
			}
			matched = matched || (c >= lo && c <= hi)
			i += 3
		default:
			matched = matched || pattern[i] == c
			i++
		}
	}
	return i + 1, matched != negate
}
