package autolinks

import "strings"

// NatCaseCompare compares a and b in case-insensitive natural order, so
// "item9" sorts before "item10". It returns -1, 0 or 1.
func NatCaseCompare(a, b string) int {
	a, b = strings.ToLower(a), strings.ToLower(b)
	i, j := 0, 0
	for {
		for i < len(a) && a[i] == ' ' {
			i++
		}
		for j < len(b) && b[j] == ' ' {
			j++
		}
		if i >= len(a) || j >= len(b) {
			break
		}
		ca, cb := a[i], b[j]
		if isDigit(ca) && isDigit(cb) {
			var c int
			if c, i, j = compareNumbers(a, i, b, j); c != 0 {
				return c
			}
			continue
		}
		if ca != cb {
			if ca < cb {
				return -1
			}
			return 1
		}
		i++
		j++
	}
	switch {
	case i >= len(a) && j >= len(b):
		return 0
	case i >= len(a):
		return -1
	default:
		return 1
	}
}

// compareNumbers compares the digit runs starting at a[i] and b[j], ignoring
// leading zeros, and returns the positions after them.
func compareNumbers(a string, i int, b string, j int) (int, int, int) {
	for i < len(a)-1 && a[i] == '0' && isDigit(a[i+1]) {
		i++
	}
	for j < len(b)-1 && b[j] == '0' && isDigit(b[j+1]) {
		j++
	}
	si, sj := i, j
	for i < len(a) && isDigit(a[i]) {
		i++
	}
	for j < len(b) && isDigit(b[j]) {
		j++
	}
	na, nb := a[si:i], b[sj:j]
	switch {
	case len(na) != len(nb):
		if len(na) < len(nb) {
			return -1, i, j
		}
		return 1, i, j
	case na < nb:
		return -1, i, j
	case na > nb:
		return 1, i, j
	}
	return 0, i, j
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }
