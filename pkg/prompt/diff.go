package prompt

import (
	"fmt"
	"strings"
)

// LineDiff compares a and b line by line along their longest common
// subsequence. Unchanged lines are prefixed with a space. The result is empty
// when a equals b.
func LineDiff(from, to, a, b string) string {
	if a == b {
		return ""
	}
	al := strings.Split(a, "\n")
	bl := strings.Split(b, "\n")
	// lcs[i][j] is the common subsequence length of al[i:] and bl[j:].
	lcs := make([][]int, len(al)+1)
	for i := range lcs {
		lcs[i] = make([]int, len(bl)+1)
	}
	for i := len(al) - 1; i >= 0; i-- {
		for j := len(bl) - 1; j >= 0; j-- {
			if al[i] == bl[j] {
				lcs[i][j] = lcs[i+1][j+1] + 1
			} else {
				lcs[i][j] = max(lcs[i+1][j], lcs[i][j+1])
			}
		}
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "--- %s\n+++ %s\n", from, to)
	i, j := 0, 0
	for i < len(al) && j < len(bl) {
		switch {
		case al[i] == bl[j]:
			sb.WriteString(" " + al[i] + "\n")
			i++
			j++
		case lcs[i+1][j] >= lcs[i][j+1]:
			sb.WriteString("-" + al[i] + "\n")
			i++
		default:
			sb.WriteString("+" + bl[j] + "\n")
			j++
		}
	}
	for ; i < len(al); i++ {
		sb.WriteString("-" + al[i] + "\n")
	}
	for ; j < len(bl); j++ {
		sb.WriteString("+" + bl[j] + "\n")
	}
	return sb.String()
}

// Diff compares two versions of name; version 0 is the latest. It is empty
// when either is missing.
func (s *Store) Diff(name string, v1, v2 int) string {
	p1, ok1 := s.Get(name, v1)
	p2, ok2 := s.Get(name, v2)
	if !ok1 || !ok2 {
		return ""
	}
	return LineDiff(fmt.Sprintf("%s@v%d", name, p1.Version), fmt.Sprintf("%s@v%d", name, p2.Version), p1.Body, p2.Body)
}

// Overrides maps each overridden template to the diff from its built-in
// version to the one in use.
func (s *Store) Overrides() map[string]string {
	out := map[string]string{}
	for _, name := range s.Names() {
		if d := s.Diff(name, 1, 0); d != "" {
			out[name] = d
		}
	}
	return out
}
