// Package utils holds small string helpers shared by the CLI and the API.
package utils

import (
	"sort"
	"strings"
)

// ComputeDistance computes the Levenshtein distance between two strings.
// It is case-insensitive and counts runes.
func ComputeDistance(s1, s2 string) int {
	a := []rune(strings.ToLower(s1))
	b := []rune(strings.ToLower(s2))
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}

// FuzzyMatch reports whether the characters of source appear in target in
// order. Case-insensitive.
func FuzzyMatch(source, target string) bool {
	src := []rune(strings.ToLower(source))
	i := 0
	for _, r := range strings.ToLower(target) {
		if i < len(src) && src[i] == r {
			i++
		}
	}
	return i == len(src)
}

// Suggest returns up to limit candidates close to input: substring and
// in-order fuzzy matches first, then candidates within a third of the input
// length in edit distance. Ties keep the closer distance first.
func Suggest(input string, candidates []string, limit int) []string {
	input = strings.TrimSuffix(strings.ToLower(strings.TrimSpace(input)), ".md")
	if input == "" || limit <= 0 {
		return nil
	}
	maxDist := max(2, len([]rune(input))/3)

	type scored struct {
		name  string
		score int
	}
	var matches []scored
	for _, c := range candidates {
		stem := strings.TrimSuffix(strings.ToLower(c), ".md")
		switch {
		case stem == input:
			matches = append(matches, scored{c, 0})
		case strings.Contains(stem, input) || FuzzyMatch(input, stem):
			matches = append(matches, scored{c, 1})
		default:
			if d := ComputeDistance(input, stem); d <= maxDist {
				matches = append(matches, scored{c, 1 + d})
			}
		}
	}
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].score != matches[j].score {
			return matches[i].score < matches[j].score
		}
		return matches[i].name < matches[j].name
	})

	var out []string
	for _, m := range matches {
		if len(out) == limit {
			break
		}
		out = append(out, m.name)
	}
	return out
}
