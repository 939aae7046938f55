package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/hbollon/go-edlib"
)

// suggestionThreshold is the minimum Jaro-Winkler similarity for a suggestion
const suggestionThreshold = 0.7

// suggest returns the candidates closest to name, best first
func suggest(name string, candidates []string) []string {
	type scored struct {
		name  string
		score float32
	}
	var matches []scored
	for _, c := range candidates {
		score, err := edlib.StringsSimilarity(strings.ToLower(name), strings.ToLower(c), edlib.JaroWinkler)
		if err != nil || score < suggestionThreshold {
			continue
		}
		matches = append(matches, scored{name: c, score: score})
	}
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].score > matches[j].score })

	out := make([]string, 0, min(3, len(matches)))
	for _, m := range matches {
		if len(out) == 3 {
			break
		}
		out = append(out, m.name)
	}
	return out
}

func unknownTagError(name string, known []string) error {
	if s := suggest(name, known); len(s) > 0 {
		return fmt.Errorf("unknown tag %q (did you mean %s?)", name, strings.Join(s, ", "))
	}
	if len(known) == 0 {
		return fmt.Errorf("unknown tag %q: no tags configured", name)
	}
	return fmt.Errorf("unknown tag %q (known tags: %s)", name, strings.Join(known, ", "))
}
