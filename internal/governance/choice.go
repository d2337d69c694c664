package governance

import "strings"

// Synonym classes, checked in this order after exact matching.
var (
	affirmativeChoices = []string{"YES", "FOR", "YAE", "YAY", "APPROVE", "SUPPORT"}
	negativeChoices    = []string{"NO", "AGAINST", "NAY", "REJECT", "OPPOSE"}
	abstainChoices     = []string{"ABSTAIN", "PASS"}

	synonymClasses = [][]string{affirmativeChoices, negativeChoices, abstainChoices}
)

// Resolve maps a requested vote onto an index into choices. An exact
// case-insensitive match always wins; otherwise a request belonging to a
// synonym class resolves to the first choice in the same class. ok is false
// when nothing matches; callers must reject the vote, never pick a default.
func Resolve(choices []string, requested string) (index int, ok bool) {
	want := normalizeChoice(requested)
	if want == "" {
		return -1, false
	}

	for i, c := range choices {
		if normalizeChoice(c) == want {
			return i, true
		}
	}

	for _, class := range synonymClasses {
		if !inClass(class, want) {
			continue
		}
		for i, c := range choices {
			if inClass(class, normalizeChoice(c)) {
				return i, true
			}
		}
		return -1, false
	}
	return -1, false
}

func normalizeChoice(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

func inClass(class []string, s string) bool {
	for _, c := range class {
		if c == s {
			return true
		}
	}
	return false
}
