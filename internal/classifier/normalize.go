package classifier

import "strings"

// normalized carries both the original text (quoted names keep their
// casing) and the lowercased matching form with collapsed whitespace.
type normalized struct {
	Original string
	Lower    string
	Words    []string
}

// normalize trims, collapses runs of whitespace and lowercases a copy for
// matching. Punctuation that commonly glues onto words is softened so
// keyword matching sees clean word boundaries.
func normalize(text string) normalized {
	trimmed := strings.TrimSpace(text)
	fields := strings.Fields(trimmed)
	collapsed := strings.Join(fields, " ")

	lower := strings.ToLower(collapsed)
	replacer := strings.NewReplacer("?", " ", "!", " ", ".", " ", ",", " ", ";", " ; ")
	lowerClean := strings.Join(strings.Fields(replacer.Replace(lower)), " ")

	return normalized{
		Original: collapsed,
		Lower:    lowerClean,
		Words:    strings.Fields(lowerClean),
	}
}

// containsWord reports whether needle occurs in haystack on word
// boundaries. Multi-word needles match as a phrase.
func containsWord(haystack, needle string) bool {
	idx := 0
	for {
		i := strings.Index(haystack[idx:], needle)
		if i < 0 {
			return false
		}
		start := idx + i
		end := start + len(needle)
		leftOK := start == 0 || haystack[start-1] == ' '
		rightOK := end == len(haystack) || haystack[end] == ' '
		if leftOK && rightOK {
			return true
		}
		idx = start + 1
		if idx >= len(haystack) {
			return false
		}
	}
}

// startsWithWord reports whether the text begins with the given word/phrase
func startsWithWord(haystack, needle string) bool {
	if !strings.HasPrefix(haystack, needle) {
		return false
	}
	return len(haystack) == len(needle) || haystack[len(needle)] == ' '
}
