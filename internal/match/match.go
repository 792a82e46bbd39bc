// Package match filters news titles against the frequency-words rules
// file.
//
// The file is blank-line-separated groups of words, with optional
// [WORD_GROUPS] / [GLOBAL_FILTER] section markers and per-line syntax:
//
//	word    plain word: the group matches when any plain word appears
//	+word   required: every required word must appear for the group
//	!word   filter: titles containing it never match
//	@N      cap the group at N displayed items
package match

import (
	"os"
	"strconv"
	"strings"
)

// Rules is the parsed frequency-words configuration.
type Rules struct {
	Groups []Group
	// FilterWords exclude a title from every group.
	FilterWords []string
	// GlobalFilters exclude a title before any group is consulted.
	GlobalFilters []string
}

// Group is one word group from the rules file.
type Group struct {
	// Key identifies the group in reports, built from its words.
	Key      string
	Required []string
	Normal   []string
	// MaxCount caps displayed items; 0 means unlimited.
	MaxCount int
}

// LoadRules reads and parses a rules file.
func LoadRules(path string) (Rules, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Rules{}, err
	}
	return ParseRules(string(b)), nil
}

// ParseRules parses rules file content. Content never fails to parse:
// unrecognized syntax inside a group is kept as a plain word, invalid
// @N markers are ignored.
func ParseRules(content string) Rules {
	var rules Rules

	section := "WORD_GROUPS"
	for _, block := range strings.Split(content, "\n\n") {
		lines := nonEmptyLines(block)
		if len(lines) == 0 {
			continue
		}

		if name, ok := sectionMarker(lines[0]); ok {
			section = name
			lines = lines[1:]
		}

		if section == "GLOBAL_FILTER" {
			for _, line := range lines {
				// Special syntax has no meaning here; skip it rather
				// than filter on a literal "+foo".
				if strings.HasPrefix(line, "!") || strings.HasPrefix(line, "+") || strings.HasPrefix(line, "@") {
					continue
				}
				rules.GlobalFilters = append(rules.GlobalFilters, line)
			}
			continue
		}

		var g Group
		for _, word := range lines {
			switch {
			case strings.HasPrefix(word, "@"):
				if n, err := strconv.Atoi(word[1:]); err == nil && n > 0 {
					g.MaxCount = n
				}
			case strings.HasPrefix(word, "!"):
				rules.FilterWords = append(rules.FilterWords, word[1:])
			case strings.HasPrefix(word, "+"):
				g.Required = append(g.Required, word[1:])
			default:
				g.Normal = append(g.Normal, word)
			}
		}
		if len(g.Required) == 0 && len(g.Normal) == 0 {
			continue
		}
		if len(g.Normal) > 0 {
			g.Key = strings.Join(g.Normal, " ")
		} else {
			g.Key = strings.Join(g.Required, " ")
		}
		rules.Groups = append(rules.Groups, g)
	}
	return rules
}

// Matches reports whether the title passes the rules. With no groups
// configured every title matches (show-everything mode), subject to the
// global filters.
func (r Rules) Matches(title string) bool {
	_, ok := r.GroupFor(title)
	return ok
}

// GroupFor returns the index of the first group matching title. With no
// groups configured it returns (-1, true) for any unfiltered title.
func (r Rules) GroupFor(title string) (int, bool) {
	title = strings.TrimSpace(title)
	if title == "" {
		return -1, false
	}
	lower := strings.ToLower(title)

	for _, w := range r.GlobalFilters {
		if strings.Contains(lower, strings.ToLower(w)) {
			return -1, false
		}
	}

	if len(r.Groups) == 0 {
		return -1, true
	}

	for _, w := range r.FilterWords {
		if strings.Contains(lower, strings.ToLower(w)) {
			return -1, false
		}
	}

	for i, g := range r.Groups {
		if g.matches(lower) {
			return i, true
		}
	}
	return -1, false
}

func (g Group) matches(lowerTitle string) bool {
	for _, w := range g.Required {
		if !strings.Contains(lowerTitle, strings.ToLower(w)) {
			return false
		}
	}
	if len(g.Normal) == 0 {
		return len(g.Required) > 0
	}
	for _, w := range g.Normal {
		if strings.Contains(lowerTitle, strings.ToLower(w)) {
			return true
		}
	}
	return false
}

func nonEmptyLines(block string) []string {
	var out []string
	for _, line := range strings.Split(block, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}

func sectionMarker(line string) (string, bool) {
	if !strings.HasPrefix(line, "[") || !strings.HasSuffix(line, "]") {
		return "", false
	}
	name := strings.ToUpper(line[1 : len(line)-1])
	if name == "GLOBAL_FILTER" || name == "WORD_GROUPS" {
		return name, true
	}
	return "", false
}
