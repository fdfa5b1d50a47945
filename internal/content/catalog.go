// Package content loads the exercise and protocol catalog from markdown.
//
// The catalog is parsed once at startup: the protocol map groups exercises
// by goal (## sections) and problem (### sections), and the interventions
// file holds the full exercise descriptions. Lookups by name fall back to
// fuzzy title matching because exercise names in the map and the
// interventions file drifted apart over time.
package content

import (
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strings"
	"unicode"
)

// MatchThreshold is the minimum title similarity for a fuzzy lookup hit.
const MatchThreshold = 0.8

// MaxExercisesPerProblem caps how many exercises one problem recommends.
const MaxExercisesPerProblem = 6

// Protocol is one named protocol from the protocol map.
type Protocol struct {
	ID        string
	Title     string
	Exercises []string
}

// section is one ## block of the interventions file.
type section struct {
	title        string
	abbreviation string
	body         string
}

// Catalog is the parsed content catalog.
type Catalog struct {
	mapLines  []string
	sections  []section
	protocols []Protocol
}

var (
	headerNumberRe = regexp.MustCompile(`^[^\w\p{Cyrillic}]*\d+[.)\]]\s*`)
	abbreviationRe = regexp.MustCompile(`\(([^)]+)\)`)
	timeSuffixRe   = regexp.MustCompile(`\s*·?\s*Время:\s*[\d\p{L}\s–-]+мин\.?`)
	whitespaceRe   = regexp.MustCompile(`\s+`)
)

// NewCatalog reads and parses the protocol map and interventions files.
func NewCatalog(mapPath, interventionsPath string) (*Catalog, error) {
	mapContent, err := os.ReadFile(mapPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read protocol map: %w", err)
	}
	interventions, err := os.ReadFile(interventionsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read interventions: %w", err)
	}
	c := NewCatalogFromContent(string(mapContent), string(interventions))
	slog.Info("Content catalog loaded", "protocols", len(c.protocols), "sections", len(c.sections))
	return c, nil
}

// NewCatalogFromContent parses catalog markdown from memory.
func NewCatalogFromContent(mapContent, interventionsContent string) *Catalog {
	c := &Catalog{mapLines: strings.Split(mapContent, "\n")}
	c.parseSections(interventionsContent)
	c.parseProtocols()
	return c
}

// parseSections splits the interventions file into ## sections.
func (c *Catalog) parseSections(content string) {
	lines := strings.Split(content, "\n")
	var current *section
	var body []string
	flush := func() {
		if current != nil {
			current.body = strings.TrimSpace(strings.Join(body, "\n"))
			c.sections = append(c.sections, *current)
		}
		current = nil
		body = nil
	}
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "##") && trimmed != "##" && !strings.HasPrefix(trimmed, "###") {
			flush()
			title := cleanHeader(trimmed)
			sec := section{title: title}
			if m := abbreviationRe.FindStringSubmatch(title); m != nil {
				sec.abbreviation = strings.TrimSpace(m[1])
			}
			current = &sec
			continue
		}
		if strings.HasPrefix(trimmed, "***") {
			flush()
			continue
		}
		if current != nil {
			if trimmed == "##" && len(body) == 0 {
				continue
			}
			body = append(body, line)
		}
	}
	flush()
}

// parseProtocols derives the protocol list from the map's ## headers and
// the exercises listed under them.
func (c *Catalog) parseProtocols() {
	var current *Protocol
	for _, line := range c.mapLines {
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(trimmed, "###"):
			// problem subsection; exercises below still belong to the protocol
		case strings.HasPrefix(trimmed, "##") && trimmed != "##":
			if current != nil {
				c.protocols = append(c.protocols, *current)
			}
			title := stripTimeSuffix(cleanHeader(trimmed))
			current = &Protocol{ID: fmt.Sprintf("p%d", len(c.protocols)), Title: title}
		case strings.HasPrefix(trimmed, "*"):
			if current != nil {
				if name := cleanBullet(trimmed); name != "" {
					current.Exercises = append(current.Exercises, name)
				}
			}
		}
	}
	if current != nil {
		c.protocols = append(c.protocols, *current)
	}
}

// Protocols returns the named protocols from the map.
func (c *Catalog) Protocols() []Protocol {
	return c.protocols
}

// ProtocolByID looks up a protocol by its id.
func (c *Catalog) ProtocolByID(id string) (Protocol, bool) {
	for _, p := range c.protocols {
		if p.ID == id {
			return p, true
		}
	}
	return Protocol{}, false
}

// ExercisesForProblem returns the exercises listed under the ### section
// whose header contains the problem's display name, capped at
// MaxExercisesPerProblem.
func (c *Catalog) ExercisesForProblem(displayName string) []string {
	start := -1
	for idx, line := range c.mapLines {
		if strings.HasPrefix(line, "###") && strings.Contains(line, displayName) {
			start = idx
			break
		}
	}
	if start < 0 {
		slog.Debug("Content catalog: problem section not found", "problem", displayName)
		return nil
	}
	var exercises []string
	for _, line := range c.mapLines[start+1:] {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "###") {
			break
		}
		if strings.HasPrefix(trimmed, "*") {
			if name := cleanBullet(trimmed); name != "" {
				exercises = append(exercises, name)
			}
		}
	}
	if len(exercises) > MaxExercisesPerProblem {
		exercises = exercises[:MaxExercisesPerProblem]
	}
	return exercises
}

// ExercisesForGoal fuzzy-matches free goal text against the protocol
// titles and returns the best protocol's exercises.
func (c *Catalog) ExercisesForGoal(goalText string) []string {
	term := strings.ToLower(strings.TrimSpace(goalText))
	if term == "" {
		return nil
	}
	best := -1
	bestScore := 0.0
	for i, p := range c.protocols {
		title := strings.ToLower(strings.TrimSpace(strings.SplitN(p.Title, "(", 2)[0]))
		if score := Similarity(term, title); score > bestScore {
			bestScore = score
			best = i
		}
	}
	if best < 0 || bestScore < MatchThreshold {
		slog.Debug("Content catalog: no protocol match for goal", "best_score", bestScore)
		return nil
	}
	exercises := c.protocols[best].Exercises
	if len(exercises) > MaxExercisesPerProblem {
		exercises = exercises[:MaxExercisesPerProblem]
	}
	return exercises
}

// ExerciseDescription finds the full description for an exercise name,
// exact title match first, fuzzy second.
func (c *Catalog) ExerciseDescription(name string) (string, bool) {
	sec, ok := c.findSection(name)
	if !ok {
		return "", false
	}
	return sec.body, true
}

// ExerciseGoal extracts the «Цель:» line from an exercise description with
// any time annotation stripped.
func (c *Catalog) ExerciseGoal(name string) (string, bool) {
	sec, ok := c.findSection(name)
	if !ok {
		return "", false
	}
	for _, line := range strings.Split(sec.body, "\n") {
		if idx := strings.Index(line, "Цель:"); idx >= 0 {
			goal := strings.TrimSpace(line[idx+len("Цель:"):])
			goal = strings.TrimSpace(stripTimeSuffix(goal))
			return goal, true
		}
	}
	return "", false
}

// findSection locates the interventions section best matching a name.
func (c *Catalog) findSection(name string) (section, bool) {
	term := strings.ToLower(strings.TrimRight(strings.TrimSpace(name), ".!?,;:"))
	best := -1
	bestScore := 0.0
	for i, sec := range c.sections {
		mainPart := strings.ToLower(strings.TrimSpace(strings.SplitN(sec.title, "(", 2)[0]))
		score := Similarity(term, mainPart)
		if sec.abbreviation != "" {
			if s := Similarity(term, strings.ToLower(sec.abbreviation)); s > score {
				score = s
			}
		}
		if score > bestScore {
			bestScore = score
			best = i
			if score == 1.0 {
				break
			}
		}
	}
	if best < 0 || bestScore < MatchThreshold {
		slog.Debug("Content catalog: no section match", "name", name, "best_score", bestScore)
		return section{}, false
	}
	return c.sections[best], true
}

// cleanHeader strips the ## marker and any leading numbering from a header.
func cleanHeader(line string) string {
	title := strings.TrimSpace(strings.TrimLeft(line, "#"))
	return strings.TrimSpace(headerNumberRe.ReplaceAllString(title, ""))
}

// cleanBullet strips the * marker and collapses whitespace; bullets without
// letters (separators) are dropped.
func cleanBullet(line string) string {
	text := strings.TrimSpace(strings.TrimLeft(line, "*"))
	text = whitespaceRe.ReplaceAllString(text, " ")
	for _, r := range text {
		if unicode.IsLetter(r) {
			return text
		}
	}
	return ""
}

// stripTimeSuffix removes "Время: X–Y мин." annotations.
func stripTimeSuffix(s string) string {
	return strings.TrimSpace(timeSuffixRe.ReplaceAllString(s, ""))
}

// Similarity computes a [0,1] title similarity as twice the longest common
// subsequence length over the total rune count of both strings.
func Similarity(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 && len(rb) == 0 {
		return 1.0
	}
	if len(ra) == 0 || len(rb) == 0 {
		return 0.0
	}
	prev := make([]int, len(rb)+1)
	cur := make([]int, len(rb)+1)
	for i := 1; i <= len(ra); i++ {
		for j := 1; j <= len(rb); j++ {
			if ra[i-1] == rb[j-1] {
				cur[j] = prev[j-1] + 1
			} else if prev[j] >= cur[j-1] {
				cur[j] = prev[j]
			} else {
				cur[j] = cur[j-1]
			}
		}
		prev, cur = cur, prev
	}
	lcs := prev[len(rb)]
	return 2.0 * float64(lcs) / float64(len(ra)+len(rb))
}
