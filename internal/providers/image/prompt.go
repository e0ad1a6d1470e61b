package image

import (
	"fmt"
	"strings"
)

// BuildScenePrompt appends the identity instruction to a scene prompt: the
// people in the picture must be the ones in the attached photos, adapted to
// the story universe.
func BuildScenePrompt(prompt, names, universe string, references int) string {
	var lines []string
	if p := strings.TrimSpace(prompt); p != "" {
		lines = append(lines, p)
	} else {
		lines = append(lines, "Illustrate a key scene of the story.")
	}

	instruction := "IMPORTANT: The main characters in this image must be exactly the same people"
	if references > 0 {
		instruction += " who appear in the attached photos"
	}
	if n := strings.TrimSpace(names); n != "" {
		instruction += fmt.Sprintf(" (%s)", n)
	}
	instruction += ". Keep their facial features."
	if u := strings.TrimSpace(universe); u != "" {
		instruction += fmt.Sprintf(" Universe: %s.", u)
	}
	lines = append(lines, "", instruction)
	return strings.Join(lines, "\n")
}
