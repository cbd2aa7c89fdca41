// Package tone turns a chatbot's free-text tone descriptor ("amigable y
// breve", "formal", ...) into a fixed set of tags and the style guide that
// is injected into its system prompt.
package tone

import (
	"sort"
	"strings"
)

// ---- Whitelist ----

// AllTags is the hard-coded set of tone tags a descriptor can map to.
var AllTags = map[string]bool{
	// Style
	"concise":   true,
	"detailed":  true,
	"formal":    true,
	"casual":    true,
	"no_emojis": true,
	"emojis_ok": true,
	// Stance
	"warm_supportive":      true,
	"neutral_professional": true,
	"sales_oriented":       true,
	"playful":              true,
}

// mutuallyExclusivePairs defines tags where at most one may be active.
var mutuallyExclusivePairs = [][2]string{
	{"concise", "detailed"},
	{"formal", "casual"},
	{"no_emojis", "emojis_ok"},
	{"neutral_professional", "playful"},
}

// descriptorTags maps lower-case words found in a descriptor to tags.
var descriptorTags = map[string][]string{
	"amigable":    {"casual", "warm_supportive"},
	"amable":      {"warm_supportive"},
	"cercano":     {"casual", "warm_supportive"},
	"cálido":      {"warm_supportive"},
	"calido":      {"warm_supportive"},
	"empático":    {"warm_supportive"},
	"empatico":    {"warm_supportive"},
	"formal":      {"formal", "neutral_professional"},
	"profesional": {"formal", "neutral_professional"},
	"serio":       {"formal", "no_emojis"},
	"informal":    {"casual"},
	"casual":      {"casual"},
	"divertido":   {"casual", "playful", "emojis_ok"},
	"alegre":      {"playful", "emojis_ok"},
	"juvenil":     {"casual", "playful"},
	"breve":       {"concise"},
	"conciso":     {"concise"},
	"directo":     {"concise"},
	"detallado":   {"detailed"},
	"explicativo": {"detailed"},
	"vendedor":    {"sales_oriented"},
	"persuasivo":  {"sales_oriented"},
	"comercial":   {"sales_oriented"},
	"emoji":       {"emojis_ok"},
	"emojis":      {"emojis_ok"},
	"sin emojis":  {"no_emojis"},
}

// ParseDescriptor extracts tags from a descriptor. When two mutually
// exclusive tags are implied, the one whose keyword appears first wins.
// The result is sorted.
func ParseDescriptor(descriptor string) []string {
	text := strings.ToLower(strings.TrimSpace(descriptor))
	if text == "" {
		return nil
	}

	// first occurrence offset per tag
	firstAt := map[string]int{}
	for word, tags := range descriptorTags {
		idx := strings.Index(text, word)
		if idx < 0 {
			continue
		}
		// "emojis" inside "sin emojis" must not enable emojis_ok
		if (word == "emoji" || word == "emojis") && strings.Contains(text, "sin emoji") {
			continue
		}
		for _, t := range tags {
			if prev, ok := firstAt[t]; !ok || idx < prev {
				firstAt[t] = idx
			}
		}
	}

	for _, pair := range mutuallyExclusivePairs {
		a, b := pair[0], pair[1]
		ia, okA := firstAt[a]
		ib, okB := firstAt[b]
		if okA && okB {
			if ia <= ib {
				delete(firstAt, b)
			} else {
				delete(firstAt, a)
			}
		}
	}

	tags := make([]string, 0, len(firstAt))
	for t := range firstAt {
		if AllTags[t] {
			tags = append(tags, t)
		}
	}
	sort.Strings(tags)
	return tags
}

// BuildToneGuide produces a compact instruction snippet for injection into
// the system prompt. It returns an empty string when there are no tags.
func BuildToneGuide(tags []string) string {
	if len(tags) == 0 {
		return ""
	}

	set := make(map[string]bool, len(tags))
	for _, t := range tags {
		set[t] = true
	}

	var b strings.Builder
	b.WriteString("Estilo de respuesta:\n")

	if set["concise"] {
		b.WriteString("- Sé breve: frases cortas, sin relleno.\n")
	}
	if set["detailed"] {
		b.WriteString("- Explica con algo más de detalle, sin extenderte de más.\n")
	}
	if set["formal"] {
		b.WriteString("- Usa un registro formal y trata al cliente de usted.\n")
	}
	if set["casual"] {
		b.WriteString("- Usa un lenguaje cercano y coloquial.\n")
	}
	if set["no_emojis"] {
		b.WriteString("- No uses emojis.\n")
	} else if set["emojis_ok"] {
		b.WriteString("- Puedes usar emojis cuando encajen.\n")
	}

	hasStance := false
	if set["warm_supportive"] {
		b.WriteString("- Muestra calidez y empatía con el cliente.\n")
		hasStance = true
	}
	if set["neutral_professional"] {
		b.WriteString("- Mantén una postura neutral y profesional.\n")
		hasStance = true
	}
	if set["playful"] {
		b.WriteString("- Puedes ser divertido y desenfadado.\n")
		hasStance = true
	}
	if set["sales_oriented"] {
		b.WriteString("- Orienta la conversación hacia la compra y cierra con una invitación a actuar.\n")
	}
	if !hasStance {
		b.WriteString("- Mantén una postura amable y profesional.\n")
	}

	b.WriteString("- Nunca respondas con hostilidad, sarcasmo ni insultos.\n")
	return b.String()
}

// Guide returns the style guide for a descriptor. Descriptors with no known
// keyword are passed through verbatim.
func Guide(descriptor string) string {
	descriptor = strings.TrimSpace(descriptor)
	if descriptor == "" {
		return ""
	}
	if tags := ParseDescriptor(descriptor); len(tags) > 0 {
		return BuildToneGuide(tags)
	}
	return "Estilo de respuesta:\n- Usa un tono " + descriptor + ".\n"
}
