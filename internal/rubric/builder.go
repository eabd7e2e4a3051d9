package rubric

import (
	"fmt"
	"sort"
	"strings"

	"github.com/PartnerPiloting/leadscorer/internal/core"
)

// Build assembles a single system-prompt string from r.PromptComponents,
// injecting the rubric block (positive then negative attribute sections)
// at the component whose id is core.ScoringHeaderID. Components other
// than the sentinel are emitted verbatim, in order. Inactive attributes
// are skipped; attributes with an unrecognised category are logged and
// listed under positives as a safety default. The final string is
// trimmed.
func Build(r core.Rubric, logger core.Logger) string {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	var b strings.Builder
	for _, pc := range r.PromptComponents {
		if pc.ComponentID == core.ScoringHeaderID {
			b.WriteString(pc.Text)
			b.WriteString("\n")
			b.WriteString(buildRubricBlock(r.AttributesByID, logger))
			continue
		}
		b.WriteString(pc.Text)
		b.WriteString("\n")
	}
	return strings.TrimSpace(b.String())
}

func buildRubricBlock(attrs map[string]core.Attribute, logger core.Logger) string {
	var positives, negatives []core.Attribute
	for _, a := range attrs {
		if !a.Active {
			continue
		}
		switch a.Category {
		case core.CategoryPositive:
			positives = append(positives, a)
		case core.CategoryNegative:
			negatives = append(negatives, a)
		case core.CategoryOther:
			// "other" is a recognised category but not part of the
			// positive/negative rubric sections; skip it silently.
		default:
			logger.Warn("scoring attribute has unknown category, defaulting to positive", map[string]interface{}{
				"operation": "rubric.Build", "attributeId": a.ID, "category": string(a.Category),
			})
			positives = append(positives, a)
		}
	}

	// attrs is a map, so iteration order above is nondeterministic; sort
	// by id so the assembled prompt is stable across runs.
	sort.Slice(positives, func(i, j int) bool { return positives[i].ID < positives[j].ID })
	sort.Slice(negatives, func(i, j int) bool { return negatives[i].ID < negatives[j].ID })

	var b strings.Builder
	b.WriteString("## Scoring Rubric\n\n")
	b.WriteString("### Positive Scoring Attributes\n")
	for _, a := range positives {
		b.WriteString(formatAttribute(a))
	}
	b.WriteString("\n### Negative Scoring Attributes\n")
	for _, a := range negatives {
		b.WriteString(formatAttribute(a))
	}
	return b.String()
}

func formatAttribute(a core.Attribute) string {
	var b strings.Builder
	fmt.Fprintf(&b, "- [%s] %s (scoring type: %s, max %d points)\n", a.ID, a.Name, string(a.Category), a.MaxPoints)
	if a.DetailedInstructions != "" {
		fmt.Fprintf(&b, "  Instructions: %s\n", a.DetailedInstructions)
	}
	if len(a.PositiveKeywords) > 0 {
		fmt.Fprintf(&b, "  Positive keywords: %s\n", strings.Join(a.PositiveKeywords, ", "))
	}
	if len(a.NegativeKeywords) > 0 {
		fmt.Fprintf(&b, "  Negative keywords: %s\n", strings.Join(a.NegativeKeywords, ", "))
	}
	if a.ExampleHigh != "" {
		fmt.Fprintf(&b, "  Example (high): %s\n", a.ExampleHigh)
	}
	if a.ExampleLow != "" {
		fmt.Fprintf(&b, "  Example (low): %s\n", a.ExampleLow)
	}
	return b.String()
}
