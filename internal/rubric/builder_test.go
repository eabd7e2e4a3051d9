package rubric

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/PartnerPiloting/leadscorer/internal/core"
)

func TestBuildInjectsRubricBlockAtSentinel(t *testing.T) {
	r := core.Rubric{
		PromptComponents: []core.PromptComponent{
			{ComponentID: "intro", Text: "You are a scoring assistant.", Order: 1},
			{ComponentID: core.ScoringHeaderID, Text: "Score each post.", Order: 2},
			{ComponentID: "outro", Text: "Respond with JSON only.", Order: 3},
		},
		AttributesByID: map[string]core.Attribute{
			"p1": {ID: "p1", Name: "Industry relevance", Category: core.CategoryPositive, MaxPoints: 10, Active: true},
			"n1": {ID: "n1", Name: "Spam indicators", Category: core.CategoryNegative, MaxPoints: 5, Active: true},
			"p2": {ID: "p2", Name: "Inactive attribute", Category: core.CategoryPositive, MaxPoints: 10, Active: false},
		},
	}

	prompt := Build(r, nil)

	assert.Contains(t, prompt, "You are a scoring assistant.")
	assert.Contains(t, prompt, "Score each post.")
	assert.Contains(t, prompt, "Respond with JSON only.")
	assert.Contains(t, prompt, "Positive Scoring Attributes")
	assert.Contains(t, prompt, "Negative Scoring Attributes")
	assert.Contains(t, prompt, "Industry relevance")
	assert.Contains(t, prompt, "Spam indicators")
	assert.NotContains(t, prompt, "Inactive attribute")
}

func TestBuildUnknownCategoryDefaultsToPositive(t *testing.T) {
	r := core.Rubric{
		PromptComponents: []core.PromptComponent{
			{ComponentID: core.ScoringHeaderID, Text: "Header", Order: 1},
		},
		AttributesByID: map[string]core.Attribute{
			"x1": {ID: "x1", Name: "Mystery attribute", Category: "weird", MaxPoints: 1, Active: true},
		},
	}
	prompt := Build(r, nil)

	positiveIdx := indexOf(prompt, "Positive Scoring Attributes")
	negativeIdx := indexOf(prompt, "Negative Scoring Attributes")
	mysteryIdx := indexOf(prompt, "Mystery attribute")

	assert.Greater(t, mysteryIdx, positiveIdx)
	assert.Less(t, mysteryIdx, negativeIdx)
}

func indexOf(s, substr string) int {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return i
		}
	}
	return -1
}
