package processor

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// Property 8 (error classification totality): Classify always returns
// exactly one of the seven named categories, never an empty string.
func TestClassifyTotality(t *testing.T) {
	cases := []struct {
		finishReason string
		message      string
		want         Category
	}{
		{finishReason: "SAFETY", message: "", want: CategorySafetyBlock},
		{finishReason: "", message: "quota exceeded", want: CategoryQuota},
		{finishReason: "", message: "rate limit hit", want: CategoryQuota},
		{finishReason: "", message: "context deadline exceeded: ETIMEDOUT", want: CategoryTimeout},
		{finishReason: "", message: "401 unauthorized", want: CategoryAuth},
		{finishReason: "", message: "403 forbidden", want: CategoryAuth},
		{finishReason: "", message: "failed to parse JSON body", want: CategoryAIResponseFormat},
		{finishReason: "", message: "model-invalid: no such model", want: CategoryModelConfig},
		{finishReason: "", message: "something entirely unrelated happened", want: CategoryUnknown},
		{finishReason: "", message: "", want: CategoryUnknown},
	}
	for _, tc := range cases {
		got := Classify(tc.finishReason, tc.message)
		assert.Equal(t, tc.want, got, "finishReason=%q message=%q", tc.finishReason, tc.message)
		assert.NotEmpty(t, got)
	}
}

func TestClassifyIsCaseInsensitive(t *testing.T) {
	assert.Equal(t, CategorySafetyBlock, Classify("SAFETY_BLOCKED", ""))
	assert.Equal(t, CategoryAuth, Classify("", "FORBIDDEN"))
}
