package processor

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/PartnerPiloting/leadscorer/internal/core"
)

// Property 5 (repost invariant): a post explicitly labeled "repost" is
// only IsRepost when its author differs from the lead; the lead
// resharing their own post is an original, never a repost. The first two
// tests derive leadPublicID the same way merge.go does (linkedInPublicID
// of the lead's own profile URL); the others pass "" so the comparison
// falls back to the lead's profile URL.
func TestComputeIsRepostDifferentAuthorExplicitLabel(t *testing.T) {
	leadURL := "https://linkedin.com/in/lead"
	post := core.Post{AuthorURL: "https://linkedin.com/in/someone-else", Action: "repost"}
	assert.True(t, computeIsRepost(linkedInPublicID(leadURL), leadURL, post))
}

func TestComputeIsRepostSameAuthorExplicitLabelIsOriginal(t *testing.T) {
	leadURL := "https://linkedin.com/in/lead"
	post := core.Post{AuthorURL: "https://linkedin.com/in/lead", Action: "repost"}
	assert.False(t, computeIsRepost(linkedInPublicID(leadURL), leadURL, post))
}

func TestComputeIsRepostNoLabelDifferentAuthorIsRepost(t *testing.T) {
	post := core.Post{AuthorURL: "https://linkedin.com/in/someone-else"}
	assert.True(t, computeIsRepost("", "https://linkedin.com/in/lead", post))
}

func TestComputeIsRepostNoLabelSameAuthorIsOriginal(t *testing.T) {
	post := core.Post{AuthorURL: "https://linkedin.com/in/lead"}
	assert.False(t, computeIsRepost("", "https://linkedin.com/in/lead", post))
}

func TestComputeIsRepostFallsBackToURLWhenPublicIDsUnavailable(t *testing.T) {
	post := core.Post{AuthorURL: "https://linkedin.com/in/lead/", Action: "repost"}
	assert.False(t, computeIsRepost("", "https://linkedin.com/in/lead", post))
}
