package processor

import (
	"strconv"
	"strings"

	"github.com/PartnerPiloting/leadscorer/internal/core"
)

// mergeScores attaches each AIScore to its source Post by normalised
// URL, falling back to the activity-id secondary key, and computes the
// repost flag (spec.md 4.8 steps 4-5). leadLinkedInURL is the lead's
// canonical profile URL used for same-author repost detection.
func mergeScores(scores []core.AIScore, posts []core.Post, leadLinkedInURL string) []core.EnrichedScore {
	byURL := map[string]core.Post{}
	byActivity := map[string]core.Post{}
	for _, p := range posts {
		byURL[normaliseURL(p.PostURL)] = p
		if id := activityID(p.PostURL); id != "" {
			byActivity[id] = p
		}
	}

	leadPublicID := linkedInPublicID(leadLinkedInURL)

	out := make([]core.EnrichedScore, 0, len(scores))
	for _, score := range scores {
		post, ok := byURL[normaliseURL(score.PostURL)]
		if !ok {
			if id := activityID(score.PostURL); id != "" {
				post, ok = byActivity[id]
			}
		}

		es := core.EnrichedScore{AIScore: score}
		if ok {
			es.PostContent = firstNonEmpty(post.PostContent, score.PostURL)
			es.PostDate = extractPostDate(post)
			es.AuthorURL = post.AuthorURL
			es.AuthorName = post.Author
			es.IsRepost = computeIsRepost(leadPublicID, leadLinkedInURL, post)
			if !es.IsRepost && es.AuthorURL == "" {
				es.AuthorURL = leadLinkedInURL
			}
		} else {
			es.PostContent = score.PostURL
		}
		out = append(out, es)
	}
	return out
}

// computeIsRepost implements spec.md 4.8 step 5 and Property 5: an
// explicit "repost" label from a different author sets IsRepost; the
// same label from the lead's own account is an original, never a
// repost, even though the source carries the label.
func computeIsRepost(leadPublicID, leadLinkedInURL string, post core.Post) bool {
	authorPublicID := linkedInPublicID(post.AuthorURL)
	isSameAuthor := false
	if leadPublicID != "" && authorPublicID != "" {
		isSameAuthor = leadPublicID == authorPublicID
	} else {
		isSameAuthor = deepNormaliseURL(leadLinkedInURL) == deepNormaliseURL(post.AuthorURL)
	}

	explicitRepost := strings.EqualFold(strings.TrimSpace(post.Action), "repost")

	if explicitRepost && isSameAuthor {
		return false
	}
	if !explicitRepost {
		if leadPublicID != "" && authorPublicID != "" {
			return leadPublicID != authorPublicID
		}
		return deepNormaliseURL(leadLinkedInURL) != deepNormaliseURL(post.AuthorURL)
	}
	return true
}

// extractPostDate best-effort extracts a date from the post's metadata
// bag, trying postedAt.timestamp/date/ms/value and finally the post's
// own PostDate field (spec.md 4.8 step 4).
func extractPostDate(post core.Post) string {
	if post.PostDate != "" {
		return post.PostDate
	}
	postedAt, ok := post.Meta["postedAt"].(map[string]interface{})
	if !ok {
		return ""
	}
	for _, key := range []string{"timestamp", "date", "ms", "value"} {
		if v, ok := postedAt[key]; ok {
			switch t := v.(type) {
			case string:
				if t != "" {
					return t
				}
			case float64:
				return strconv.FormatFloat(t, 'f', 0, 64)
			}
		}
	}
	return ""
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// pickWinner selects the post with the maximum PostScore; ties resolve
// to the first-seen post in input order (spec.md 4.8 step 6, Property 4).
func pickWinner(scores []core.EnrichedScore) (core.EnrichedScore, bool) {
	if len(scores) == 0 {
		return core.EnrichedScore{}, false
	}
	winner := scores[0]
	for _, s := range scores[1:] {
		if s.PostScore > winner.PostScore {
			winner = s
		}
	}
	return winner, true
}
