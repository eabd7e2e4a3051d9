package processor

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/PartnerPiloting/leadscorer/internal/core"
)

// formatTopScoringPost renders the multi-line summary block spec.md 4.8
// step 7 requires: Date, URL, Score, an optional REPOST banner, Content,
// Rationale.
func formatTopScoringPost(winner core.EnrichedScore) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Date: %s\n", winner.PostDate)
	fmt.Fprintf(&b, "URL: %s\n", winner.PostURL)
	fmt.Fprintf(&b, "Score: %d\n", winner.PostScore)
	if winner.IsRepost {
		fmt.Fprintf(&b, "REPOST - ORIGINAL AUTHOR: %s\n", winner.AuthorURL)
	}
	fmt.Fprintf(&b, "Content: %s\n", winner.PostContent)
	fmt.Fprintf(&b, "Rationale: %s", winner.ScoringRationale)
	return b.String()
}

// formatAIEvaluation pretty-prints the full enriched-score array for
// storage in the AIEvaluation field (spec.md 4.8 step 7).
func formatAIEvaluation(scores []core.EnrichedScore) string {
	encoded, err := json.MarshalIndent(scores, "", "  ")
	if err != nil {
		return "[]"
	}
	return string(encoded)
}

// formatJSONParseError renders the JSON_PARSE_ERROR:<msg> descriptor
// stored in AIEvaluation on an unrecoverable payload (spec.md 4.8 step 2,
// S3).
func formatJSONParseError(msg string, diagnostic string) string {
	if diagnostic == "" {
		return "JSON_PARSE_ERROR:" + msg
	}
	return "JSON_PARSE_ERROR:" + msg + " " + diagnostic
}
