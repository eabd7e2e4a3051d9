// Package payload implements the cascading JSON repair pipeline for a
// lead's raw posts payload (spec.md 4.3).
package payload

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/PartnerPiloting/leadscorer/internal/core"
)

// Method names the repair stage that produced a successful parse.
type Method string

const (
	MethodClean                 Method = "CLEAN"
	MethodCleanPreprocessing     Method = "CLEAN_PREPROCESSING"
	MethodQuoteRepair            Method = "QUOTE_REPAIR"
	MethodDirtyJSON               Method = "DIRTY_JSON"
	MethodDirtyJSONQuoteRepair    Method = "DIRTY_JSON_QUOTE_REPAIR"
	MethodCorrupted               Method = "CORRUPTED"
)

// Severity is the diagnostic-only classification reported by Analyse.
type Severity string

const (
	SeverityClean     Severity = "CLEAN"
	SeverityDirty     Severity = "DIRTY"
	SeverityCorrupted Severity = "CORRUPTED"
)

// Result is the outcome of Repair.
type Result struct {
	Success bool
	Data    []core.Post
	Method  Method
	Err     error
}

var controlCharPattern = regexp.MustCompile(`[\x00-\x08\x0B\x0C\x0E-\x1F\x7F-\x9F]`)

// postContentQuote matches `"postContent": "<value>"` so the value's
// interior can be re-escaped; it's intentionally permissive about the
// value, which is fixed up by escapeInnerQuotes.
var postContentQuote = regexp.MustCompile(`("postContent"\s*:\s*")((?:[^\\]|\\.)*?)("(?:\s*[,}]))`)

// Repair parses v (expected to be a JSON string or an already-decoded
// array) into an array of posts using the cascading strategy from
// spec.md 4.3: strict parse, control-char cleanup + retry, quote repair +
// retry, lenient parse, lenient parse of the quote-repaired string.
//
// If v is already a []core.Post or a []interface{} of post-shaped maps,
// this short-circuits with MethodClean.
func Repair(v interface{}) Result {
	if posts, ok := asPostSlice(v); ok {
		return Result{Success: true, Data: posts, Method: MethodClean}
	}

	s, ok := v.(string)
	if !ok {
		return Result{Success: false, Method: MethodCorrupted, Err: core.ErrInvalidPostsContent}
	}
	trimmed := strings.TrimSpace(s)

	// Stage 1: strict parse of the trimmed string.
	if posts, err := strictParse(trimmed); err == nil {
		return Result{Success: true, Data: posts, Method: MethodClean}
	}

	// Stage 2: strip control characters, normalise line endings, retry.
	cleaned := cleanControlChars(trimmed)
	if posts, err := strictParse(cleaned); err == nil {
		return Result{Success: true, Data: posts, Method: MethodCleanPreprocessing}
	}

	// Stage 3: escape unescaped quotes inside postContent values, retry.
	quoteRepaired := escapeInnerQuotes(cleaned)
	if posts, err := strictParse(quoteRepaired); err == nil {
		return Result{Success: true, Data: posts, Method: MethodQuoteRepair}
	}

	// Stages 4-5 only attempt to salvage DIRTY input (unbalanced quotes,
	// trailing commas). A CORRUPTED payload (unbalanced brackets, stray
	// control characters) never reaches them: gjson's bracket/string
	// tracking happily re-synchronises across a truncated array and
	// returns a plausible-looking object, which would misreport a
	// genuinely unrecoverable payload as repaired.
	if Analyse(trimmed) == SeverityCorrupted {
		return Result{Success: false, Method: MethodCorrupted, Err: core.ErrUnparseableJSON}
	}

	// Stage 4: lenient parse via gjson on the cleaned string.
	if posts, ok := lenientParse(cleaned); ok {
		return Result{Success: true, Data: posts, Method: MethodDirtyJSON}
	}

	// Stage 5: lenient parse on the quote-repaired string.
	if posts, ok := lenientParse(quoteRepaired); ok {
		return Result{Success: true, Data: posts, Method: MethodDirtyJSONQuoteRepair}
	}

	return Result{Success: false, Method: MethodCorrupted, Err: core.ErrUnparseableJSON}
}

// strictParse decodes s as a JSON array of posts. A successful decode of
// a non-array value is treated as a parse failure (Repair's output must
// always be an array when successful).
func strictParse(s string) ([]core.Post, error) {
	var raw []map[string]interface{}
	if err := json.Unmarshal([]byte(s), &raw); err != nil {
		return nil, err
	}
	return mapsToPosts(raw), nil
}

func cleanControlChars(s string) string {
	s = controlCharPattern.ReplaceAllString(s, "")
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	return s
}

// escapeInnerQuotes finds "postContent": "..." spans and escapes any
// unescaped " found inside the value.
func escapeInnerQuotes(s string) string {
	return postContentQuote.ReplaceAllStringFunc(s, func(match string) string {
		sub := postContentQuote.FindStringSubmatch(match)
		if sub == nil {
			return match
		}
		prefix, value, suffix := sub[1], sub[2], sub[3]
		var b strings.Builder
		for i := 0; i < len(value); i++ {
			ch := value[i]
			if ch == '\\' && i+1 < len(value) {
				b.WriteByte(ch)
				i++
				b.WriteByte(value[i])
				continue
			}
			if ch == '"' {
				b.WriteString(`\"`)
				continue
			}
			b.WriteByte(ch)
		}
		return prefix + b.String() + suffix
	})
}

// lenientParse uses gjson to extract an array of post-shaped objects even
// from JSON that the strict decoder rejects (trailing commas, stray
// braces elsewhere in the payload, etc.).
func lenientParse(s string) ([]core.Post, bool) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "[") {
		// Locate the first '[' ... matching ']' span heuristically.
		start := strings.Index(s, "[")
		end := strings.LastIndex(s, "]")
		if start == -1 || end == -1 || end <= start {
			return nil, false
		}
		s = s[start : end+1]
	}
	result := gjson.Parse(s)
	if !result.IsArray() {
		return nil, false
	}
	var posts []core.Post
	ok := true
	result.ForEach(func(_, value gjson.Result) bool {
		if !value.IsObject() || value.Get("postUrl").String() == "" {
			ok = false
			return false
		}
		posts = append(posts, postFromGJSON(value))
		return true
	})
	if !ok || len(posts) == 0 {
		return nil, false
	}
	return posts, true
}

func postFromGJSON(v gjson.Result) core.Post {
	meta := map[string]interface{}{}
	v.ForEach(func(key, value gjson.Result) bool {
		meta[key.String()] = value.Value()
		return true
	})
	return core.Post{
		PostURL:     v.Get("postUrl").String(),
		PostContent: v.Get("postContent").String(),
		PostDate:    v.Get("postDate").String(),
		Author:      v.Get("author").String(),
		AuthorURL:   v.Get("authorUrl").String(),
		Action:      v.Get("action").String(),
		Meta:        meta,
	}
}

func mapsToPosts(raw []map[string]interface{}) []core.Post {
	posts := make([]core.Post, 0, len(raw))
	for _, m := range raw {
		posts = append(posts, core.Post{
			PostURL:     stringField(m, "postUrl"),
			PostContent: stringField(m, "postContent"),
			PostDate:    stringField(m, "postDate"),
			Author:      stringField(m, "author"),
			AuthorURL:   stringField(m, "authorUrl"),
			Action:      stringField(m, "action"),
			Meta:        m,
		})
	}
	return posts
}

func stringField(m map[string]interface{}, key string) string {
	if v, ok := m[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func asPostSlice(v interface{}) ([]core.Post, bool) {
	switch t := v.(type) {
	case []core.Post:
		return t, true
	case []map[string]interface{}:
		return mapsToPosts(t), true
	case []interface{}:
		raw := make([]map[string]interface{}, 0, len(t))
		for _, item := range t {
			m, ok := item.(map[string]interface{})
			if !ok {
				return nil, false
			}
			raw = append(raw, m)
		}
		return mapsToPosts(raw), true
	default:
		return nil, false
	}
}

// Analyse is a diagnostic (not in the critical path) that reports a
// severity for a raw string payload based on bracket/brace balance, odd
// quote counts, and the presence of control characters.
func Analyse(s string) Severity {
	if controlCharPattern.MatchString(s) {
		return SeverityCorrupted
	}
	if !bracketsBalanced(s) {
		return SeverityCorrupted
	}
	if strings.Count(s, `"`)%2 != 0 {
		return SeverityDirty
	}
	return SeverityClean
}

func bracketsBalanced(s string) bool {
	depth := 0
	for _, r := range s {
		switch r {
		case '[', '{':
			depth++
		case ']', '}':
			depth--
			if depth < 0 {
				return false
			}
		}
	}
	return depth == 0
}
