package formatting

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrParseFailed means no candidate in the content decoded as JSON.
var ErrParseFailed = errors.New("failed to parse response")

var fence = regexp.MustCompile("(?s)```[A-Za-z]*\\s*(.*?)\\s*```")

// Parse decodes JSON from model output. It tries the whole content, then
// each fenced code block, then, when the content opens with prose, the
// span from the first opening bracket to its last matching closer. The
// first candidate that decodes into T wins.
func Parse[T any](content string) (T, error) {
	var result T
	content = strings.TrimSpace(content)

	for _, candidate := range candidates(content) {
		var v T
		if err := json.Unmarshal([]byte(candidate), &v); err == nil {
			return v, nil
		}
	}

	return result, fmt.Errorf("%w: %s", ErrParseFailed, content)
}

func candidates(content string) []string {
	out := []string{content}

	for _, m := range fence.FindAllStringSubmatch(content, -1) {
		out = append(out, m[1])
	}

	start := strings.IndexAny(content, "{[")
	if start <= 0 {
		return out
	}

	closer := "}"
	if content[start] == '[' {
		closer = "]"
	}
	if end := strings.LastIndex(content, closer); end > start {
		out = append(out, content[start:end+1])
	}
	return out
}
