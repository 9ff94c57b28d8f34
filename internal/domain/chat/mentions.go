package chat

import (
	"fmt"
	"regexp"
	"strconv"
)

// Mentions are encoded as @user:<id>. A bare @username is plain text.
var mentionPattern = regexp.MustCompile(`@user:(\d+)`)

// ExtractMentions returns the distinct mentioned user ids in order of first
// appearance.
func ExtractMentions(content string) []int64 {
	matches := mentionPattern.FindAllStringSubmatch(content, -1)
	mentions := make([]int64, 0, len(matches))
	seen := make(map[int64]struct{}, len(matches))
	for _, m := range matches {
		id, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil || id <= 0 {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		mentions = append(mentions, id)
	}
	return mentions
}

// MentionToken renders the internal token for a user.
func MentionToken(userID int64) string {
	return fmt.Sprintf("@user:%d", userID)
}
