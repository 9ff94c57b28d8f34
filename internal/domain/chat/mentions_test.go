package chat

import (
	"reflect"
	"testing"
)

func TestExtractMentions(t *testing.T) {
	cases := []struct {
		name    string
		content string
		want    []int64
	}{
		{"single", "hello @user:7", []int64{7}},
		{"dedup keeps first order", "@user:9 and @user:3 then @user:9", []int64{9, 3}},
		{"bare username is text", "hi @alice", []int64{}},
		{"zero id ignored", "@user:0", []int64{}},
		{"adjacent punctuation", "(@user:12),@user:4.", []int64{12, 4}},
		{"empty", "", []int64{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ExtractMentions(tc.content)
			if !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("ExtractMentions(%q) = %v, want %v", tc.content, got, tc.want)
			}
		})
	}
}

func TestMentionTokenRoundTrip(t *testing.T) {
	got := ExtractMentions("ping " + MentionToken(42))
	if len(got) != 1 || got[0] != 42 {
		t.Fatalf("unexpected mentions %v", got)
	}
}
