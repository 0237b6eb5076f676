package chat

import "strings"

// markdownV2Specials is the character set the MarkdownV2 wire format requires
// senders to escape.
const markdownV2Specials = "_*[]()~`>#+-=|{}.!"

// EscapeMarkdownV2 escapes text for the MarkdownV2 parse mode.
func EscapeMarkdownV2(text string) string {
	var builder strings.Builder
	builder.Grow(len(text))
	for _, r := range text {
		if strings.ContainsRune(markdownV2Specials, r) {
			builder.WriteByte('\\')
		}
		builder.WriteRune(r)
	}
	return builder.String()
}
