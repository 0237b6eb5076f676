package executor

import (
	"strings"
)

// shellQuote wraps s in single quotes for a POSIX shell, escaping embedded
// single quotes with the '\'' idiom.
func shellQuote(s string) string {
	if s == "" {
		return "''"
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// toPosixPath converts a Windows path like C:\work\repo into the /c/work/repo
// form that a bash wrapper understands. Paths already in POSIX form pass
// through unchanged.
func toPosixPath(path string) string {
	if len(path) >= 2 && path[1] == ':' {
		drive := strings.ToLower(path[:1])
		rest := strings.ReplaceAll(path[2:], `\`, "/")
		return "/" + drive + rest
	}
	return strings.ReplaceAll(path, `\`, "/")
}
