package mail

import (
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	_ "github.com/emersion/go-message/charset"
	msgmail "github.com/emersion/go-message/mail"
)

// extractBody walks the MIME parts preferring text/plain; an HTML part is
// stripped to text as the fallback. Returns the chosen body plus the raw
// first part for provenance.
func extractBody(r io.Reader) (body string, raw string, err error) {
	mr, err := msgmail.CreateReader(r)
	if err != nil {
		return "", "", fmt.Errorf("parse message: %w", err)
	}

	var plain, html string
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", "", fmt.Errorf("read part: %w", err)
		}

		header, ok := part.Header.(*msgmail.InlineHeader)
		if !ok {
			continue
		}
		contentType, _, err := header.ContentType()
		if err != nil {
			continue
		}

		data, err := io.ReadAll(part.Body)
		if err != nil {
			continue
		}
		switch contentType {
		case "text/plain":
			if plain == "" {
				plain = string(data)
			}
		case "text/html":
			if html == "" {
				html = string(data)
			}
		}
	}

	if plain != "" {
		return plain, plain, nil
	}
	if html != "" {
		stripped, err := StripHTML(html)
		if err != nil {
			return "", html, err
		}
		return stripped, html, nil
	}
	return "", "", nil
}

// blockBoundaryPattern marks where adjacent block elements meet; a newline is
// injected there so their texts do not run together after stripping.
var blockBoundaryPattern = regexp.MustCompile(`(?i)</(?:p|div|li|tr|h[1-6]|blockquote|pre|table|ul|ol)>|<br\s*/?>`)

// StripHTML reduces an HTML body to its visible text, one line per block
// element.
func StripHTML(html string) (string, error) {
	html = blockBoundaryPattern.ReplaceAllStringFunc(html, func(tag string) string {
		return tag + "\n"
	})
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}
	doc.Find("script, style, head").Remove()
	text := doc.Text()

	lines := strings.Split(text, "\n")
	cleaned := lines[:0]
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed != "" {
			cleaned = append(cleaned, trimmed)
		}
	}
	return strings.Join(cleaned, "\n"), nil
}

var quoteIntroPattern = regexp.MustCompile(`^On .{1,200} wrote:\s*$`)

// CleanBody drops quoted-reply intros, signature blocks, and footer noise
// from a plain-text mail body.
func CleanBody(body string) string {
	lines := strings.Split(body, "\n")
	var kept []string

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)

		// Everything below a quote intro or a signature marker is history.
		if quoteIntroPattern.MatchString(trimmed) {
			break
		}
		if trimmed == "--" || strings.HasPrefix(trimmed, "Best regards") ||
			strings.HasPrefix(trimmed, "Sent from my iPhone") ||
			strings.HasPrefix(trimmed, "Sent from my Android") {
			break
		}
		if strings.HasPrefix(trimmed, "====") {
			continue
		}
		if strings.HasPrefix(trimmed, ">") {
			continue
		}
		kept = append(kept, line)
	}

	return strings.TrimSpace(strings.Join(kept, "\n"))
}

// ComposePrompt merges subject and body into the task prompt: a substantive
// body (> 20 runes) rides under the subject, otherwise the subject stands
// alone.
func ComposePrompt(subject, body string) string {
	subject = strings.TrimSpace(subject)
	body = strings.TrimSpace(body)
	if len([]rune(body)) > 20 {
		if subject == "" {
			return body
		}
		return subject + "\n\n" + body
	}
	if subject == "" {
		return body
	}
	return subject
}
