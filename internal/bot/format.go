package bot

import (
	"fmt"
	"html"
	"strings"
	"time"

	"curator_bot/internal/model"
	"curator_bot/internal/storage"
)

// FormatPost renders the channel caption for a repository and its summary.
func FormatPost(repo *model.Repository, summary *model.Summary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<b>%s</b>\n\n", html.EscapeString(summary.ProjectName))
	b.WriteString(html.EscapeString(summary.Description))

	if len(summary.Features) > 0 {
		b.WriteString("\n\n<b>Features:</b>")
		for _, f := range summary.Features {
			fmt.Fprintf(&b, "\n• %s", html.EscapeString(f))
		}
	}

	if len(summary.Tags) > 0 {
		b.WriteString("\n\n")
		tags := make([]string, 0, len(summary.Tags))
		for _, t := range summary.Tags {
			tags = append(tags, "#"+html.EscapeString(strings.TrimPrefix(t, "#")))
		}
		b.WriteString(strings.Join(tags, " "))
	}

	b.WriteString("\n\n")
	fmt.Fprintf(&b, `<a href="%s">%s</a>`, repo.URL, html.EscapeString(repo.FullName))
	for _, link := range summary.Links {
		if link == repo.URL {
			continue
		}
		fmt.Fprintf(&b, "\n%s", html.EscapeString(link))
	}
	return b.String()
}

// FormatCooldown explains a dedup rejection with the remaining wait.
func FormatCooldown(fullName string, lastSubmittedAt, now time.Time) string {
	daysSince := int(now.Sub(lastSubmittedAt).Hours() / 24)
	remaining := int(storage.CooldownWindow.Hours()/24) - daysSince
	if remaining < 1 {
		remaining = 1
	}
	unit := "days"
	if remaining == 1 {
		unit = "day"
	}
	return fmt.Sprintf(
		"<b>Repost not allowed</b>\n\n<b>%s</b> was published %d days ago.\nWait %d more %s to post it again.",
		html.EscapeString(fullName), daysSince, remaining, unit)
}

// FormatScheduledList formats scheduled posts for the /scheduled command.
func FormatScheduledList(posts []model.ScheduledPost) string {
	if len(posts) == 0 {
		return "No scheduled posts."
	}

	var b strings.Builder
	b.WriteString("<b>Scheduled posts:</b>\n")
	for _, p := range posts {
		status := "pending"
		if p.IsPublished {
			status = "published"
		}
		fmt.Fprintf(&b, "\n<b>%s</b>\n%s UTC [%s]\n",
			html.EscapeString(p.RepositoryFullName),
			p.ScheduledTime.UTC().Format("2006-01-02 15:04"),
			status)
	}
	return b.String()
}

func fieldLabel(field model.EditField) string {
	switch field {
	case model.FieldDescription:
		return "description"
	case model.FieldFeatures:
		return "features (one per line)"
	case model.FieldTags:
		return "tags (comma separated)"
	case model.FieldLinks:
		return "links (one per line)"
	}
	return string(field)
}

// applyEdit updates exactly one field of the summary from free-text input.
// The other fields are untouched.
func applyEdit(summary *model.Summary, field model.EditField, input string) {
	input = strings.TrimSpace(input)
	switch field {
	case model.FieldDescription:
		summary.Description = input
	case model.FieldFeatures:
		summary.Features = splitLines(input)
	case model.FieldTags:
		summary.Tags = splitTags(input)
	case model.FieldLinks:
		summary.Links = splitLines(input)
	}
}

func splitLines(input string) []string {
	var out []string
	for _, line := range strings.Split(input, "\n") {
		line = strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(line), "-•*"))
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}

func splitTags(input string) []string {
	var out []string
	for _, tag := range strings.FieldsFunc(input, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\n'
	}) {
		tag = strings.TrimPrefix(strings.TrimSpace(tag), "#")
		if tag != "" {
			out = append(out, tag)
		}
	}
	return out
}
