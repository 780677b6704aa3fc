package prompt

import (
	"fmt"
	"log/slog"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"

	"github.com/af-corp/chat-gateway/internal/types"
)

const (
	maxLyricLines       = 5
	maxDocumentPreview  = 600
	maxBrowserPageChars = 4000
)

// DefaultSections is the render order of the dynamic block. The chat-room
// trailer stays last.
func DefaultSections() []Section {
	return []Section{
		{Name: "user", Render: renderUser},
		{Name: "running_apps", Render: renderRunningApps},
		{Name: "media", Render: renderMedia},
		{Name: "browser", Render: renderBrowser},
		{Name: "documents", Render: renderDocuments},
		{Name: "local_time", Render: renderLocalTime},
		{Name: "geo", Render: renderGeo},
		{Name: "chat_room", Render: renderChatRoom},
	}
}

func renderUser(in Input) string {
	if in.Username == "" {
		return ""
	}
	return fmt.Sprintf("<user>\nThe user is signed in as @%s.\n</user>", in.Username)
}

func renderRunningApps(in Input) string {
	if in.State == nil || in.State.RunningApps == nil {
		return ""
	}
	ra := in.State.RunningApps
	if ra.Foreground == nil && len(ra.Background) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("<running_apps>\n")
	if ra.Foreground != nil {
		fmt.Fprintf(&b, "Foreground: %s\n", describeApp(*ra.Foreground))
	}
	if len(ra.Background) > 0 {
		names := make([]string, len(ra.Background))
		for i, a := range ra.Background {
			names[i] = describeApp(a)
		}
		fmt.Fprintf(&b, "Background: %s\n", strings.Join(names, ", "))
	}
	b.WriteString("</running_apps>")
	return b.String()
}

func describeApp(a types.AppInstance) string {
	s := a.AppID
	if a.Title != "" {
		s += fmt.Sprintf(" %q", a.Title)
	}
	if a.InstanceID != "" {
		s += " [" + a.InstanceID + "]"
	}
	return s
}

func renderMedia(in Input) string {
	if in.State == nil || in.State.Media == nil {
		return ""
	}
	m := in.State.Media
	if m.Title == "" && m.Artist == "" {
		return ""
	}
	var b strings.Builder
	b.WriteString("<media>\n")
	status := "paused"
	if m.IsPlaying {
		status = "playing"
	}
	track := m.Title
	if m.Artist != "" {
		track += " by " + m.Artist
	}
	fmt.Fprintf(&b, "iPod is %s: %s\n", status, track)
	if lyrics := truncateLines(m.Lyrics, maxLyricLines); lyrics != "" {
		b.WriteString("Lyrics:\n")
		b.WriteString(lyrics)
		b.WriteString("\n")
	}
	b.WriteString("</media>")
	return b.String()
}

func renderBrowser(in Input) string {
	if in.State == nil || in.State.Browser == nil || in.State.Browser.URL == "" {
		return ""
	}
	br := in.State.Browser
	var b strings.Builder
	b.WriteString("<browser>\n")
	fmt.Fprintf(&b, "Internet Explorer is open at %s", br.URL)
	if br.Year != "" && br.Year != "current" {
		fmt.Fprintf(&b, " (time traveled to %s)", br.Year)
	}
	b.WriteString("\n")
	if br.Title != "" {
		fmt.Fprintf(&b, "Title: %s\n", br.Title)
	}
	if page := pageText(br.HTML); page != "" {
		b.WriteString("Page content:\n")
		b.WriteString(page)
		b.WriteString("\n")
	}
	b.WriteString("</browser>")
	return b.String()
}

func pageText(html string) string {
	if strings.TrimSpace(html) == "" {
		return ""
	}
	md, err := htmltomarkdown.ConvertString(html)
	if err != nil {
		slog.Debug("browser page conversion failed", "error", err)
		return ""
	}
	return truncateChars(strings.TrimSpace(md), maxBrowserPageChars)
}

func renderDocuments(in Input) string {
	if in.State == nil {
		return ""
	}
	var docs []string
	for _, d := range in.State.Documents {
		if d.Name == "" && d.Content == "" {
			continue
		}
		var b strings.Builder
		name := d.Name
		if name == "" {
			name = "Untitled"
		}
		fmt.Fprintf(&b, "Document: %s", name)
		if d.InstanceID != "" {
			fmt.Fprintf(&b, " [%s]", d.InstanceID)
		}
		if d.Path != "" {
			fmt.Fprintf(&b, " (%s)", d.Path)
		}
		b.WriteString("\n")
		if c := strings.TrimSpace(d.Content); c != "" {
			b.WriteString(truncateChars(c, maxDocumentPreview))
			b.WriteString("\n")
		}
		docs = append(docs, b.String())
	}
	if len(docs) == 0 {
		return ""
	}
	return "<documents>\n" + strings.Join(docs, "\n") + "</documents>"
}

func renderLocalTime(in Input) string {
	if in.State == nil || in.State.UserLocalTime == nil {
		return ""
	}
	lt := in.State.UserLocalTime
	if lt.TimeString == "" && lt.DateString == "" {
		return ""
	}
	s := strings.TrimSpace(lt.DateString + " " + lt.TimeString)
	if lt.TimeZone != "" {
		s += " (" + lt.TimeZone + ")"
	}
	return "<user_local_time>\n" + s + "\n</user_local_time>"
}

func renderGeo(in Input) string {
	if in.Geo.Empty() {
		return ""
	}
	var place []string
	for _, p := range []string{in.Geo.City, in.Geo.Region, in.Geo.Country} {
		if p != "" {
			place = append(place, p)
		}
	}
	s := "Approximate location: " + strings.Join(place, ", ")
	if in.Geo.Latitude != "" && in.Geo.Longitude != "" {
		s += fmt.Sprintf(" (%s, %s)", in.Geo.Latitude, in.Geo.Longitude)
	}
	return "<user_location>\n" + s + "\n</user_location>"
}

func renderChatRoom(in Input) string {
	if in.State == nil || in.State.ChatRoom == nil {
		return ""
	}
	cr := in.State.ChatRoom
	if cr.RecentMessages == "" && cr.MentionedMessage == "" {
		return ""
	}
	var b strings.Builder
	b.WriteString("<chat_room_reply_context>\n")
	b.WriteString("CHAT ROOM REPLY CONTEXT: you were mentioned in a public chat room.")
	b.WriteString(" Reply in one or two short sentences, casual, no tool calls unless asked.\n")
	if cr.RoomID != "" {
		fmt.Fprintf(&b, "Room: %s\n", cr.RoomID)
	}
	if cr.RecentMessages != "" {
		b.WriteString("Recent messages:\n")
		b.WriteString(strings.TrimSpace(cr.RecentMessages))
		b.WriteString("\n")
	}
	if cr.MentionedMessage != "" {
		fmt.Fprintf(&b, "Message to reply to: %s\n", cr.MentionedMessage)
	}
	b.WriteString("</chat_room_reply_context>")
	return b.String()
}

func truncateLines(lines []string, max int) string {
	var kept []string
	for _, l := range lines {
		if strings.TrimSpace(l) != "" {
			kept = append(kept, l)
		}
	}
	if len(kept) == 0 {
		return ""
	}
	if len(kept) <= max {
		return strings.Join(kept, "\n")
	}
	return strings.Join(kept[:max], "\n") + fmt.Sprintf("\n(%d more lines…)", len(kept)-max)
}

func truncateChars(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max]) + "…"
}
