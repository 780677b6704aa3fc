package types

// SystemState is the advisory snapshot of the desktop the client sends
// with each chat request. Every field is optional.
type SystemState struct {
	RunningApps   *RunningApps     `json:"runningApps,omitempty"`
	Media         *MediaState      `json:"media,omitempty"`
	Browser       *BrowserState    `json:"browser,omitempty"`
	Documents     []Document       `json:"documents,omitempty"`
	UserLocalTime *LocalTime       `json:"userLocalTime,omitempty"`
	ChatRoom      *ChatRoomContext `json:"chatRoomContext,omitempty"`
}

type RunningApps struct {
	Foreground *AppInstance  `json:"foreground,omitempty"`
	Background []AppInstance `json:"background,omitempty"`
}

type AppInstance struct {
	InstanceID string `json:"instanceId,omitempty"`
	AppID      string `json:"appId"`
	Title      string `json:"title,omitempty"`
}

type MediaState struct {
	Title     string   `json:"title,omitempty"`
	Artist    string   `json:"artist,omitempty"`
	IsPlaying bool     `json:"isPlaying"`
	Lyrics    []string `json:"lyrics,omitempty"`
}

// BrowserState describes the simulated Internet Explorer window. Year is
// the time-travel year or "current".
type BrowserState struct {
	URL   string `json:"url,omitempty"`
	Year  string `json:"year,omitempty"`
	Title string `json:"title,omitempty"`
	HTML  string `json:"html,omitempty"`
}

type Document struct {
	Name       string `json:"name"`
	Path       string `json:"path,omitempty"`
	InstanceID string `json:"instanceId,omitempty"`
	Content    string `json:"content,omitempty"`
}

type LocalTime struct {
	TimeString string `json:"timeString,omitempty"`
	DateString string `json:"dateString,omitempty"`
	TimeZone   string `json:"timeZone,omitempty"`
}

type ChatRoomContext struct {
	RoomID           string `json:"roomId,omitempty"`
	RecentMessages   string `json:"recentMessages,omitempty"`
	MentionedMessage string `json:"mentionedMessage,omitempty"`
}
