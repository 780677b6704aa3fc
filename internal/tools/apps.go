package tools

// App is one program installed on the simulated desktop.
type App struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// AppCatalog is the fixed set of launchable apps.
var AppCatalog = []App{
	{ID: "finder", Name: "Finder", Description: "browse files and folders"},
	{ID: "soundboard", Name: "Soundboard", Description: "record and play short sound clips"},
	{ID: "internet-explorer", Name: "Internet Explorer", Description: "browse the web, including time travel to past and future years"},
	{ID: "chats", Name: "Chats", Description: "chat with the assistant and in public rooms"},
	{ID: "textedit", Name: "TextEdit", Description: "write and edit documents"},
	{ID: "paint", Name: "MacPaint", Description: "draw bitmap pictures"},
	{ID: "photo-booth", Name: "Photo Booth", Description: "take photos with camera effects"},
	{ID: "minesweeper", Name: "Minesweeper", Description: "classic mine clearing game"},
	{ID: "videos", Name: "Videos", Description: "watch a playlist of videos"},
	{ID: "ipod", Name: "iPod", Description: "play music with synced lyrics"},
	{ID: "synth", Name: "Synth", Description: "virtual synthesizer keyboard"},
	{ID: "terminal", Name: "Terminal", Description: "command line shell for the desktop"},
	{ID: "applet-viewer", Name: "Applet Viewer", Description: "run generated HTML applets"},
	{ID: "control-panels", Name: "Control Panels", Description: "system settings"},
}

func appIDs() []string {
	ids := make([]string, len(AppCatalog))
	for i, a := range AppCatalog {
		ids[i] = a.ID
	}
	return ids
}
