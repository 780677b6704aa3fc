package tools

import (
	"context"
	"fmt"
	"math/rand/v2"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mattn/go-runewidth"
)

// Builtins returns the default tool set. now is used by the server-side
// time tool and seeds the aquarium.
func Builtins(now func() time.Time) []Definition {
	return []Definition{
		launchApp(),
		closeApp(),
		ipodControl(),
		textEditSearchReplace(),
		textEditInsertText(),
		textEditNewFile(),
		generateHTML(),
		aquarium(now),
		listApps(),
		getTime(now),
	}
}

// NewDefaultRegistry builds a Registry from Builtins.
func NewDefaultRegistry(now func() time.Time) (*Registry, error) {
	return NewRegistry(Builtins(now)...)
}

func launchApp() Definition {
	ie := FieldEquals("id", "internet-explorer")
	return Definition{
		Tool: mcp.NewTool("launchApp",
			mcp.WithDescription("Launch an application on the desktop. For Internet Explorer, url and year may be given together to open a page as it looked in that year."),
			mcp.WithString("id", mcp.Required(), mcp.Enum(appIDs()...), mcp.Description("The app to launch")),
			mcp.WithString("url", mcp.Description("Internet Explorer only: page to open")),
			mcp.WithString("year", mcp.Description(`Internet Explorer only: year to time travel to, or "current"`)),
		),
		Rules: []Rule{
			AllowedOnlyWhen(ie, "url", "year"),
			RequiredTogether("url", "year"),
			Custom("valid_year", "year", func(in map[string]any) string {
				y, ok := in["year"].(string)
				if !ok || validYear(y) {
					return ""
				}
				return `year must be "current" or a year between 1 and 9999`
			}),
		},
	}
}

func validYear(y string) bool {
	if y == "current" {
		return true
	}
	n, err := strconv.Atoi(strings.TrimSpace(y))
	return err == nil && n >= 1 && n <= 9999
}

func closeApp() Definition {
	return Definition{
		Tool: mcp.NewTool("closeApp",
			mcp.WithDescription("Close an application that is open on the desktop."),
			mcp.WithString("id", mcp.Required(), mcp.Enum(appIDs()...), mcp.Description("The app to close")),
		),
	}
}

func ipodControl() Definition {
	transport := FieldEquals("action", "toggle", "play", "pause", "next", "previous")
	return Definition{
		Tool: mcp.NewTool("ipodControl",
			mcp.WithDescription("Control music playback in the iPod app. Use playKnown for songs already in the library and addAndPlay with a YouTube video id for new songs."),
			mcp.WithString("action", mcp.Required(),
				mcp.Enum("toggle", "play", "pause", "playKnown", "addAndPlay", "next", "previous")),
			mcp.WithString("id", mcp.Description("YouTube video id or library track id")),
			mcp.WithString("title", mcp.Description("Track title to search the library for")),
			mcp.WithString("artist", mcp.Description("Artist to search the library for")),
		),
		Rules: []Rule{
			RequiredWhen(FieldEquals("action", "addAndPlay"), "id"),
			AnyRequiredWhen(FieldEquals("action", "playKnown"), "id", "title", "artist"),
			ForbiddenWhen(transport, "id", "title", "artist"),
		},
	}
}

func textEditSearchReplace() Definition {
	return Definition{
		Tool: mcp.NewTool("textEditSearchReplace",
			mcp.WithDescription("Find and replace text in an open TextEdit document."),
			mcp.WithString("search", mcp.Required(), mcp.MinLength(1)),
			mcp.WithString("replace", mcp.Required()),
			mcp.WithBoolean("isRegex", mcp.Description("Treat search as a regular expression")),
			mcp.WithString("instanceId", mcp.Description("Target window; defaults to the foreground document")),
		),
		Rules: []Rule{
			Custom("valid_regex", "search", func(in map[string]any) string {
				if isRegex, _ := in["isRegex"].(bool); !isRegex {
					return ""
				}
				s, _ := in["search"].(string)
				if _, err := regexp.Compile(s); err != nil {
					return fmt.Sprintf("search is not a valid regular expression: %v", err)
				}
				return ""
			}),
		},
	}
}

func textEditInsertText() Definition {
	return Definition{
		Tool: mcp.NewTool("textEditInsertText",
			mcp.WithDescription("Insert text at the start or end of an open TextEdit document."),
			mcp.WithString("text", mcp.Required(), mcp.MinLength(1)),
			mcp.WithString("position", mcp.Enum("start", "end"), mcp.Description("Defaults to end")),
			mcp.WithString("instanceId", mcp.Description("Target window; defaults to the foreground document")),
		),
	}
}

func textEditNewFile() Definition {
	return Definition{
		Tool: mcp.NewTool("textEditNewFile",
			mcp.WithDescription("Create a new TextEdit document, optionally with a title and initial content."),
			mcp.WithString("title"),
			mcp.WithString("content"),
		),
	}
}

func generateHTML() Definition {
	return Definition{
		Tool: mcp.NewTool("generateHtml",
			mcp.WithDescription("Render a self-contained HTML applet in the Applet Viewer. Use inline CSS and scripts only."),
			mcp.WithString("html", mcp.Required()),
			mcp.WithString("title", mcp.MaxLength(80)),
		),
		Rules: []Rule{
			Custom("non_blank", "html", func(in map[string]any) string {
				if s, _ := in["html"].(string); strings.TrimSpace(s) == "" {
					return "html must not be blank"
				}
				return ""
			}),
		},
	}
}

const (
	tankWidth  = 16
	tankHeight = 4
)

var (
	fishKinds  = []string{"🐠", "🐟", "🐡", "🦈", "🐙", "🦐"}
	floorKinds = []string{"🪸", "🌿", "🪨", "🐚"}
)

// aquarium draws the tank on the server so every client renders the same
// scene. Rows are padded to a fixed display width.
func aquarium(now func() time.Time) Definition {
	return Definition{
		Tool: mcp.NewTool("aquarium",
			mcp.WithDescription("Show a small animated emoji aquarium in the chat."),
			mcp.WithNumber("fish", mcp.Min(1), mcp.Max(8), mcp.Description("How many fish to draw, default 4")),
		),
		Executor: func(ctx context.Context, in map[string]any) (any, error) {
			n := 4
			if f, ok := in["fish"].(float64); ok {
				n = int(f)
			}
			rng := rand.New(rand.NewPCG(uint64(now().UnixNano()), uint64(n)))

			slots := tankWidth / 2
			water := make([][]string, tankHeight)
			for i := range water {
				water[i] = slices.Repeat([]string{"  "}, slots)
			}
			for _, cell := range rng.Perm(tankHeight * slots)[:n] {
				water[cell/slots][cell%slots] = fishKinds[rng.IntN(len(fishKinds))]
			}

			rows := make([]string, 0, tankHeight+1)
			for _, r := range water {
				rows = append(rows, runewidth.FillRight(strings.Join(r, ""), tankWidth))
			}
			floor := make([]string, slots)
			for i := range floor {
				floor[i] = floorKinds[rng.IntN(len(floorKinds))]
			}
			rows = append(rows, runewidth.FillRight(strings.Join(floor, ""), tankWidth))

			return map[string]any{
				"fish":  n,
				"rows":  rows,
				"width": tankWidth,
			}, nil
		},
	}
}

func listApps() Definition {
	return Definition{
		Tool: mcp.NewTool("listApps",
			mcp.WithDescription("List the applications installed on the desktop."),
		),
		Executor: func(ctx context.Context, _ map[string]any) (any, error) {
			return map[string]any{"apps": AppCatalog}, nil
		},
	}
}

func getTime(now func() time.Time) Definition {
	return Definition{
		Tool: mcp.NewTool("getTime",
			mcp.WithDescription("Get the current date and time, optionally in an IANA timezone such as Asia/Tokyo."),
			mcp.WithString("timezone"),
		),
		Rules: []Rule{
			Custom("valid_timezone", "timezone", func(in map[string]any) string {
				tz, ok := in["timezone"].(string)
				if !ok {
					return ""
				}
				if _, err := time.LoadLocation(tz); err != nil {
					return fmt.Sprintf("unknown timezone %q", tz)
				}
				return ""
			}),
		},
		Executor: func(ctx context.Context, in map[string]any) (any, error) {
			loc := time.UTC
			if tz, ok := in["timezone"].(string); ok {
				l, err := time.LoadLocation(tz)
				if err != nil {
					return nil, err
				}
				loc = l
			}
			t := now().In(loc)
			return map[string]string{
				"iso":       t.Format(time.RFC3339),
				"timezone":  loc.String(),
				"formatted": t.Format("Monday, January 2, 2006 3:04 PM"),
			}, nil
		},
	}
}
