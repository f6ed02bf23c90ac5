// Package render turns a profile and its blocks into the public HTML page.
package render

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"net/url"
	"strings"

	"github.com/MarcoPoloResearchLab/sundae/internal/blocks"
	"github.com/MarcoPoloResearchLab/sundae/internal/profiles"
)

// LinkMode decides how link blocks point at their destinations.
type LinkMode string

const (
	// LinkModeTracked routes clicks through /r/{id}.
	LinkModeTracked LinkMode = "tracked"
	// LinkModeDirect links straight to the destination and records nothing.
	LinkModeDirect LinkMode = "direct"
)

//go:embed templates/*.html
var templateFiles embed.FS

var errMissingTemplate = errors.New("render: template set is empty")

// Page is everything needed to render one public page.
type Page struct {
	Profile    profiles.Profile
	Blocks     []blocks.Block
	LinkMode   LinkMode
	Preview    bool
	Embed      bool
	TrackViews bool
	Submitted  bool
}

// Renderer executes the embedded page templates.
type Renderer struct {
	templates *template.Template
}

func NewRenderer() (*Renderer, error) {
	templates, err := template.New("").ParseFS(templateFiles, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("render: parse templates: %w", err)
	}
	if templates.Lookup("page") == nil {
		return nil, errMissingTemplate
	}
	return &Renderer{templates: templates}, nil
}

// Render produces the HTML for page.
func (r *Renderer) Render(page Page) ([]byte, error) {
	return r.execute("page", buildPageView(page))
}

// RenderNotFound produces the page shown for unknown handles.
func (r *Renderer) RenderNotFound(handle string) ([]byte, error) {
	return r.execute("notfound", struct{ Handle string }{Handle: handle})
}

func (r *Renderer) execute(name string, data any) ([]byte, error) {
	var buffer bytes.Buffer
	if err := r.templates.ExecuteTemplate(&buffer, name, data); err != nil {
		return nil, fmt.Errorf("render: execute %s: %w", name, err)
	}
	return buffer.Bytes(), nil
}

type pageView struct {
	ProfileID   string
	Handle      string
	DisplayName string
	Bio         string
	AvatarURL   string
	ThemeStyle  template.CSS
	Layout      string
	Effects     string
	Embed       bool
	ShowBadge   bool
	TrackViews  bool
	Submitted   bool
	HasBlocks   bool
	Blocks      []blockView
}

type blockView struct {
	ID   string
	Type blocks.Type

	Title       string
	Subtitle    string
	Description string
	Href        template.URL
	External    bool

	Paragraphs []string

	ImageURL string
	Alt      string

	EmbedSrc string

	Socials []socialView

	FormAction string
	ThankYou   string
	MagnetURL  string
}

type socialView struct {
	Platform string
	Icon     string
	Href     template.URL
}

func buildPageView(page Page) pageView {
	theme := page.Profile.ThemeSettings().WithDefaults()
	effects := page.Profile.ThemeSettings().Effects
	if effects == "" {
		effects = "full"
		if page.Embed {
			effects = "minimal"
		}
	}
	mode := page.LinkMode
	if mode != LinkModeDirect {
		mode = LinkModeTracked
	}

	view := pageView{
		ProfileID:   page.Profile.ID,
		Handle:      page.Profile.Handle,
		DisplayName: page.Profile.DisplayName,
		Bio:         page.Profile.BioText(),
		AvatarURL:   page.Profile.AvatarURLText(),
		ThemeStyle:  ThemeStyle(theme),
		Layout:      theme.Layout,
		Effects:     effects,
		Embed:       page.Embed,
		ShowBadge:   page.Preview,
		TrackViews:  page.TrackViews && !page.Preview,
		Submitted:   page.Submitted,
	}
	for _, block := range page.Blocks {
		if !block.Enabled {
			continue
		}
		view.HasBlocks = true
		if rendered, ok := buildBlockView(block, page.Profile.ID, mode, page.Submitted); ok {
			view.Blocks = append(view.Blocks, rendered)
		}
	}
	return view
}

func buildBlockView(block blocks.Block, profileID string, mode LinkMode, submitted bool) (blockView, bool) {
	view := blockView{ID: block.ID, Type: block.Type}
	switch data := block.Payload().(type) {
	case blocks.LinkData:
		view.Title = fallback(data.Title, "Link")
		if mode == LinkModeDirect {
			href, ok := safeHref(data.URL)
			if !ok {
				return blockView{}, false
			}
			view.Href = href
			view.External = true
			view.Subtitle = fallback(data.Subtitle, data.URL)
			return view, true
		}
		view.Href = template.URL("/r/" + url.PathEscape(block.ID))
		view.Subtitle = fallback(data.Subtitle, hostOf(data.URL))
		return view, true
	case blocks.TextData:
		view.Title = data.Title
		view.Paragraphs = strings.Split(data.Markdown, "\n")
		return view, true
	case blocks.ImageData:
		view.ImageURL = data.URL
		view.Alt = fallback(data.Alt, "Image")
		if href, ok := safeHref(data.Href); ok {
			view.Href = href
		}
		return view, true
	case blocks.EmbedData:
		view.Title = fallback(data.Title, "Embed")
		view.EmbedSrc, _ = EmbedSource(data.URL)
		return view, true
	case blocks.SocialData:
		for _, link := range data.Links {
			platform := strings.TrimSpace(link.Platform)
			href, ok := safeHref(link.URL)
			if platform == "" || !ok {
				continue
			}
			view.Socials = append(view.Socials, socialView{Platform: platform, Icon: socialIcon(platform), Href: href})
		}
		return view, len(view.Socials) > 0
	case blocks.SupportData:
		href, ok := safeHref(data.URL)
		if !ok {
			return blockView{}, false
		}
		view.Title = fallback(data.Title, "Support")
		view.Href = href
		return view, true
	case blocks.SignupData:
		view.Title = fallback(data.Title, "Sign up")
		view.Description = data.Description
		view.FormAction = formAction(profileID, "signup")
		if submitted {
			view.ThankYou = fallback(data.ThankYouMessage, "Thanks for subscribing!")
			if _, ok := safeHref(data.LeadMagnetURL); ok {
				view.MagnetURL = data.LeadMagnetURL
			}
		}
		return view, true
	case blocks.ContactData:
		view.Title = fallback(data.Title, "Contact")
		view.Description = data.Description
		view.FormAction = formAction(profileID, "contact")
		if submitted {
			view.ThankYou = fallback(data.ThankYouMessage, "Thanks! Your message was sent.")
		}
		return view, true
	default:
		return blockView{}, false
	}
}

// EmbedSource maps a YouTube, youtu.be, or Vimeo URL to its player URL.
func EmbedSource(raw string) (string, bool) {
	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || parsed.Host == "" {
		return "", false
	}
	host := strings.ToLower(parsed.Hostname())
	switch {
	case strings.Contains(host, "youtube.com"):
		videoID := parsed.Query().Get("v")
		if videoID == "" {
			return "", false
		}
		return "https://www.youtube.com/embed/" + url.PathEscape(videoID), true
	case host == "youtu.be":
		videoID := strings.TrimPrefix(parsed.Path, "/")
		if videoID == "" {
			return "", false
		}
		return "https://www.youtube.com/embed/" + videoID, true
	case strings.Contains(host, "vimeo.com"):
		for _, segment := range strings.Split(parsed.Path, "/") {
			if segment != "" {
				return "https://player.vimeo.com/video/" + url.PathEscape(segment), true
			}
		}
		return "", false
	default:
		return "", false
	}
}

func formAction(profileID, kind string) string {
	query := url.Values{}
	query.Set("profileId", profileID)
	query.Set("kind", kind)
	return "/api/leads?" + query.Encode()
}

// safeHref accepts http(s), mailto, and tel links plus site-relative paths.
func safeHref(raw string) (template.URL, bool) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return "", false
	}
	if strings.HasPrefix(value, "/") && !strings.HasPrefix(value, "//") {
		return template.URL(value), true
	}
	parsed, err := url.Parse(value)
	if err != nil {
		return "", false
	}
	switch strings.ToLower(parsed.Scheme) {
	case "http", "https":
		if parsed.Host == "" {
			return "", false
		}
		return template.URL(value), true
	case "mailto", "tel":
		return template.URL(value), true
	default:
		return "", false
	}
}

func hostOf(raw string) string {
	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(parsed.Hostname(), "www.")
}

func socialIcon(platform string) string {
	lowered := strings.ToLower(platform)
	switch {
	case strings.Contains(lowered, "instagram"):
		return "IG"
	case strings.Contains(lowered, "youtube"):
		return "YT"
	case strings.Contains(lowered, "twitch"):
		return "TW"
	case strings.Contains(lowered, "twitter"), lowered == "x":
		return "X"
	case strings.Contains(lowered, "email"):
		return "@"
	case strings.Contains(lowered, "phone"):
		return "☎"
	case strings.Contains(lowered, "music"), strings.Contains(lowered, "spotify"):
		return "♪"
	default:
		return "↗"
	}
}

func fallback(value, alternative string) string {
	if strings.TrimSpace(value) == "" {
		return alternative
	}
	return value
}
