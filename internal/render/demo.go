package render

import (
	"encoding/json"

	"github.com/MarcoPoloResearchLab/sundae/internal/blocks"
	"github.com/MarcoPoloResearchLab/sundae/internal/profiles"
	"gorm.io/datatypes"
)

// DemoProfileID is the fixed id of the built-in demo page.
const DemoProfileID = "00000000-0000-0000-0000-000000000000"

// DemoPage returns the static showcase page served at /demo. It links directly and
// records no analytics.
func DemoPage() Page {
	bio := "A real Sundae page: links, embeds, lead capture, and click tracking."
	avatar := "https://api.dicebear.com/9.x/shapes/svg?seed=sundae"
	profile := profiles.Profile{
		ID:          DemoProfileID,
		Handle:      "demo",
		DisplayName: "Demo Creator",
		Bio:         &bio,
		AvatarURL:   &avatar,
	}
	if preset, err := profiles.FindPreset("vanilla"); err == nil {
		profile.Theme = encodeTheme(preset.Theme)
	}

	items := []struct {
		id   string
		data blocks.Data
	}{
		{"demo-link-1", blocks.LinkData{Title: "Watch the latest video", URL: "https://www.youtube.com/watch?v=dQw4w9WgXcQ", Subtitle: "new upload"}},
		{"demo-social-1", blocks.SocialData{Links: []blocks.SocialLink{
			{Platform: "instagram", URL: "https://instagram.com"},
			{Platform: "youtube", URL: "https://youtube.com"},
			{Platform: "x", URL: "https://x.com"},
		}}},
		{"demo-image-1", blocks.ImageData{URL: "https://placehold.co/1200x750/png?text=Sundae", Alt: "A colorful demo banner", Href: "https://sundae.to"}},
		{"demo-text-1", blocks.TextData{Title: "About", Markdown: "I share weekly behind-the-scenes on building products.\nWant updates? Subscribe below."}},
		{"demo-signup-1", blocks.SignupData{Title: "Join my newsletter", Description: "One email a week. No spam. Unsubscribe anytime."}},
		{"demo-contact-1", blocks.ContactData{Title: "Contact", Description: "Collabs, speaking, brand work."}},
		{"demo-support-1", blocks.SupportData{Title: "Tip jar", URL: "https://ko-fi.com"}},
	}

	demoBlocks := make([]blocks.Block, 0, len(items))
	for index, item := range items {
		encoded, err := blocks.EncodeData(item.data)
		if err != nil {
			continue
		}
		demoBlocks = append(demoBlocks, blocks.Block{
			ID:        item.id,
			ProfileID: DemoProfileID,
			Type:      item.data.BlockType(),
			Enabled:   true,
			SortOrder: index + 1,
			Data:      encoded,
		})
	}

	return Page{Profile: profile, Blocks: demoBlocks, LinkMode: LinkModeDirect}
}

func encodeTheme(theme profiles.Theme) datatypes.JSON {
	encoded, err := json.Marshal(theme)
	if err != nil {
		return nil
	}
	return datatypes.JSON(encoded)
}
