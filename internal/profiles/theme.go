package profiles

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"gorm.io/datatypes"
)

var ErrUnknownPreset = errors.New("profiles: unknown theme preset")

// Theme is the typed view of a profile's free-form theme object.
type Theme struct {
	Background       string `json:"background,omitempty"`
	CardBackground   string `json:"cardBackground,omitempty"`
	Text             string `json:"text,omitempty"`
	MutedText        string `json:"mutedText,omitempty"`
	ButtonBackground string `json:"buttonBackground,omitempty"`
	ButtonText       string `json:"buttonText,omitempty"`
	Accent           string `json:"accent,omitempty"`
	Layout           string `json:"layout,omitempty"`
	Effects          string `json:"effects,omitempty"`
}

// ThemeInput carries the settings form; empty fields leave the stored value alone.
type ThemeInput struct {
	Background       string
	Effects          string
	Layout           string
	CardBackground   string
	Text             string
	MutedText        string
	ButtonBackground string
	ButtonText       string
	Accent           string
}

// Preset is a named color scheme applied over the existing theme.
type Preset struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Theme Theme  `json:"theme"`
}

const paperGridBackground = "radial-gradient(860px 560px at 10% 8%, oklch(0.86 0.08 245 / 26%), transparent 62%), " +
	"radial-gradient(720px 520px at 88% 10%, oklch(0.86 0.12 80 / 18%), transparent 64%), " +
	"radial-gradient(680px 520px at 72% 86%, oklch(0.74 0.1 300 / 12%), transparent 60%), " +
	"linear-gradient(180deg, oklch(0.995 0.005 255), oklch(0.965 0.01 255))"

// DefaultTheme holds the values rendered when a profile leaves a key unset.
var DefaultTheme = Theme{
	Background:       paperGridBackground,
	CardBackground:   "oklch(0.99 0.01 250 / 96%)",
	Text:             "oklch(0.18 0.02 265)",
	MutedText:        "oklch(0.46 0.02 265)",
	ButtonBackground: "oklch(0.56 0.2 248)",
	ButtonText:       "oklch(0.98 0 0)",
	Accent:           "oklch(0.86 0.12 80)",
	Layout:           "default",
	Effects:          "full",
}

var presets = []Preset{
	{
		ID:   "vanilla",
		Name: "Paper Grid",
		Theme: Theme{
			Background:       paperGridBackground,
			CardBackground:   "oklch(0.99 0.01 250 / 96%)",
			Text:             "oklch(0.18 0.02 265)",
			MutedText:        "oklch(0.46 0.02 265)",
			ButtonBackground: "oklch(0.56 0.2 248)",
			ButtonText:       "oklch(0.98 0 0)",
			Accent:           "oklch(0.86 0.12 80)",
		},
	},
	{
		ID:   "strawberry-night",
		Name: "Midnight Neon",
		Theme: Theme{
			Background: "radial-gradient(900px 560px at 16% 10%, oklch(0.6 0.2 285 / 18%), transparent 60%), " +
				"radial-gradient(760px 520px at 86% 16%, oklch(0.62 0.22 255 / 20%), transparent 62%), " +
				"linear-gradient(180deg, oklch(0.12 0.02 265), oklch(0.09 0.02 265))",
			CardBackground:   "oklch(0.24 0.02 265 / 92%)",
			Text:             "oklch(0.98 0 0)",
			MutedText:        "oklch(0.98 0 0 / 72%)",
			ButtonBackground: "oklch(0.64 0.22 255)",
			ButtonText:       "oklch(0.98 0 0)",
			Accent:           "oklch(0.76 0.2 320)",
		},
	},
	{
		ID:   "mint-chip",
		Name: "Lime Fog",
		Theme: Theme{
			Background: "radial-gradient(860px 560px at 12% 18%, oklch(0.86 0.06 30 / 18%), transparent 62%), " +
				"radial-gradient(720px 520px at 88% 18%, oklch(0.8 0.1 210 / 16%), transparent 64%), " +
				"linear-gradient(180deg, oklch(0.995 0.005 255), oklch(0.965 0.01 255))",
			CardBackground:   "oklch(0.99 0.01 240 / 94%)",
			Text:             "oklch(0.18 0.02 265)",
			MutedText:        "oklch(0.46 0.02 265)",
			ButtonBackground: "oklch(0.62 0.18 30)",
			ButtonText:       "oklch(0.98 0 0)",
			Accent:           "oklch(0.72 0.14 210)",
		},
	},
	{
		ID:   "blueberry-soda",
		Name: "Ink Soda",
		Theme: Theme{
			Background: "radial-gradient(900px 560px at 16% 14%, oklch(0.62 0.18 245 / 22%), transparent 62%), " +
				"radial-gradient(760px 520px at 86% 22%, oklch(0.76 0.16 60 / 12%), transparent 64%), " +
				"linear-gradient(180deg, oklch(0.11 0.02 265), oklch(0.08 0.02 265))",
			CardBackground:   "oklch(0.22 0.02 265 / 92%)",
			Text:             "oklch(0.98 0 0)",
			MutedText:        "oklch(0.98 0 0 / 72%)",
			ButtonBackground: "oklch(0.66 0.2 245)",
			ButtonText:       "oklch(0.98 0 0)",
			Accent:           "oklch(0.84 0.12 80)",
		},
	},
}

// Presets lists the built-in color schemes in menu order.
func Presets() []Preset {
	return append([]Preset(nil), presets...)
}

// FindPreset looks up a preset by id.
func FindPreset(id string) (Preset, error) {
	for _, preset := range presets {
		if preset.ID == strings.TrimSpace(id) {
			return preset, nil
		}
	}
	return Preset{}, fmt.Errorf("%w: %q", ErrUnknownPreset, id)
}

// DecodeTheme reads a stored theme; anything that is not a JSON object yields an empty Theme.
func DecodeTheme(raw []byte) Theme {
	var theme Theme
	if len(raw) == 0 {
		return theme
	}
	if err := json.Unmarshal(raw, &theme); err != nil {
		return Theme{}
	}
	return theme
}

// WithDefaults fills unset keys from DefaultTheme.
func (t Theme) WithDefaults() Theme {
	pick := func(value, fallback string) string {
		if strings.TrimSpace(value) == "" {
			return fallback
		}
		return value
	}
	return Theme{
		Background:       pick(t.Background, DefaultTheme.Background),
		CardBackground:   pick(t.CardBackground, DefaultTheme.CardBackground),
		Text:             pick(t.Text, DefaultTheme.Text),
		MutedText:        pick(t.MutedText, DefaultTheme.MutedText),
		ButtonBackground: pick(t.ButtonBackground, DefaultTheme.ButtonBackground),
		ButtonText:       pick(t.ButtonText, DefaultTheme.ButtonText),
		Accent:           pick(t.Accent, DefaultTheme.Accent),
		Layout:           pick(t.Layout, DefaultTheme.Layout),
		Effects:          pick(t.Effects, DefaultTheme.Effects),
	}
}

// mergeTheme overlays updates on the stored object, keeping keys it does not know about.
func mergeTheme(stored []byte, updates map[string]string) (datatypes.JSON, error) {
	object := map[string]any{}
	if len(stored) > 0 {
		if err := json.Unmarshal(stored, &object); err != nil || object == nil {
			object = map[string]any{}
		}
	}
	for key, value := range updates {
		object[key] = value
	}
	encoded, err := json.Marshal(object)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(encoded), nil
}

func (input ThemeInput) updates() map[string]string {
	updates := map[string]string{}
	set := func(key, value string) {
		if value = strings.TrimSpace(value); value != "" {
			updates[key] = value
		}
	}
	set("background", input.Background)
	set("cardBackground", input.CardBackground)
	set("text", input.Text)
	set("mutedText", input.MutedText)
	set("buttonBackground", input.ButtonBackground)
	set("buttonText", input.ButtonText)
	set("accent", input.Accent)
	switch effects := strings.TrimSpace(input.Effects); effects {
	case "full", "minimal":
		updates["effects"] = effects
	}
	switch layout := strings.TrimSpace(input.Layout); layout {
	case "default", "showcase":
		updates["layout"] = layout
	}
	return updates
}

func (t Theme) updates() map[string]string {
	return ThemeInput{
		Background:       t.Background,
		CardBackground:   t.CardBackground,
		Text:             t.Text,
		MutedText:        t.MutedText,
		ButtonBackground: t.ButtonBackground,
		ButtonText:       t.ButtonText,
		Accent:           t.Accent,
		Layout:           t.Layout,
		Effects:          t.Effects,
	}.updates()
}
