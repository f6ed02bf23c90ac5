package render

import (
	"html/template"
	"strings"

	"github.com/MarcoPoloResearchLab/sundae/internal/profiles"
)

const maxThemeValueLength = 2048

var forbiddenCSSFragments = []string{";", "{", "}", "<", ">", "\"", "'", "\\", "`", "/*", "*/", "url(", "expression", "@import", "javascript:"}

// ThemeStyle renders the creator CSS custom properties for a theme. Values that
// could escape the declaration fall back to the defaults.
func ThemeStyle(theme profiles.Theme) template.CSS {
	declarations := []struct {
		property string
		value    string
		fallback string
	}{
		{"--creator-bg", theme.Background, profiles.DefaultTheme.Background},
		{"--creator-card", theme.CardBackground, profiles.DefaultTheme.CardBackground},
		{"--creator-text", theme.Text, profiles.DefaultTheme.Text},
		{"--creator-muted", theme.MutedText, profiles.DefaultTheme.MutedText},
		{"--creator-btn-bg", theme.ButtonBackground, profiles.DefaultTheme.ButtonBackground},
		{"--creator-btn-text", theme.ButtonText, profiles.DefaultTheme.ButtonText},
		{"--creator-accent", theme.Accent, profiles.DefaultTheme.Accent},
	}
	var builder strings.Builder
	for _, declaration := range declarations {
		value, ok := SanitizeCSSValue(declaration.value)
		if !ok {
			value = declaration.fallback
		}
		builder.WriteString(declaration.property)
		builder.WriteString(": ")
		builder.WriteString(value)
		builder.WriteString("; ")
	}
	return template.CSS(strings.TrimSpace(builder.String()))
}

// SanitizeCSSValue trims a theme value and rejects anything that is not a plain CSS value.
func SanitizeCSSValue(raw string) (string, bool) {
	value := strings.TrimSpace(raw)
	if value == "" || len(value) > maxThemeValueLength {
		return "", false
	}
	lowered := strings.ToLower(value)
	for _, fragment := range forbiddenCSSFragments {
		if strings.Contains(lowered, fragment) {
			return "", false
		}
	}
	for _, r := range value {
		if r < 0x20 || r == 0x7f {
			return "", false
		}
	}
	return value, true
}
