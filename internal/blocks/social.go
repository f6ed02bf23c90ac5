package blocks

import (
	"encoding/json"
	"regexp"
	"strings"
)

// MaxSocialLinks caps the number of rows a social block keeps.
const MaxSocialLinks = 12

var (
	absoluteURLPattern  = regexp.MustCompile(`(?i)^https?://`)
	wwwPrefixPattern    = regexp.MustCompile(`(?i)^www\.`)
	mailtoPattern       = regexp.MustCompile(`(?i)^mailto:`)
	telPattern          = regexp.MustCompile(`(?i)^tel:`)
	nonPhonePattern     = regexp.MustCompile(`[^\d+]`)
	hostnamePattern     = regexp.MustCompile(`^[^/\s]+\.[^/\s]+`)
	socialLineSeparator = regexp.MustCompile(`[,\s]+`)
)

// NormalizeSocialURL turns a handle, address, or partial URL into a clickable URL for
// the platform. It reports false when nothing usable can be produced.
func NormalizeSocialURL(platform, raw string) (string, bool) {
	name := strings.ToLower(strings.TrimSpace(platform))
	value := strings.TrimSpace(raw)
	if name == "" || value == "" {
		return "", false
	}

	if absoluteURLPattern.MatchString(value) {
		return value, true
	}
	if wwwPrefixPattern.MatchString(value) {
		return "https://" + value, true
	}

	switch name {
	case "email":
		if mailtoPattern.MatchString(value) {
			return value, true
		}
		if strings.Contains(value, "@") {
			return "mailto:" + value, true
		}
		return "", false
	case "phone":
		if telPattern.MatchString(value) {
			return value, true
		}
		digits := nonPhonePattern.ReplaceAllString(value, "")
		if digits == "" {
			return "", false
		}
		return "tel:" + digits, true
	}

	handle := strings.TrimSpace(strings.TrimPrefix(value, "@"))
	if handle == "" {
		return "", false
	}

	switch name {
	case "instagram":
		return "https://instagram.com/" + handle, true
	case "x", "twitter":
		return "https://x.com/" + handle, true
	case "tiktok":
		return "https://www.tiktok.com/@" + handle, true
	case "twitch":
		return "https://www.twitch.tv/" + handle, true
	case "youtube":
		if !strings.HasPrefix(handle, "@") {
			handle = "@" + handle
		}
		return "https://www.youtube.com/" + handle, true
	case "website":
		if hostnamePattern.MatchString(value) {
			return "https://" + value, true
		}
	}

	return value, true
}

// NormalizeSocialLinks resolves every row's URL, dropping rows that cannot be resolved,
// and keeps at most MaxSocialLinks rows in input order.
func NormalizeSocialLinks(links []SocialLink) []SocialLink {
	normalized := make([]SocialLink, 0, len(links))
	for _, link := range links {
		platform := strings.TrimSpace(link.Platform)
		resolved, ok := NormalizeSocialURL(link.Platform, link.URL)
		if platform == "" || !ok {
			continue
		}
		normalized = append(normalized, SocialLink{Platform: platform, URL: resolved})
		if len(normalized) == MaxSocialLinks {
			break
		}
	}
	return normalized
}

// ParseSocialLines reads "platform, url" or "platform url" rows, one per line.
func ParseSocialLines(text string) []SocialLink {
	links := make([]SocialLink, 0)
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		parts := socialLineSeparator.Split(line, -1)
		link := SocialLink{Platform: parts[0], URL: strings.Join(parts[1:], " ")}
		if link.Platform == "" || link.URL == "" {
			continue
		}
		links = append(links, link)
		if len(links) == MaxSocialLinks {
			break
		}
	}
	return links
}

// ParseSocialJSON reads the structured editor field: an array of {platform, url}
// objects. Anything that is not such an array yields no rows.
func ParseSocialJSON(raw string) []SocialLink {
	var rows []json.RawMessage
	if err := json.Unmarshal([]byte(raw), &rows); err != nil {
		return nil
	}
	links := make([]SocialLink, 0, len(rows))
	for _, row := range rows {
		var fields map[string]any
		if err := json.Unmarshal(row, &fields); err != nil || fields == nil {
			continue
		}
		platform, _ := fields["platform"].(string)
		address, _ := fields["url"].(string)
		link := SocialLink{Platform: strings.TrimSpace(platform), URL: strings.TrimSpace(address)}
		if link.Platform == "" || link.URL == "" {
			continue
		}
		links = append(links, link)
		if len(links) == MaxSocialLinks {
			break
		}
	}
	return links
}
