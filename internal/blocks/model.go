package blocks

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/datatypes"
)

// Type names one of the eight block variants.
type Type string

const (
	TypeLink    Type = "link"
	TypeText    Type = "text"
	TypeImage   Type = "image"
	TypeEmbed   Type = "embed"
	TypeSocial  Type = "social"
	TypeSupport Type = "support"
	TypeSignup  Type = "signup"
	TypeContact Type = "contact"
)

// ErrInvalidType is returned for anything outside the eight known variants.
var ErrInvalidType = errors.New("blocks: invalid block type")

// Types lists every block type in editor menu order.
func Types() []Type {
	return []Type{TypeLink, TypeText, TypeImage, TypeEmbed, TypeSocial, TypeSupport, TypeSignup, TypeContact}
}

// ParseType validates a raw type name.
func ParseType(raw string) (Type, error) {
	candidate := Type(strings.ToLower(strings.TrimSpace(raw)))
	for _, known := range Types() {
		if candidate == known {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidType, raw)
}

// Block is a single ordered content unit on a creator page.
type Block struct {
	ID        string         `gorm:"column:id;primaryKey;size:64" json:"id"`
	ProfileID string         `gorm:"column:profile_id;size:64;not null;index:idx_blocks_profile_order,priority:1" json:"profileId"`
	Type      Type           `gorm:"column:type;size:16;not null" json:"type"`
	Enabled   bool           `gorm:"column:enabled;not null" json:"enabled"`
	SortOrder int            `gorm:"column:sort_order;not null;index:idx_blocks_profile_order,priority:2" json:"sortOrder"`
	Data      datatypes.JSON `gorm:"column:data;not null" json:"data"`
	CreatedAt time.Time      `gorm:"column:created_at;not null" json:"createdAt"`
	UpdatedAt time.Time      `gorm:"column:updated_at;not null" json:"updatedAt"`
}

func (Block) TableName() string {
	return "blocks"
}

// Payload decodes the stored data into the variant matching the block type.
func (b Block) Payload() Data {
	return DecodeData(b.Type, b.Data)
}

// Data is implemented by every block payload variant.
type Data interface {
	BlockType() Type
}

type LinkData struct {
	Title    string `json:"title"`
	URL      string `json:"url"`
	Subtitle string `json:"subtitle,omitempty"`
}

type TextData struct {
	Title    string `json:"title,omitempty"`
	Markdown string `json:"markdown"`
}

type ImageData struct {
	URL  string `json:"url"`
	Alt  string `json:"alt,omitempty"`
	Href string `json:"href,omitempty"`
}

type EmbedData struct {
	URL   string `json:"url"`
	Title string `json:"title,omitempty"`
}

// SocialLink is one platform/url pair of a social block.
type SocialLink struct {
	Platform string `json:"platform"`
	URL      string `json:"url"`
}

type SocialData struct {
	Links []SocialLink `json:"links"`
}

type SupportData struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

type SignupData struct {
	Title           string `json:"title"`
	Description     string `json:"description,omitempty"`
	LeadMagnetURL   string `json:"leadMagnetUrl,omitempty"`
	ThankYouMessage string `json:"thankYouMessage,omitempty"`
}

type ContactData struct {
	Title           string `json:"title"`
	Description     string `json:"description,omitempty"`
	ThankYouMessage string `json:"thankYouMessage,omitempty"`
}

func (LinkData) BlockType() Type { return TypeLink }
func (TextData) BlockType() Type { return TypeText }
func (ImageData) BlockType() Type { return TypeImage }
func (EmbedData) BlockType() Type { return TypeEmbed }
func (SocialData) BlockType() Type { return TypeSocial }
func (SupportData) BlockType() Type { return TypeSupport }
func (SignupData) BlockType() Type { return TypeSignup }
func (ContactData) BlockType() Type { return TypeContact }

// DefaultData returns the payload a freshly created block starts with.
func DefaultData(blockType Type) Data {
	switch blockType {
	case TypeLink:
		return LinkData{Title: "New link", URL: "https://example.com"}
	case TypeText:
		return TextData{Title: "About", Markdown: "Write something…"}
	case TypeImage:
		return ImageData{URL: "https://placehold.co/1200x800/png", Alt: "Image"}
	case TypeEmbed:
		return EmbedData{URL: "https://www.youtube.com/watch?v=dQw4w9WgXcQ"}
	case TypeSocial:
		return SocialData{Links: []SocialLink{{Platform: "instagram", URL: "@yourhandle"}}}
	case TypeSupport:
		return SupportData{Title: "Support my work", URL: "https://ko-fi.com/"}
	case TypeSignup:
		return SignupData{Title: "Join my newsletter", Description: "No spam. Unsubscribe anytime."}
	case TypeContact:
		return ContactData{Title: "Contact me", Description: "I read every message."}
	default:
		return nil
	}
}

// EncodeData serializes a payload for storage.
func EncodeData(data Data) (datatypes.JSON, error) {
	if data == nil {
		return nil, ErrInvalidType
	}
	if social, ok := data.(SocialData); ok && social.Links == nil {
		data = SocialData{Links: []SocialLink{}}
	}
	encoded, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(encoded), nil
}

// DecodeData reads stored JSON into the variant for blockType. Unknown fields are
// ignored and malformed payloads decode to the zero variant.
func DecodeData(blockType Type, raw []byte) Data {
	switch blockType {
	case TypeLink:
		var data LinkData
		_ = json.Unmarshal(raw, &data)
		return data
	case TypeText:
		var data TextData
		_ = json.Unmarshal(raw, &data)
		return data
	case TypeImage:
		var data ImageData
		_ = json.Unmarshal(raw, &data)
		return data
	case TypeEmbed:
		var data EmbedData
		_ = json.Unmarshal(raw, &data)
		return data
	case TypeSocial:
		var data SocialData
		if err := json.Unmarshal(raw, &data); err != nil {
			return SocialData{}
		}
		return data
	case TypeSupport:
		var data SupportData
		_ = json.Unmarshal(raw, &data)
		return data
	case TypeSignup:
		var data SignupData
		_ = json.Unmarshal(raw, &data)
		return data
	case TypeContact:
		var data ContactData
		_ = json.Unmarshal(raw, &data)
		return data
	default:
		return nil
	}
}

// FormValues is the read side of submitted editor form fields; url.Values satisfies it.
type FormValues interface {
	Get(key string) string
}

// CoerceForm rebuilds the payload for blockType from editor form fields. Strings are
// trimmed and empty optional fields are dropped.
func CoerceForm(blockType Type, form FormValues) (Data, error) {
	field := func(key string) string {
		return strings.TrimSpace(form.Get(key))
	}
	switch blockType {
	case TypeLink:
		return LinkData{Title: field("title"), URL: field("url"), Subtitle: field("subtitle")}, nil
	case TypeText:
		return TextData{Title: field("title"), Markdown: field("markdown")}, nil
	case TypeImage:
		return ImageData{URL: field("url"), Alt: field("alt"), Href: field("href")}, nil
	case TypeEmbed:
		return EmbedData{URL: field("url"), Title: field("title")}, nil
	case TypeSocial:
		picked := []SocialLink(nil)
		if raw := field("links_json"); raw != "" {
			picked = ParseSocialJSON(raw)
		}
		if len(picked) == 0 {
			picked = ParseSocialLines(field("links"))
		}
		return SocialData{Links: NormalizeSocialLinks(picked)}, nil
	case TypeSupport:
		return SupportData{Title: field("title"), URL: field("url")}, nil
	case TypeSignup:
		return SignupData{
			Title:           field("title"),
			Description:     field("description"),
			LeadMagnetURL:   field("leadMagnetUrl"),
			ThankYouMessage: field("thankYouMessage"),
		}, nil
	case TypeContact:
		return ContactData{
			Title:           field("title"),
			Description:     field("description"),
			ThankYouMessage: field("thankYouMessage"),
		}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidType, blockType)
	}
}
