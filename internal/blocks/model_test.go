package blocks

import (
	"errors"
	"testing"
)

func TestDefaultDataCoversEveryType(t *testing.T) {
	for _, blockType := range Types() {
		data := DefaultData(blockType)
		if data == nil {
			t.Fatalf("no default payload for %s", blockType)
		}
		if data.BlockType() != blockType {
			t.Fatalf("default for %s reports type %s", blockType, data.BlockType())
		}
	}
	link := DefaultData(TypeLink).(LinkData)
	if link.Title != "New link" || link.URL != "https://example.com" {
		t.Fatalf("unexpected link default: %+v", link)
	}
}

func TestParseTypeRejectsUnknownNames(t *testing.T) {
	if parsed, err := ParseType(" Signup "); err != nil || parsed != TypeSignup {
		t.Fatalf("expected signup, got %q (%v)", parsed, err)
	}
	if _, err := ParseType("carousel"); !errors.Is(err, ErrInvalidType) {
		t.Fatalf("expected ErrInvalidType, got %v", err)
	}
}

func TestCoerceFormTrimsAndDropsEmptyOptionals(t *testing.T) {
	data, err := CoerceForm(TypeLink, form("title", "  My Link ", "url", " https://example.com/?e2e=1 ", "subtitle", "   ", "extra", "ignored"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	link, ok := data.(LinkData)
	if !ok {
		t.Fatalf("expected LinkData, got %T", data)
	}
	if link != (LinkData{Title: "My Link", URL: "https://example.com/?e2e=1"}) {
		t.Fatalf("unexpected link payload: %+v", link)
	}

	encoded, err := EncodeData(link)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	if string(encoded) != `{"title":"My Link","url":"https://example.com/?e2e=1"}` {
		t.Fatalf("optional subtitle should be omitted, got %s", encoded)
	}
}

func TestCoerceFormSocialPrefersStructuredField(t *testing.T) {
	data, err := CoerceForm(TypeSocial, form(
		"links_json", `[{"platform":"instagram","url":"@json"}]`,
		"links", "x, @lines",
	))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	social := data.(SocialData)
	if len(social.Links) != 1 || social.Links[0].URL != "https://instagram.com/json" {
		t.Fatalf("expected structured links to win, got %+v", social.Links)
	}

	data, err = CoerceForm(TypeSocial, form("links_json", `[]`, "links", "x, @lines\nemail nobody"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	social = data.(SocialData)
	if len(social.Links) != 1 || social.Links[0].URL != "https://x.com/lines" {
		t.Fatalf("expected textarea fallback, got %+v", social.Links)
	}
}

func TestDecodeDataIgnoresUnknownAndMalformedInput(t *testing.T) {
	data := DecodeData(TypeSignup, []byte(`{"title":"Join","unknown":true,"leadMagnetUrl":"https://x.test/guide.pdf"}`))
	signup := data.(SignupData)
	if signup.Title != "Join" || signup.LeadMagnetURL != "https://x.test/guide.pdf" {
		t.Fatalf("unexpected signup payload: %+v", signup)
	}
	if social := DecodeData(TypeSocial, []byte(`{"links":"oops"}`)).(SocialData); len(social.Links) != 0 {
		t.Fatalf("malformed social payload should decode empty, got %+v", social)
	}
	if DecodeData(Type("carousel"), []byte(`{}`)) != nil {
		t.Fatalf("unknown type should decode to nil")
	}
}

func TestEncodeEmptySocialAsArray(t *testing.T) {
	encoded, err := EncodeData(SocialData{})
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	if string(encoded) != `{"links":[]}` {
		t.Fatalf("expected empty links array, got %s", encoded)
	}
}
