package notify

import (
	"testing"
)

func TestEscapeMarkdownV2(t *testing.T) {
	cases := map[string]string{
		"plain":            "plain",
		"Kos (Grecja)":     `Kos \(Grecja\)`,
		"a_b*c":            `a\_b\*c`,
		"1299.50":          `1299\.50`,
		"Sharm-el-Sheikh!": `Sharm\-el\-Sheikh\!`,
		`back\slash`:       `back\\slash`,
		"Łódź":             "Łódź",
	}
	for in, want := range cases {
		if got := EscapeMarkdownV2(in); got != want {
			t.Fatalf("EscapeMarkdownV2(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestVisibleInvertsEscape(t *testing.T) {
	for _, s := range []string{"Kos (Grecja)", "a_b*c~d|e`f", `x\y`, "[not a link]", "- - - -", "Zażółć 1 299,50 zł!"} {
		if got := Visible(EscapeMarkdownV2(s)); got != s {
			t.Fatalf("Visible(Escape(%q)) = %q", s, got)
		}
	}
}

func TestVisibleStripsMarkup(t *testing.T) {
	cases := map[string]string{
		"*bold* _it_":                          "bold it",
		"see [oferta](https://x.pl/a\\)b) now": "see oferta now",
		`\[1\]`:                                "[1]",
		"[dangling":                            "[dangling",
		"||spoiler||":                          "spoiler",
	}
	for in, want := range cases {
		if got := Visible(in); got != want {
			t.Fatalf("Visible(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestEffectiveLengthCountsUTF16(t *testing.T) {
	cases := map[string]int{
		EscapeMarkdownV2("Łódź (PL)"): 9,
		"🤑 *1299zł*":                  9,  // U+1F911 is a surrogate pair
		"🗺️ Grecja":                   10, // U+1F5FA U+FE0F
		"⭐ 4":                         3,
	}
	for in, want := range cases {
		if got := EffectiveLength(in); got != want {
			t.Fatalf("EffectiveLength(%q) = %d, want %d", in, got, want)
		}
	}
}
