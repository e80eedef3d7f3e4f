package notify

import (
	"strings"

	"dealwatch/internal/deal"
)

// Separator closes every rendered offer and frames the header message.
const Separator = "- - - - - - - - - - - - -"

// Render formats one offer as a MarkdownV2 card. Every free-text field is
// escaped; only the bold price and the optional link carry markup.
func Render(o deal.Offer) string {
	var b strings.Builder
	b.WriteString("🤑 *")
	b.WriteString(EscapeMarkdownV2(o.Price.String() + currencyLabel(o.Currency)))
	b.WriteString("*")
	if o.PerPerson.Valid {
		b.WriteString(" " + EscapeMarkdownV2("("+o.PerPerson.Decimal.String()+currencyLabel(o.Currency)+"/os)"))
	}
	b.WriteString(" 📅 ")
	date := o.DepartureDate
	if date == "" {
		date = "?"
	}
	if o.ReturnDate != "" {
		date += " - " + o.ReturnDate
	}
	b.WriteString(EscapeMarkdownV2(date))
	if initial := providerInitial(o.Provider); initial != "" {
		b.WriteString(" " + EscapeMarkdownV2("["+initial+"]"))
	}
	b.WriteString("\n🗺️ ")
	b.WriteString(EscapeMarkdownV2(o.Country))
	b.WriteString("\n🌴 ")
	b.WriteString(EscapeMarkdownV2(o.Destination))
	b.WriteString("\n🛬 ")
	b.WriteString(EscapeMarkdownV2(o.Airport))
	b.WriteString(" ✈️ ")
	b.WriteString(EscapeMarkdownV2(o.Brand))
	b.WriteString("\n")
	if stay := strings.TrimSpace(o.HotelStandard + " " + o.Board); stay != "" {
		b.WriteString("⭐ ")
		b.WriteString(EscapeMarkdownV2(stay))
		b.WriteString("\n")
	}
	if o.Link != "" {
		b.WriteString("[")
		b.WriteString(EscapeMarkdownV2("oferta"))
		b.WriteString("](")
		b.WriteString(escapeURL(o.Link))
		b.WriteString(")\n")
	}
	b.WriteString(EscapeMarkdownV2(Separator))
	b.WriteString("\n")
	return b.String()
}

// Header is the message sent ahead of a cycle's batches.
func Header(stamp string) string {
	sep := EscapeMarkdownV2(Separator)
	return sep + "\n" + EscapeMarkdownV2(stamp) + "\n" + sep
}

func currencyLabel(c string) string {
	switch strings.ToUpper(strings.TrimSpace(c)) {
	case "", "PLN":
		return "zł"
	default:
		return " " + c
	}
}

func providerInitial(p string) string {
	for _, r := range strings.TrimSpace(p) {
		return strings.ToUpper(string(r))
	}
	return ""
}
