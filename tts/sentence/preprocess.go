package sentence

import (
	"regexp"
	"sort"
	"strings"

	"golang.org/x/text/unicode/norm"
)

var currencySymbols = []string{
	"R$", "US$", "€", "£", "¥", "₹", "₽", "₿", "฿", "₺", "₴", "₸", "₡", "₮",
	"₩", "₦", "₲", "₵", "₶", "₷", "₻", "₼", "₾",
}

var (
	currencyPattern = compileCurrencyPattern()
	// terminal marks that get a space after them before whitespace collapses
	markSpacing = regexp.MustCompile(`([?!])|(:)(\D)`)
	spaceBefore = regexp.MustCompile(`\s+([.,?!:])`)
)

func compileCurrencyPattern() *regexp.Regexp {
	syms := make([]string, len(currencySymbols))
	for i, s := range currencySymbols {
		syms[i] = regexp.QuoteMeta(s)
	}
	// Longest first so "US$" wins over any shorter overlap
	sort.SliceStable(syms, func(i, j int) bool { return len(syms[i]) > len(syms[j]) })
	return regexp.MustCompile(`(` + strings.Join(syms, "|") + `)\s?(\d+)`)
}

// PreProcess prepares raw request text for segmentation. Amounts in any
// known currency are read as reais, punctuation spacing is normalized,
// the text is NFC-composed and a final period becomes a comma so the last
// segment ends on a soft pause.
func PreProcess(text string) string {
	text = currencyPattern.ReplaceAllString(text, "R$$ ${2}")
	text = normalizeSpacing(text)
	text = norm.NFC.String(text)
	if strings.HasSuffix(text, ".") && !strings.HasSuffix(text, "..") {
		text = strings.TrimSuffix(text, ".") + ","
	}
	return text
}

// normalizeSpacing puts exactly one space after '?', '!' and ':' (but not
// inside clock times), collapses runs of whitespace and removes spaces in
// front of punctuation.
func normalizeSpacing(text string) string {
	text = markSpacing.ReplaceAllString(text, "$1$2 $3")
	text = strings.Join(strings.Fields(text), " ")
	text = spaceBefore.ReplaceAllString(text, "$1")
	return strings.TrimSpace(text)
}
