package presenter

import (
	"regexp"
	"sort"
	"strings"

	"mvdan.cc/xurls/v2"
)

// LinkKind tells what a Link points at.
type LinkKind int

const (
	LinkURL LinkKind = iota
	LinkEmail
	LinkPhone
)

func (k LinkKind) String() string {
	switch k {
	case LinkEmail:
		return "email"
	case LinkPhone:
		return "phone"
	default:
		return "url"
	}
}

// Link is a clickable span of a payload. Start and End are byte offsets.
type Link struct {
	Start, End int
	Text       string
	Kind       LinkKind
	Target     string
}

var (
	emailRe = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9\-]+(?:\.[A-Za-z0-9\-]+)*\.[A-Za-z]{2,}`)
	phoneRe = regexp.MustCompile(`\+?\(?\d[\d\-\s().]{5,}\d`)
	dateRe  = regexp.MustCompile(`^\d{4}[-./]\d{1,2}[-./]\d{1,2}$|^\d{1,2}[-./]\d{1,2}[-./]\d{4}$`)
	urlRe   = xurls.Relaxed()
)

const minPhoneDigits = 7

// Linkify finds web addresses, e-mail addresses and phone numbers in text.
// Spans never overlap; e-mail wins over the domain inside it.
func Linkify(text string) []Link {
	var links []Link
	taken := func(start, end int) bool {
		for _, l := range links {
			if start < l.End && l.Start < end {
				return true
			}
		}
		return false
	}

	for _, m := range emailRe.FindAllStringIndex(text, -1) {
		s := text[m[0]:m[1]]
		links = append(links, Link{Start: m[0], End: m[1], Text: s, Kind: LinkEmail, Target: "mailto:" + s})
	}
	for _, m := range urlRe.FindAllStringIndex(text, -1) {
		if taken(m[0], m[1]) {
			continue
		}
		s := text[m[0]:m[1]]
		if strings.HasPrefix(strings.ToLower(s), "mailto:") {
			links = append(links, Link{Start: m[0], End: m[1], Text: s, Kind: LinkEmail, Target: s})
			continue
		}
		links = append(links, Link{Start: m[0], End: m[1], Text: s, Kind: LinkURL, Target: urlTarget(s)})
	}
	for _, m := range phoneRe.FindAllStringIndex(text, -1) {
		s := strings.TrimSpace(text[m[0]:m[1]])
		digits := phoneDigits(s)
		if len(strings.TrimPrefix(digits, "+")) < minPhoneDigits || !phoneLike(s) || taken(m[0], m[1]) {
			continue
		}
		links = append(links, Link{Start: m[0], End: m[0] + len(s), Text: s, Kind: LinkPhone, Target: "tel:" + digits})
	}

	sort.Slice(links, func(i, j int) bool { return links[i].Start < links[j].Start })
	return links
}

func urlTarget(s string) string {
	if strings.Contains(s, "://") {
		return s
	}
	lower := strings.ToLower(s)
	for _, scheme := range []string{"tel:", "sms:", "geo:"} {
		if strings.HasPrefix(lower, scheme) {
			return s
		}
	}
	return "http://" + s
}

// phoneLike rejects digit runs that are more likely product numbers or
// dates: a number needs a leading + or ( or at least two group separators.
func phoneLike(s string) bool {
	if strings.HasPrefix(s, "+") || strings.HasPrefix(s, "(") {
		return true
	}
	if dateRe.MatchString(s) {
		return false
	}
	return strings.Count(s, " ")+strings.Count(s, "-")+strings.Count(s, ".")+strings.Count(s, ")") >= 2
}

func phoneDigits(s string) string {
	var b strings.Builder
	for i, r := range s {
		if r >= '0' && r <= '9' || r == '+' && i == 0 {
			b.WriteRune(r)
		}
	}
	return b.String()
}
