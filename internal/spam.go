package form_mailer

import "strings"

type SpamFilter struct {
	keywords []string
}

func NewSpamFilter(keywords []string) *SpamFilter {
	f := &SpamFilter{}
	for _, k := range keywords {
		k = strings.ToLower(strings.TrimSpace(k))
		if k != "" {
			f.keywords = append(f.keywords, k)
		}
	}
	return f
}

// Match reports the first keyword found in the lowercased name, subject and
// message. The keyword is for server logs only.
func (f *SpamFilter) Match(s Submission) (string, bool) {
	text := strings.ToLower(s.Name + " " + s.Subject + " " + s.Message)
	for _, k := range f.keywords {
		if strings.Contains(text, k) {
			return k, true
		}
	}
	return "", false
}
