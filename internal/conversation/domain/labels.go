package domain

// Provider-neutral label names. Providers translate their own flag sets
// (Gmail label ids, IMAP flags) into these.
const (
	LabelSpam  = "SPAM"
	LabelDraft = "DRAFT"
	LabelSent  = "SENT"
)

// HasLabelIn reports whether the given label appears in a raw label set.
func HasLabelIn(labels []string, label string) bool {
	for _, l := range labels {
		if l == label {
			return true
		}
	}
	return false
}
