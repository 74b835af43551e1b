package domain

// AttachmentInfo is one attachment descriptor produced by the body extractor.
type AttachmentInfo struct {
	ProviderAttachmentID string
	ContentID            string
	Filename             string
	MimeType             string
	SizeKB               int64
	Inline               bool
}

// ExtractedBody is the flattened result of walking a body-part tree: at most
// one plaintext and one HTML representation plus the attachments found along
// the way, in traversal order.
type ExtractedBody struct {
	Text        string
	HTML        string
	Attachments []AttachmentInfo
}
