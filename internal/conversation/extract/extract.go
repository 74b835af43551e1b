package extract

import (
	"strings"

	"mailmatch-backend/internal/conversation/domain"
)

// maxDepth bounds recursion over the externally supplied part tree. Real
// messages nest a handful of levels; anything deeper is hostile or broken.
const maxDepth = 100

// Extract walks a message's body-part tree depth-first and flattens it into
// plaintext, HTML, and attachment descriptors.
//
// multipart/alternative commonly repeats the same logical content in several
// encodings, so the merge rule is first-wins: the first non-empty plaintext
// found anywhere in the subtree survives, likewise for HTML. Attachment lists
// concatenate in traversal order.
func Extract(root *domain.BodyPart) *domain.ExtractedBody {
	result := &domain.ExtractedBody{}
	if root == nil {
		return result
	}
	walk(root, result, 0)
	return result
}

func walk(part *domain.BodyPart, result *domain.ExtractedBody, depth int) {
	if part == nil || depth > maxDepth {
		return
	}

	// All multipart subtypes (alternative, mixed, related, ...) take the
	// generic branch: recurse in order, no special cases.
	if strings.HasPrefix(part.MimeType, "multipart/") {
		for _, child := range part.Parts {
			walk(child, result, depth+1)
		}
		return
	}

	switch part.MimeType {
	case "text/plain":
		if result.Text == "" {
			result.Text = partData(part)
		}
		return
	case "text/html":
		if result.HTML == "" {
			result.HTML = partData(part)
		}
		return
	}

	if info, ok := attachmentInfo(part); ok {
		result.Attachments = append(result.Attachments, info)
	}
}

func partData(part *domain.BodyPart) string {
	if part.Body == nil {
		return ""
	}
	return part.Body.Data
}

// attachmentInfo classifies a non-text part. A part counts as an attachment
// when its disposition header begins with "attachment" or it carries a
// filename; a missing Content-Disposition with a present filename still
// qualifies.
func attachmentInfo(part *domain.BodyPart) (domain.AttachmentInfo, bool) {
	disposition := strings.ToLower(part.Header("Content-Disposition"))
	isAttachment := strings.HasPrefix(disposition, "attachment")
	inline := strings.HasPrefix(disposition, "inline")

	if !isAttachment && part.Filename == "" {
		return domain.AttachmentInfo{}, false
	}

	info := domain.AttachmentInfo{
		Filename:  part.Filename,
		MimeType:  part.MimeType,
		ContentID: contentID(part),
		Inline:    inline,
	}
	// A part with no body payload at all is still a valid attachment
	// descriptor; size and attachment id are simply absent.
	if part.Body != nil {
		info.ProviderAttachmentID = part.Body.AttachmentID
		info.SizeKB = roundKB(part.Body.Size)
	}
	return info, true
}

// contentID resolves the inline reference id for a part: the provider's
// alternate attachment id header wins over the standard Content-ID header.
// Angle-bracket delimiters are stripped and the cid: scheme marker prepended.
func contentID(part *domain.BodyPart) string {
	raw := part.Header("X-Attachment-Id")
	if raw == "" {
		raw = part.Header("Content-ID")
	}
	if raw == "" {
		return ""
	}
	return "cid:" + strings.Trim(raw, "<>")
}

func roundKB(size int64) int64 {
	if size <= 0 {
		return 0
	}
	return (size + 512) / 1024
}
