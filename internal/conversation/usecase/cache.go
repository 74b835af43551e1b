package usecase

import (
	"log"
	"net/mail"
	"strings"
	"time"

	convdomain "mailmatch-backend/internal/conversation/domain"
	"mailmatch-backend/internal/conversation/extract"
	inboxdomain "mailmatch-backend/internal/inbox/domain"

	"gorm.io/gorm"
)

// UpsertTopic writes one complete provider thread through the cache. The
// topic row derives its subject from the first message and its from/to/date
// from the last one: subjects rarely change mid-thread, but the most recent
// participant is what matters for reply routing. Every message in the thread
// is then upserted in order.
func (u *conversationUsecase) UpsertTopic(inbox *inboxdomain.Inbox, thread *convdomain.ThreadBody, snippet string) (*convdomain.Topic, error) {
	if thread == nil || len(thread.Messages) == 0 {
		log.Printf("[Cache] Thread %s has no messages, skipping", threadID(thread))
		return nil, nil
	}

	first := thread.Messages[0]
	last := thread.Messages[len(thread.Messages)-1]

	subject := first.Header("Subject")
	fromName, fromAddress := splitAddress(last.Header("From"))
	toName, toAddress := splitAddress(last.Header("To"))
	lastMessageAt := messageDate(last)

	// handled: the inbox owner spoke last, so no reply is owed.
	handled := fromAddress != "" && strings.EqualFold(fromAddress, inbox.OwnerAddress)

	topic, err := u.findOrCreateTopic(inbox, thread, snippet, subject, fromName, fromAddress, toName, toAddress, lastMessageAt, handled)
	if err != nil {
		return nil, err
	}

	spam := false
	persisted := 0
	for _, msgBody := range thread.Messages {
		msg, err := u.upsertMessage(inbox, topic, msgBody)
		if err != nil {
			// One bad message must not block the rest of the thread.
			log.Printf("[Cache] Failed to upsert message %s in topic %s: %v", msgBody.ProviderMessageID, topic.ID, err)
			continue
		}
		persisted++
		if msg != nil && msg.HasLabel(convdomain.LabelSpam) {
			spam = true
		}
	}

	// message_count reflects what is actually stored, not the thread's
	// claimed size; a skipped message is picked up on the next resync.
	finish := map[string]interface{}{}
	if topic.MessageCount != persisted {
		finish["message_count"] = persisted
		finish["last_synced_at"] = time.Now()
	}
	if spam && topic.Classification != convdomain.ClassificationSpam {
		finish["classification"] = convdomain.ClassificationSpam
	}
	if len(finish) > 0 {
		if err := u.topicRepo.UpdateFields(topic.ID, finish); err != nil {
			return nil, err
		}
		if v, ok := finish["message_count"].(int); ok {
			topic.MessageCount = v
		}
		if spam {
			topic.Classification = convdomain.ClassificationSpam
		}
	}

	return topic, nil
}

func (u *conversationUsecase) findOrCreateTopic(inbox *inboxdomain.Inbox, thread *convdomain.ThreadBody, snippet, subject, fromName, fromAddress, toName, toAddress string, lastMessageAt time.Time, handled bool) (*convdomain.Topic, error) {
	topic, err := u.topicRepo.FindByNaturalKey(inbox.ID, thread.ThreadID)
	if err != nil {
		return nil, err
	}

	if topic == nil {
		replyState := convdomain.ReplyStateNeedsReply
		if handled {
			replyState = convdomain.ReplyStateNoReplyNeeded
		}
		topic = &convdomain.Topic{
			InboxID:          inbox.ID,
			ProviderThreadID: thread.ThreadID,
			Subject:          subject,
			Snippet:          snippet,
			FromName:         fromName,
			FromAddress:      fromAddress,
			ToName:           toName,
			ToAddress:        toAddress,
			LastMessageAt:    lastMessageAt,
			Classification:   convdomain.ClassificationNormal,
			ReplyState:       replyState,
		}
		err := u.topicRepo.Create(topic)
		if err == nil {
			return topic, nil
		}
		if err != gorm.ErrDuplicatedKey {
			return nil, err
		}
		// A concurrent sync for the same thread won the insert race; the
		// uniqueness constraint is the arbiter. Re-read and fall through to
		// the update path.
		topic, err = u.topicRepo.FindByNaturalKey(inbox.ID, thread.ThreadID)
		if err != nil || topic == nil {
			return nil, err
		}
	}

	// Write only the fields that actually changed; a no-op upsert performs
	// zero writes and is visible as such in the logs.
	updates := map[string]interface{}{}
	if topic.Subject != subject {
		updates["subject"] = subject
	}
	if snippet != "" && topic.Snippet != snippet {
		updates["snippet"] = snippet
	}
	if topic.FromName != fromName {
		updates["from_name"] = fromName
	}
	if topic.FromAddress != fromAddress {
		updates["from_address"] = fromAddress
	}
	if topic.ToName != toName {
		updates["to_name"] = toName
	}
	if topic.ToAddress != toAddress {
		updates["to_address"] = toAddress
	}
	if !topic.LastMessageAt.Equal(lastMessageAt) {
		updates["last_message_at"] = lastMessageAt
	}
	switch {
	case handled && topic.ReplyState == convdomain.ReplyStateNeedsReply:
		updates["reply_state"] = convdomain.ReplyStateNoReplyNeeded
	case !handled && topic.ReplyState == convdomain.ReplyStateNoReplyNeeded:
		// New inbound mail reopens the conversation.
		updates["reply_state"] = convdomain.ReplyStateNeedsReply
	}

	if len(updates) == 0 {
		log.Printf("[Cache] Topic %s unchanged, no-op upsert", topic.ID)
		return topic, nil
	}
	if err := u.topicRepo.UpdateFields(topic.ID, updates); err != nil {
		return nil, err
	}
	applyTopicUpdates(topic, updates)
	return topic, nil
}

// upsertMessage writes one message keyed on (topic, provider message id),
// runs the body extractor, and replaces the attachment set wholesale.
func (u *conversationUsecase) upsertMessage(inbox *inboxdomain.Inbox, topic *convdomain.Topic, body *convdomain.MessageBody) (*convdomain.Message, error) {
	extracted := extract.Extract(body.Root)

	text := extracted.Text
	// A message must never persist with both body fields empty if any body
	// existed; HTML stands in for missing plaintext.
	if text == "" && extracted.HTML != "" {
		text = extracted.HTML
	}

	fromName, fromAddress := splitAddress(body.Header("From"))
	toName, toAddress := splitAddress(body.Header("To"))
	headerDate := parseHeaderDate(body.Header("Date"))

	msg, err := u.messageRepo.FindByNaturalKey(topic.ID, body.ProviderMessageID)
	if err != nil {
		return nil, err
	}

	if msg == nil {
		msg = &convdomain.Message{
			TopicID:           topic.ID,
			ProviderMessageID: body.ProviderMessageID,
			Subject:           body.Header("Subject"),
			FromName:          fromName,
			FromAddress:       fromAddress,
			ToName:            toName,
			ToAddress:         toAddress,
			HeaderDate:        headerDate,
			InternalDate:      internalDate(body),
			BodyText:          text,
			BodyHTML:          extracted.HTML,
			Snippet:           body.Snippet,
			Labels:            body.Labels,
		}
		err := u.messageRepo.Create(msg)
		if err == gorm.ErrDuplicatedKey {
			// Concurrent writer already handled it.
			msg, err = u.messageRepo.FindByNaturalKey(topic.ID, body.ProviderMessageID)
			if err != nil || msg == nil {
				return nil, err
			}
		} else if err != nil {
			return nil, err
		}
	} else {
		updates := map[string]interface{}{}
		if msg.BodyText != text {
			updates["body_text"] = text
		}
		if msg.BodyHTML != extracted.HTML {
			updates["body_html"] = extracted.HTML
		}
		if body.Snippet != "" && msg.Snippet != body.Snippet {
			updates["snippet"] = body.Snippet
		}
		if !labelsEqual(msg.Labels, body.Labels) {
			updates["labels"] = convdomain.StringArray(body.Labels)
		}
		if len(updates) > 0 {
			if err := u.messageRepo.UpdateFields(msg.ID, updates); err != nil {
				return nil, err
			}
			msg.BodyText = text
			msg.BodyHTML = extracted.HTML
			msg.Labels = body.Labels
		}
	}

	// Attachments are replaced unconditionally on every (re)write: provider
	// attachment ids rotate whenever the thread mutates.
	attachments := make([]*convdomain.Attachment, 0, len(extracted.Attachments))
	for _, info := range extracted.Attachments {
		attachments = append(attachments, &convdomain.Attachment{
			ProviderAttachmentID: info.ProviderAttachmentID,
			ContentID:            info.ContentID,
			Filename:             info.Filename,
			MimeType:             info.MimeType,
			SizeKB:               info.SizeKB,
			Inline:               info.Inline,
		})
	}
	if err := u.attachmentRepo.ReplaceForMessage(msg.ID, attachments); err != nil {
		return nil, err
	}

	// Queue embedding generation once the message is durably stored with a
	// non-empty body. The worker is idempotent, so re-queues are harmless.
	if text != "" && u.embedWorker != nil {
		u.embedWorker.Queue(EmbedJob{
			ScopeID:   inbox.ID,
			MessageID: msg.ID,
			Subject:   msg.Subject,
			Body:      text,
		})
	}

	return msg, nil
}

// splitAddress breaks a header of the form "Name <address>" into its parts.
// Without angle brackets the whole header is the address and the name is
// absent.
func splitAddress(header string) (name, address string) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", ""
	}
	if addr, err := mail.ParseAddress(header); err == nil {
		return addr.Name, addr.Address
	}
	if idx := strings.Index(header, "<"); idx >= 0 {
		name = strings.Trim(strings.TrimSpace(header[:idx]), `"`)
		address = strings.Trim(header[idx:], "<> ")
		return name, address
	}
	return "", header
}

// parseHeaderDate tolerates the malformed dates real mail carries; a bad or
// absent Date header falls back to the current time rather than aborting the
// thread import.
func parseHeaderDate(value string) time.Time {
	if value == "" {
		return time.Now()
	}
	if t, err := mail.ParseDate(value); err == nil {
		return t
	}
	return time.Now()
}

func messageDate(body *convdomain.MessageBody) time.Time {
	if !body.InternalDate.IsZero() {
		return body.InternalDate
	}
	return parseHeaderDate(body.Header("Date"))
}

func internalDate(body *convdomain.MessageBody) time.Time {
	if body.InternalDate.IsZero() {
		return time.Now()
	}
	return body.InternalDate
}

func labelsEqual(a convdomain.StringArray, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func applyTopicUpdates(topic *convdomain.Topic, updates map[string]interface{}) {
	if v, ok := updates["subject"].(string); ok {
		topic.Subject = v
	}
	if v, ok := updates["snippet"].(string); ok {
		topic.Snippet = v
	}
	if v, ok := updates["reply_state"].(convdomain.ReplyState); ok {
		topic.ReplyState = v
	}
}

func threadID(thread *convdomain.ThreadBody) string {
	if thread == nil {
		return "<nil>"
	}
	return thread.ThreadID
}
