package usecase

import (
	"context"
	"fmt"
	"log"
	"strings"

	convdomain "mailmatch-backend/internal/conversation/domain"
)

// FindBestTemplate returns the id of the reply template whose example
// embeddings sit closest to the given message within scope, or "" when the
// scope holds no examples. Ties are settled by the underlying index's
// natural ordering; closest distance wins.
//
// A successful match also moves the message's topic to awaiting_template and
// stores the template body as the generated reply draft.
func (u *conversationUsecase) FindBestTemplate(ctx context.Context, messageID, scopeID string) (string, error) {
	if u.vectorIndex == nil {
		return "", fmt.Errorf("vector index not configured")
	}
	msg, err := u.messageRepo.FindByID(messageID)
	if err != nil {
		return "", err
	}
	if msg == nil {
		return "", fmt.Errorf("message %s not found", messageID)
	}

	text := TruncateTokens(msg.Subject+"\n\n"+msg.BodyText, u.tokenLimit())
	if strings.TrimSpace(text) == "" {
		// Nothing to embed; treat as no match rather than querying with an
		// empty document.
		return "", nil
	}

	matches, err := u.vectorIndex.QueryNearestTemplate(ctx, scopeID, text, 1)
	if err != nil {
		return "", fmt.Errorf("nearest-neighbor query failed: %w", err)
	}
	if len(matches) == 0 {
		// Empty scope: callers must tolerate "no template found".
		return "", nil
	}

	best := matches[0]
	template, err := u.templateRepo.FindByID(best.TemplateID)
	if err != nil {
		return "", err
	}
	if template == nil {
		// The example outlived its template; treat as no match.
		log.Printf("[Matcher] Example points at missing template %s", best.TemplateID)
		return "", nil
	}

	if err := u.topicRepo.UpdateFields(msg.TopicID, map[string]interface{}{
		"reply_state": convdomain.ReplyStateAwaitingTemplate,
		"template_id": template.ID,
		"reply_draft": template.Body,
	}); err != nil {
		return "", err
	}

	return template.ID, nil
}

// CreateTemplate stores a new canned reply in a scope.
func (u *conversationUsecase) CreateTemplate(scopeID, name, body string) (*convdomain.Template, error) {
	template := &convdomain.Template{
		ScopeID: scopeID,
		Name:    name,
		Body:    body,
	}
	if err := u.templateRepo.Create(template); err != nil {
		return nil, err
	}
	return template, nil
}

// RegisterTemplateExample marks a stored message as a good example of when
// the template applies, contributing its embedding to the scope's search.
func (u *conversationUsecase) RegisterTemplateExample(ctx context.Context, templateID, messageID string) error {
	if u.vectorIndex == nil {
		return fmt.Errorf("vector index not configured")
	}
	template, err := u.templateRepo.FindByID(templateID)
	if err != nil {
		return err
	}
	if template == nil {
		return fmt.Errorf("template %s not found", templateID)
	}
	msg, err := u.messageRepo.FindByID(messageID)
	if err != nil {
		return err
	}
	if msg == nil {
		return fmt.Errorf("message %s not found", messageID)
	}

	text := TruncateTokens(msg.Subject+"\n\n"+msg.BodyText, u.tokenLimit())
	return u.vectorIndex.AddTemplateExample(ctx, template.ScopeID, template.ID, msg.ID, text)
}

// DeleteTemplate removes the template, its example embeddings, and flips
// topics that were drafted from it to template_removed.
func (u *conversationUsecase) DeleteTemplate(ctx context.Context, templateID string) error {
	if u.vectorIndex != nil {
		if err := u.vectorIndex.DeleteTemplateExamples(ctx, templateID); err != nil {
			log.Printf("[Matcher] Failed to delete examples for template %s: %v", templateID, err)
		}
	}
	if err := u.topicRepo.MarkTemplateRemoved(templateID); err != nil {
		return err
	}
	return u.templateRepo.Delete(templateID)
}

func (u *conversationUsecase) tokenLimit() int {
	if u.cfg != nil && u.cfg.EmbeddingTokenLimit > 0 {
		return u.cfg.EmbeddingTokenLimit
	}
	return 2048
}
