package chroma

import (
	"context"
	"fmt"
	"log"
	"os"

	"mailmatch-backend/internal/conversation/usecase"
	"mailmatch-backend/pkg/config"

	chroma "github.com/amikos-tech/chroma-go/pkg/api/v2"
	"github.com/amikos-tech/chroma-go/pkg/embeddings/gemini"
)

const (
	messageCollectionName = "topic-messages"
	exampleCollectionName = "template-examples"
)

// Client wraps two Chroma collections: one holding message embeddings keyed
// by message id, one holding template example embeddings. Both are created
// with the configured distance metric; l2 and ip are supported.
type Client struct {
	client    chroma.Client
	embedFunc *gemini.GeminiEmbeddingFunction
	config    *config.Config
	messages  chroma.Collection
	examples  chroma.Collection
}

func NewClient(cfg *config.Config) (*Client, error) {
	if cfg.ChromaAPIKey == "" {
		return nil, fmt.Errorf("CHROMA_API_KEY is required")
	}

	// Set environment variable for Gemini API key if needed
	if cfg.GeminiApiKey != "" {
		os.Setenv("GEMINI_API_KEY", cfg.GeminiApiKey)
	}

	embedFunc, err := gemini.NewGeminiEmbeddingFunction(
		gemini.WithEnvAPIKey(),
		gemini.WithDefaultModel("text-embedding-004"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini embedding function: %w", err)
	}

	var client chroma.Client
	if cfg.ChromaDatabase != "" && cfg.ChromaTenant != "" {
		client, err = chroma.NewHTTPClient(
			chroma.WithBaseURL(chroma.ChromaCloudEndpoint),
			chroma.WithCloudAPIKey(cfg.ChromaAPIKey),
			chroma.WithDatabaseAndTenant(cfg.ChromaDatabase, cfg.ChromaTenant),
		)
	} else if cfg.ChromaTenant != "" {
		client, err = chroma.NewHTTPClient(
			chroma.WithBaseURL(chroma.ChromaCloudEndpoint),
			chroma.WithCloudAPIKey(cfg.ChromaAPIKey),
			chroma.WithTenant(cfg.ChromaTenant),
		)
	} else {
		client, err = chroma.NewHTTPClient(
			chroma.WithBaseURL(chroma.ChromaCloudEndpoint),
			chroma.WithCloudAPIKey(cfg.ChromaAPIKey),
		)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create Chroma client: %w", err)
	}

	metric := cfg.VectorDistanceMetric
	if metric != "l2" && metric != "ip" {
		metric = "l2"
	}
	collectionMeta := chroma.NewMetadataFromMap(map[string]interface{}{
		"hnsw:space": metric,
	})

	ctx := context.Background()
	messages, err := client.GetOrCreateCollection(
		ctx,
		messageCollectionName,
		chroma.WithEmbeddingFunctionCreate(embedFunc),
		chroma.WithCollectionMetadataCreate(collectionMeta),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create collection %s: %w", messageCollectionName, err)
	}
	examples, err := client.GetOrCreateCollection(
		ctx,
		exampleCollectionName,
		chroma.WithEmbeddingFunctionCreate(embedFunc),
		chroma.WithCollectionMetadataCreate(collectionMeta),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create collection %s: %w", exampleCollectionName, err)
	}

	log.Printf("[Chroma] Initialized collections %s and %s (metric %s)", messageCollectionName, exampleCollectionName, metric)

	return &Client{
		client:    client,
		embedFunc: embedFunc,
		config:    cfg,
		messages:  messages,
		examples:  examples,
	}, nil
}

// UpsertMessageEmbedding stores the vector for one message, keyed by message
// id so re-embeds overwrite rather than duplicate.
func (c *Client) UpsertMessageEmbedding(ctx context.Context, scopeID, messageID, text string) error {
	metadata, err := chroma.NewDocumentMetadataFromMap(map[string]interface{}{
		"scope_id":   scopeID,
		"message_id": messageID,
	})
	if err != nil {
		return fmt.Errorf("failed to create metadata: %w", err)
	}

	err = c.messages.Upsert(
		ctx,
		chroma.WithIDs(chroma.DocumentID(messageID)),
		chroma.WithMetadatas(metadata),
		chroma.WithTexts(text),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert message embedding: %w", err)
	}
	return nil
}

// AddTemplateExample stores one example vector under the template. The
// document id combines template and message so the same message can serve
// as an example for several templates.
func (c *Client) AddTemplateExample(ctx context.Context, scopeID, templateID, messageID, text string) error {
	metadata, err := chroma.NewDocumentMetadataFromMap(map[string]interface{}{
		"scope_id":    scopeID,
		"template_id": templateID,
		"message_id":  messageID,
	})
	if err != nil {
		return fmt.Errorf("failed to create metadata: %w", err)
	}

	id := fmt.Sprintf("tpl:%s:%s", templateID, messageID)
	err = c.examples.Upsert(
		ctx,
		chroma.WithIDs(chroma.DocumentID(id)),
		chroma.WithMetadatas(metadata),
		chroma.WithTexts(text),
	)
	if err != nil {
		return fmt.Errorf("failed to add template example: %w", err)
	}
	return nil
}

// DeleteTemplateExamples removes every example vector of the template.
func (c *Client) DeleteTemplateExamples(ctx context.Context, templateID string) error {
	err := c.examples.Delete(ctx, chroma.WithWhereDelete(chroma.EqString("template_id", templateID)))
	if err != nil {
		return fmt.Errorf("failed to delete template examples: %w", err)
	}
	return nil
}

// QueryNearestTemplate finds the example vectors closest to the query text,
// restricted to one scope so inboxes never see each other's templates.
func (c *Client) QueryNearestTemplate(ctx context.Context, scopeID, text string, limit int) ([]usecase.TemplateMatch, error) {
	if limit <= 0 {
		limit = 1
	}

	results, err := c.examples.Query(
		ctx,
		chroma.WithQueryTexts(text),
		chroma.WithNResults(limit),
		chroma.WithWhereQuery(chroma.EqString("scope_id", scopeID)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query examples: %w", err)
	}
	if results == nil || results.CountGroups() == 0 {
		return nil, nil
	}

	idGroups := results.GetIDGroups()
	distanceGroups := results.GetDistancesGroups()
	metadataGroups := results.GetMetadatasGroups()
	if len(idGroups) == 0 || len(idGroups[0]) == 0 {
		return nil, nil
	}

	matches := make([]usecase.TemplateMatch, 0, len(idGroups[0]))
	for i := range idGroups[0] {
		match := usecase.TemplateMatch{}
		if len(metadataGroups) > 0 && i < len(metadataGroups[0]) && metadataGroups[0][i] != nil {
			if v, ok := metadataGroups[0][i].GetString("template_id"); ok {
				match.TemplateID = v
			}
			if v, ok := metadataGroups[0][i].GetString("message_id"); ok {
				match.MessageID = v
			}
		}
		if match.TemplateID == "" {
			log.Printf("[Chroma] Example %s has no template_id metadata, skipping", idGroups[0][i])
			continue
		}
		if len(distanceGroups) > 0 && i < len(distanceGroups[0]) {
			match.Distance = float64(distanceGroups[0][i])
		}
		matches = append(matches, match)
	}
	return matches, nil
}
