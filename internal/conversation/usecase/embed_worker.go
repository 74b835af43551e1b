package usecase

import (
	"context"
	"log"
	"sync"

	"mailmatch-backend/internal/conversation/repository"
)

// EmbedJob represents a request to embed one stored message.
type EmbedJob struct {
	ScopeID   string
	MessageID string
	Subject   string
	Body      string
}

// EmbedWorkerService generates message embeddings in the background.
// Embeddings are independent across messages, so workers run freely in
// parallel; idempotence comes from the embedding record's natural key, not
// from ordering.
type EmbedWorkerService struct {
	embeddingRepo repository.EmbeddingRecordRepository
	vectorIndex   VectorIndex
	dimension     int
	tokenLimit    int

	jobQueue    chan EmbedJob
	workerWg    sync.WaitGroup
	workerCount int
	started     bool
	mu          sync.Mutex
}

// NewEmbedWorkerService creates a new embed worker service
func NewEmbedWorkerService(
	embeddingRepo repository.EmbeddingRecordRepository,
	vectorIndex VectorIndex,
	dimension, tokenLimit, workerCount int,
) *EmbedWorkerService {
	if workerCount <= 0 {
		workerCount = 3
	}

	return &EmbedWorkerService{
		embeddingRepo: embeddingRepo,
		vectorIndex:   vectorIndex,
		dimension:     dimension,
		tokenLimit:    tokenLimit,
		jobQueue:      make(chan EmbedJob, 500),
		workerCount:   workerCount,
	}
}

// Start starts the embed workers
func (s *EmbedWorkerService) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return
	}

	for i := 0; i < s.workerCount; i++ {
		s.workerWg.Add(1)
		go s.worker(i)
	}
	s.started = true
	log.Printf("[EmbedWorker] Started %d workers", s.workerCount)
}

// Stop stops all workers gracefully
func (s *EmbedWorkerService) Stop() {
	close(s.jobQueue)
	s.workerWg.Wait()
	log.Println("[EmbedWorker] All workers stopped")
}

// Queue adds a job without blocking. A full queue drops the job: the message
// is re-queued on the next sync pass of its thread.
func (s *EmbedWorkerService) Queue(job EmbedJob) bool {
	select {
	case s.jobQueue <- job:
		return true
	default:
		log.Printf("[EmbedWorker] Queue full, skipping message %s (will retry on next sync)", job.MessageID)
		return false
	}
}

func (s *EmbedWorkerService) worker(id int) {
	defer s.workerWg.Done()

	for job := range s.jobQueue {
		s.processJob(job)
	}

	log.Printf("[EmbedWorker] Worker %d stopped", id)
}

func (s *EmbedWorkerService) processJob(job EmbedJob) {
	if s.vectorIndex == nil {
		return
	}

	// One embedding per message, ever. The record is claimed before the
	// vector write so concurrent workers cannot double-embed.
	already, err := s.embeddingRepo.EnsureEmbedded(job.MessageID, s.dimension)
	if err != nil {
		log.Printf("[EmbedWorker] Error checking embedding record for %s: %v", job.MessageID, err)
		return
	}
	if already {
		return
	}

	text := TruncateTokens(job.Subject+"\n\n"+job.Body, s.tokenLimit)

	ctx := context.Background()
	if err := s.vectorIndex.UpsertMessageEmbedding(ctx, job.ScopeID, job.MessageID, text); err != nil {
		log.Printf("[EmbedWorker] Embedding failed for %s: %v", job.MessageID, err)
		// Release the claim so a later pass can retry.
		if delErr := s.embeddingRepo.Delete(job.MessageID); delErr != nil {
			log.Printf("[EmbedWorker] Failed to release embedding record for %s: %v", job.MessageID, delErr)
		}
		return
	}

	log.Printf("[EmbedWorker] Embedded message %s", job.MessageID)
}
