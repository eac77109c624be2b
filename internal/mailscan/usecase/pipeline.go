package usecase

import (
	"context"
	"log"

	"subtrack-backend/internal/classify"
	"subtrack-backend/internal/mailscan/repository"
	subdomain "subtrack-backend/internal/subscription/domain"
)

// Reconciler folds an extraction into the subscription ledger
type Reconciler interface {
	Reconcile(userID, accountID string, ext *classify.Extraction, sourceMessageID string) (*subdomain.Subscription, error)
}

// Pipeline is the single queue consumer: it drains work items in priority
// order, runs classification and extraction, and hands billing-related
// results to the reconciler. One item failing marks its ledger entry failed
// and the loop moves on.
type Pipeline struct {
	queue        *PriorityQueue
	metadataRepo repository.EmailMetadataRepository
	engine       *classify.Engine
	reconciler   Reconciler
}

func NewPipeline(
	queue *PriorityQueue,
	metadataRepo repository.EmailMetadataRepository,
	engine *classify.Engine,
	reconciler Reconciler,
) *Pipeline {
	return &Pipeline{
		queue:        queue,
		metadataRepo: metadataRepo,
		engine:       engine,
		reconciler:   reconciler,
	}
}

// Run consumes the queue until the context is cancelled
func (p *Pipeline) Run(ctx context.Context) {
	log.Println("[Pipeline] Starting classification pipeline")
	for {
		item, err := p.queue.Dequeue(ctx)
		if err != nil {
			log.Println("[Pipeline] Stopped")
			return
		}
		p.process(ctx, item)
	}
}

func (p *Pipeline) process(ctx context.Context, item *WorkItem) {
	entry := item.Metadata

	if err := p.metadataRepo.MarkProcessing(entry.ID); err != nil {
		log.Printf("[Pipeline] Failed to mark %s processing: %v", entry.ID, err)
	}

	classification, extraction, err := p.engine.Process(ctx, item.Body)
	if err != nil {
		log.Printf("[Pipeline] Classification failed for message %s: %v", entry.MessageID, err)
		p.markFailed(entry.ID)
		return
	}

	// Unrelated mail completes with no subscription attached
	if extraction == nil {
		p.markCompleted(entry.ID, nil)
		return
	}

	sub, err := p.reconciler.Reconcile(entry.UserID, entry.AccountID, extraction, entry.MessageID)
	if err != nil {
		log.Printf("[Pipeline] Reconciliation failed for message %s: %v", entry.MessageID, err)
		p.markFailed(entry.ID)
		return
	}

	log.Printf("[Pipeline] Message %s -> subscription %s (%s, confidence %.2f)",
		entry.MessageID, sub.ID, sub.ServiceName, classification.Confidence)
	p.markCompleted(entry.ID, &sub.ID)
}

func (p *Pipeline) markCompleted(id string, subscriptionID *string) {
	if err := p.metadataRepo.MarkCompleted(id, subscriptionID); err != nil {
		log.Printf("[Pipeline] Failed to mark %s completed: %v", id, err)
	}
}

func (p *Pipeline) markFailed(id string) {
	if err := p.metadataRepo.MarkFailed(id); err != nil {
		log.Printf("[Pipeline] Failed to mark %s failed: %v", id, err)
	}
}
