package services

import (
	"context"
	"fmt"
	"time"

	"github.com/shashiranjanraj/vastra/pkg/queue"
	"github.com/shashiranjanraj/vastra/pkg/storage"
)

// ArchiveWebhookJob persists a raw webhook body to blob storage so disputes
// and reconciliation audits can replay exactly what the provider sent.
type ArchiveWebhookJob struct {
	Provider   string `json:"provider"`
	Ref        string `json:"ref"`
	ReceivedAt int64  `json:"received_at"`
	Body       []byte `json:"body"`
}

// NewArchiveWebhookJob captures a webhook body for archiving.
func NewArchiveWebhookJob(provider, ref string, body []byte) ArchiveWebhookJob {
	return ArchiveWebhookJob{
		Provider:   provider,
		Ref:        ref,
		ReceivedAt: time.Now().Unix(),
		Body:       body,
	}
}

// Handle writes the payload under webhooks/<provider>/. The received
// timestamp in the key keeps redeliveries of the same event distinct.
func (j ArchiveWebhookJob) Handle() error {
	path := fmt.Sprintf("webhooks/%s/%d_%s.json", j.Provider, j.ReceivedAt, j.Ref)
	return storage.Put(context.Background(), path, j.Body)
}

// RegisterJobs makes every job type deserializable by the queue workers.
// Call once at boot.
func RegisterJobs() {
	queue.Register("services.ArchiveWebhookJob", func() queue.Job { return &ArchiveWebhookJob{} })
}
