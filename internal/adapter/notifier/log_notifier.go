package notifier

import (
	"context"

	log "github.com/sirupsen/logrus"

	"github.com/rl1809/kitties/internal/core/domain"
)

type LogNotifier struct{}

func (LogNotifier) Notify(_ context.Context, event domain.Event) {
	fields := log.Fields{
		"event_id":  event.ID,
		"dna":       event.DNA.String(),
		"timestamp": event.Timestamp,
	}
	switch event.Type {
	case domain.EventKittyCreated:
		fields["owner"] = event.Owner
	case domain.EventKittyTransferred:
		fields["from"] = event.From
		fields["to"] = event.To
	}
	log.WithFields(fields).Info(string(event.Type))
}
