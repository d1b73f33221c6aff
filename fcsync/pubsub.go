package fcsync

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"strings"
	"time"

	"bitbucket.org/hisdatafocus/lmis_backend/config"
	"bitbucket.org/hisdatafocus/lmis_backend/utils"
	"cloud.google.com/go/pubsub"
	"github.com/gin-gonic/gin"
)

// PubSubReplicationBus publishes fulfillment facts for facility nodes to
// consume, on FC_REPLICATION_TOPIC. At-least-once delivery is the broker's
// promise; this bus only hands the event over.
type PubSubReplicationBus struct{}

func (PubSubReplicationBus) Emit(ctx context.Context, event ReplicationEvent) error {
	topicName := strings.TrimSpace(os.Getenv("FC_REPLICATION_TOPIC"))
	if topicName == "" {
		topicName = "fc-replication"
	}

	client, err := config.GetClient(ctx)
	if err != nil {
		return err
	}

	topic := client.Topic(topicName)
	if config.EnvBoolDefault("FC_REPLICATION_CREATE_TOPIC", false) {
		topic, err = config.CreateTopicIfNotExists(client, topicName)
		if err != nil {
			return err
		}
	}

	data, _ := json.Marshal(event)
	res := topic.Publish(ctx, &pubsub.Message{Data: data})
	_, err = res.Get(ctx)
	return err
}

// PublishSyncTrigger enqueues a run for one kind on FC_SYNC_TOPIC, for
// Cloud-Scheduler-style deployments that fan triggers in over Pub/Sub.
func PublishSyncTrigger(ctx context.Context, kind EntityKind, date string, triggeredBy string) error {
	topicName := strings.TrimSpace(os.Getenv("FC_SYNC_TOPIC"))
	if topicName == "" {
		topicName = "fc-sync"
	}
	payload := FcSyncPubSubPayload{
		Kind:        string(kind),
		Date:        date,
		TriggeredBy: triggeredBy,
	}
	_, err := config.PublishJSON(ctx, topicName, payload)
	return err
}

// PubSubPushHandler accepts Pub/Sub push deliveries of sync triggers. It
// always acks (204); a run that could not start is retried by the next
// scheduled trigger, not by Pub/Sub redelivery storms.
func PubSubPushHandler(scheduler *Scheduler) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !config.EnvBoolDefault("ENABLE_FC_PUBSUB_PUSH_ENDPOINT", true) {
			c.Status(204)
			return
		}

		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.Status(204)
			return
		}

		var envelope PubSubPushEnvelope
		if err := json.Unmarshal(body, &envelope); err != nil {
			c.Status(204)
			return
		}

		var payload FcSyncPubSubPayload
		if err := json.Unmarshal(envelope.Message.Data, &payload); err != nil {
			c.Status(204)
			return
		}
		if payload.Kind == "" {
			c.Status(204)
			return
		}

		var overrideDate *time.Time
		if t, ok := utils.ParseFcTime(payload.Date); ok {
			overrideDate = &t
		}
		triggeredBy := payload.TriggeredBy
		if triggeredBy == "" {
			triggeredBy = "pubsub"
		}

		_, _ = scheduler.TriggerKind(c.Request.Context(), EntityKind(payload.Kind), overrideDate, triggeredBy)
		c.Status(204)
	}
}
