// Package ingest feeds externally produced alert events into the pending
// alerts table. Producers deliver at least once; idempotent inserts keyed by
// event id keep the table deduplicated.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	"workflow-orchestrator/internal/models"
	"workflow-orchestrator/internal/store"
)

// Event is the wire shape of an inbound alert request.
type Event struct {
	EventID               string `json:"eventId"`
	AlertGroupID          int    `json:"alertGroupId"`
	Title                 string `json:"title"`
	Content               string `json:"content"`
	AlertType             string `json:"alertType"`
	WarningType           string `json:"warningType"`
	ProcessDefinitionCode int64  `json:"processDefinitionCode"`
}

// AlertCreator is the storage surface the consumer needs.
type AlertCreator interface {
	CreateAlert(ctx context.Context, p store.CreateAlertParams) (bool, error)
}

// Consumer drains alert events from a kafka topic into storage. Offsets are
// committed only after the insert succeeds, so a crash re-delivers and the
// event-id unique key absorbs the replay.
type Consumer struct {
	reader *kafka.Reader
	store  AlertCreator
	log    *logrus.Logger
}

type Config struct {
	Brokers []string
	Topic   string
	GroupID string
}

func NewConsumer(cfg Config, st AlertCreator, log *logrus.Logger) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	return &Consumer{reader: reader, store: st, log: log}
}

// Run consumes until ctx is cancelled. Malformed messages are logged and
// committed so they do not wedge the partition.
func (c *Consumer) Run(ctx context.Context) error {
	c.log.WithField("topic", c.reader.Config().Topic).Info("alert ingest consumer started")
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return fmt.Errorf("fetch alert event: %w", err)
		}

		if err := c.handle(ctx, msg.Value); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			// Storage errors are transient; leave the offset uncommitted so
			// the event is re-delivered.
			c.log.WithError(err).Error("persist alert event failed, will retry")
			continue
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.log.WithError(err).Error("commit alert event offset failed")
		}
	}
}

func (c *Consumer) handle(ctx context.Context, value []byte) error {
	var ev Event
	if err := json.Unmarshal(value, &ev); err != nil {
		c.log.WithError(err).Warn("dropping malformed alert event")
		return nil
	}
	if ev.Title == "" && ev.Content == "" {
		c.log.Warn("dropping empty alert event")
		return nil
	}
	if ev.EventID == "" {
		ev.EventID = uuid.NewString()
	}

	warnType, err := models.ParseWarningType(ev.WarningType)
	if err != nil {
		warnType = models.WarningAll
	}

	created, err := c.store.CreateAlert(ctx, store.CreateAlertParams{
		EventID:               ev.EventID,
		AlertGroupID:          ev.AlertGroupID,
		Title:                 ev.Title,
		Content:               ev.Content,
		AlertType:             models.AlertType(ev.AlertType),
		WarningType:           warnType,
		ProcessDefinitionCode: ev.ProcessDefinitionCode,
	})
	if err != nil {
		return err
	}
	if !created {
		c.log.WithField("event_id", ev.EventID).Debug("duplicate alert event ignored")
	}
	return nil
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
