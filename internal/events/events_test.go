package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/Shopify/sarama"
	"github.com/Shopify/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKafkaPublish(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	producer.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		var ev Event
		if err := json.Unmarshal(val, &ev); err != nil {
			return err
		}
		if ev.Type != TermsRenamed || ev.Taxonomy != "post_tag" {
			return errors.New("unexpected event " + string(val))
		}
		if !ev.Time.Equal(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)) {
			return errors.New("unexpected time " + ev.Time.String())
		}
		return nil
	})

	k := NewKafkaWithProducer(producer, "taxopress.terms")
	k.now = func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }

	err := k.Publish(context.Background(), Event{
		Type:     TermsRenamed,
		Taxonomy: "post_tag",
		Terms:    []string{"golang"},
		Target:   []string{"go"},
		Objects:  3,
	})
	require.NoError(t, err)
	require.NoError(t, k.Close())
	require.NoError(t, k.Close())

	err = k.Publish(context.Background(), Event{Type: TermsAdded})
	assert.Error(t, err)
}

func TestKafkaPublishFailure(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	k := NewKafkaWithProducer(producer, "taxopress.terms")
	err := k.Publish(context.Background(), Event{Type: TermsDeleted, Taxonomy: "category"})
	assert.ErrorIs(t, err, sarama.ErrOutOfBrokers)
	require.NoError(t, k.Close())
}

func TestKafkaPublishCanceled(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	k := NewKafkaWithProducer(producer, "taxopress.terms")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, k.Publish(ctx, Event{Type: TermsAdded}), context.Canceled)
	require.NoError(t, k.Close())
}

func TestNop(t *testing.T) {
	var p Publisher = Nop{}
	assert.NoError(t, p.Publish(context.Background(), Event{Type: TermsAdded}))
	assert.NoError(t, p.Close())
}
