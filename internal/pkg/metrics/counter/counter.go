package counter

import (
	"context"
	"fmt"
	"strconv"

	"github.com/courselyhq/coursely/internal/pkg/cache"
)

const (
	webhookReceivedKey  = "webhooks:counters:received"
	webhookProcessedKey = "webhooks:counters:processed"
	webhookFailedKey    = "webhooks:counters:failed"
)

// AddWebhookReceived increments the received counter for a webhook source in Redis
func AddWebhookReceived(source string) error {
	ctx := context.Background()
	return cache.GetClient().HIncrBy(ctx, webhookReceivedKey, source, 1).Err()
}

// AddWebhookProcessed increments the processed counter for a webhook source in Redis
func AddWebhookProcessed(source string) error {
	ctx := context.Background()
	return cache.GetClient().HIncrBy(ctx, webhookProcessedKey, source, 1).Err()
}

// AddWebhookFailed increments the failed counter for a webhook source in Redis
func AddWebhookFailed(source string) error {
	ctx := context.Background()
	return cache.GetClient().HIncrBy(ctx, webhookFailedKey, source, 1).Err()
}

// Snapshot returns received/processed/failed totals for one webhook source.
func Snapshot(source string) (received, processed, failed int64, err error) {
	ctx := context.Background()
	rdb := cache.GetClient()

	for _, entry := range []struct {
		key string
		dst *int64
	}{
		{webhookReceivedKey, &received},
		{webhookProcessedKey, &processed},
		{webhookFailedKey, &failed},
	} {
		val, gerr := rdb.HGet(ctx, entry.key, source).Result()
		if gerr != nil {
			// Missing field just means no events of that kind yet.
			continue
		}
		n, perr := strconv.ParseInt(val, 10, 64)
		if perr != nil {
			return 0, 0, 0, fmt.Errorf("counter %s/%s holds non-numeric value %q", entry.key, source, val)
		}
		*entry.dst = n
	}
	return received, processed, failed, nil
}
