package azurestore

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"
	"github.com/sony/gobreaker"

	"github.com/Azure/contentflow-sub002/pkg/storage"
)

// Queue is the Azure Storage Queue binding of storage.Queue. Message bodies
// are base64-encoded before send since Azure Queue messages must be valid
// UTF-8/XML-safe text.
type Queue struct {
	client  *azqueue.QueueClient
	breaker *gobreaker.CircuitBreaker
}

// NewQueue builds a Queue client against the given queue URL
// (https://<account>.queue.core.windows.net/<queue-name>), authenticating
// with cred.
func NewQueue(queueURL string, cred *Credential) (*Queue, error) {
	client, err := azqueue.NewQueueClient(queueURL, cred.TokenCredential(), nil)
	if err != nil {
		return nil, fmt.Errorf("create queue client: %w", err)
	}
	return &Queue{client: client, breaker: newBreaker("azqueue:" + client.URL())}, nil
}

func (q *Queue) Send(ctx context.Context, msg []byte, visibility time.Duration) error {
	return callWithRetry(ctx, q.breaker, func(ctx context.Context) error {
		encoded := base64.StdEncoding.EncodeToString(msg)
		ttl := int32(7 * 24 * 60 * 60)
		visSec := int32(visibility.Seconds())
		_, err := q.client.EnqueueMessage(ctx, encoded, &azqueue.EnqueueMessageOptions{
			VisibilityTimeout: &visSec,
			TimeToLive:        &ttl,
		})
		return err
	})
}

func (q *Queue) Receive(ctx context.Context, max int, visibilitySec int) ([]storage.Lease, error) {
	var leases []storage.Lease
	err := callWithRetry(ctx, q.breaker, func(ctx context.Context) error {
		leases = nil
		numMessages := int32(max)
		visTimeout := int32(visibilitySec)
		resp, err := q.client.DequeueMessages(ctx, &azqueue.DequeueMessagesOptions{
			NumberOfMessages:  &numMessages,
			VisibilityTimeout: &visTimeout,
		})
		if err != nil {
			return err
		}
		for _, m := range resp.Messages {
			if m.MessageText == nil || m.MessageID == nil || m.PopReceipt == nil {
				continue
			}
			body, err := base64.StdEncoding.DecodeString(*m.MessageText)
			if err != nil {
				body = []byte(*m.MessageText)
			}
			leases = append(leases, storage.Lease{
				Token:    encodeToken(*m.MessageID, *m.PopReceipt),
				Body:     body,
				Dequeued: time.Now(),
			})
		}
		return nil
	})
	return leases, err
}

func (q *Queue) Delete(ctx context.Context, lease storage.Lease) error {
	return callWithRetry(ctx, q.breaker, func(ctx context.Context) error {
		id, pop, err := decodeToken(lease.Token)
		if err != nil {
			return asDomainErr(err)
		}
		_, err = q.client.DeleteMessage(ctx, id, pop, nil)
		return err
	})
}

func (q *Queue) Extend(ctx context.Context, lease storage.Lease, visibilitySec int) error {
	return callWithRetry(ctx, q.breaker, func(ctx context.Context) error {
		id, pop, err := decodeToken(lease.Token)
		if err != nil {
			return asDomainErr(err)
		}
		visTimeout := int32(visibilitySec)
		_, err = q.client.UpdateMessage(ctx, id, pop, "", &azqueue.UpdateMessageOptions{
			VisibilityTimeout: &visTimeout,
		})
		return err
	})
}

func (q *Queue) ApproxLen(ctx context.Context) (int64, error) {
	var n int64
	err := callWithRetry(ctx, q.breaker, func(ctx context.Context) error {
		props, err := q.client.GetProperties(ctx, nil)
		if err != nil {
			return err
		}
		if props.ApproximateMessagesCount != nil {
			n = int64(*props.ApproximateMessagesCount)
		}
		return nil
	})
	return n, err
}

// encodeToken packs a message id and pop receipt into the single opaque
// token string storage.Lease carries, since Azure Queue needs both to
// delete or update a dequeued message.
func encodeToken(messageID, popReceipt string) string {
	return base64.URLEncoding.EncodeToString([]byte(messageID)) + "." +
		base64.URLEncoding.EncodeToString([]byte(popReceipt))
}

func decodeToken(token string) (messageID, popReceipt string, err error) {
	var idPart, popPart string
	for i := 0; i < len(token); i++ {
		if token[i] == '.' {
			idPart, popPart = token[:i], token[i+1:]
			break
		}
	}
	if idPart == "" || popPart == "" {
		return "", "", fmt.Errorf("malformed lease token")
	}
	id, err := base64.URLEncoding.DecodeString(idPart)
	if err != nil {
		return "", "", err
	}
	pop, err := base64.URLEncoding.DecodeString(popPart)
	if err != nil {
		return "", "", err
	}
	return string(id), string(pop), nil
}
