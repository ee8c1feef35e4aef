package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

type fakeSQS struct {
	mu       sync.Mutex
	batches  [][]types.Message
	deleted  []string
	delayed  map[string]int32
	receives int
	failNext bool
	// System attributes asked for by the last receive.
	systemAttributes []types.MessageSystemAttributeName
}

func (f *fakeSQS) ReceiveMessage(ctx context.Context, in *sqs.ReceiveMessageInput, _ ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error) {
	f.mu.Lock()
	f.receives++
	f.systemAttributes = in.MessageSystemAttributeNames
	if f.failNext {
		f.failNext = false
		f.mu.Unlock()
		return nil, errors.New("throttled")
	}
	if len(f.batches) > 0 {
		batch := f.batches[0]
		f.batches = f.batches[1:]
		f.mu.Unlock()
		return &sqs.ReceiveMessageOutput{Messages: batch}, nil
	}
	f.mu.Unlock()

	// Long poll with an empty queue.
	<-ctx.Done()
	return nil, ctx.Err()
}

func (f *fakeSQS) DeleteMessage(_ context.Context, in *sqs.DeleteMessageInput, _ ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, aws.ToString(in.ReceiptHandle))
	return &sqs.DeleteMessageOutput{}, nil
}

func (f *fakeSQS) ChangeMessageVisibility(_ context.Context, in *sqs.ChangeMessageVisibilityInput, _ ...func(*sqs.Options)) (*sqs.ChangeMessageVisibilityOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.delayed == nil {
		f.delayed = make(map[string]int32)
	}
	f.delayed[aws.ToString(in.ReceiptHandle)] = in.VisibilityTimeout
	return &sqs.ChangeMessageVisibilityOutput{}, nil
}

type processorFunc func(ctx context.Context, msg types.Message) (bool, int32, error)

func (f processorFunc) Process(ctx context.Context, msg types.Message) (bool, int32, error) {
	return f(ctx, msg)
}

func message(handle, body string) types.Message {
	return types.Message{
		MessageId:     aws.String("id-" + handle),
		ReceiptHandle: aws.String(handle),
		Body:          aws.String(body),
	}
}

func TestWorkerRoutesOutcomes(t *testing.T) {
	client := &fakeSQS{
		failNext: true,
		batches: [][]types.Message{{
			message("ok", `{"userId":"u1"}`),
			message("retry", `{"userId":"u2"}`),
			message("poison", `not json`),
		}},
	}

	var (
		mu      sync.Mutex
		handled int
		done    = make(chan struct{})
	)
	proc := processorFunc(func(_ context.Context, msg types.Message) (bool, int32, error) {
		mu.Lock()
		handled++
		if handled == 3 {
			close(done)
		}
		mu.Unlock()

		switch aws.ToString(msg.ReceiptHandle) {
		case "retry":
			return true, 40, errors.New("legacy api down")
		case "poison":
			return false, 0, errors.New("malformed")
		}
		return false, 0, nil
	})

	w := NewWorker(client, "queue-url", proc)
	w.Concurrency = 2
	w.ErrorBackoff = time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(stopped)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("messages not processed")
	}
	cancel()
	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not stop")
	}

	client.mu.Lock()
	defer client.mu.Unlock()
	if len(client.deleted) != 1 || client.deleted[0] != "ok" {
		t.Errorf("deleted = %v, want [ok]", client.deleted)
	}
	if client.delayed["retry"] != 40 {
		t.Errorf("retry visibility = %d, want 40", client.delayed["retry"])
	}
	if _, ok := client.delayed["poison"]; ok {
		t.Error("unrecoverable message must not be delayed")
	}
	if len(client.systemAttributes) != 1 || client.systemAttributes[0] != types.MessageSystemAttributeNameApproximateReceiveCount {
		t.Errorf("system attributes = %v; the receive count bounds retries", client.systemAttributes)
	}
	if client.receives < 2 {
		t.Errorf("receives = %d; a failed receive should be retried", client.receives)
	}
}
