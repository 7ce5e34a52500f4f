package dispatch

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSQS struct {
	sent    []string
	deleted []string
	queue   []types.Message
}

func (f *fakeSQS) SendMessage(_ context.Context, in *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	f.sent = append(f.sent, aws.ToString(in.MessageBody))
	return &sqs.SendMessageOutput{MessageId: aws.String("m1")}, nil
}

func (f *fakeSQS) ReceiveMessage(_ context.Context, in *sqs.ReceiveMessageInput, _ ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error) {
	n := int(in.MaxNumberOfMessages)
	if n > len(f.queue) {
		n = len(f.queue)
	}
	out := f.queue[:n]
	f.queue = f.queue[n:]
	return &sqs.ReceiveMessageOutput{Messages: out}, nil
}

func (f *fakeSQS) DeleteMessage(_ context.Context, in *sqs.DeleteMessageInput, _ ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error) {
	f.deleted = append(f.deleted, aws.ToString(in.ReceiptHandle))
	return &sqs.DeleteMessageOutput{}, nil
}

func TestSQSQueue_RoundTrip(t *testing.T) {
	fake := &fakeSQS{queue: []types.Message{
		{MessageId: aws.String("a"), Body: aws.String(`{"kind":"sync_all"}`), ReceiptHandle: aws.String("r-a")},
		{MessageId: aws.String("b"), Body: aws.String(`{"kind":"sync_all"}`), ReceiptHandle: aws.String("r-b")},
	}}
	q := NewSQSQueue(fake, "https://sqs.local/queue")
	ctx := context.Background()

	require.NoError(t, q.Send(ctx, "hello"))
	assert.Equal(t, []string{"hello"}, fake.sent)

	msgs, err := q.Receive(ctx, 1, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "a", msgs[0].ID)
	assert.Equal(t, "r-a", msgs[0].ReceiptHandle)

	require.NoError(t, q.Delete(ctx, msgs[0].ReceiptHandle))
	require.NoError(t, q.Delete(ctx, ""))
	assert.Equal(t, []string{"r-a"}, fake.deleted)
}

func TestNewSQSQueue_Panics(t *testing.T) {
	assert.Panics(t, func() { NewSQSQueue(nil, "url") })
	assert.Panics(t, func() { NewSQSQueue(&fakeSQS{}, "") })
}
