package broker

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

// SQSAPI is the subset of the SQS client the queue uses.
type SQSAPI interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessageBatch(ctx context.Context, params *sqs.DeleteMessageBatchInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageBatchOutput, error)
	ChangeMessageVisibilityBatch(ctx context.Context, params *sqs.ChangeMessageVisibilityBatchInput, optFns ...func(*sqs.Options)) (*sqs.ChangeMessageVisibilityBatchOutput, error)
}

const (
	_sqsMaxBatch    = 10
	_sqsMaxWait     = 20
	_attrMessageID  = "messageId"
	_attrReceiveCnt = string(types.MessageSystemAttributeNameApproximateReceiveCount)
)

// SQSQueue is a Queue backed by SQS. The receive ceiling and dead-letter
// target are the queue's redrive policy, configured on the queue itself.
type SQSQueue struct {
	client   SQSAPI
	queueURL string
}

func NewSQSQueue(client SQSAPI, queueURL string) *SQSQueue {
	return &SQSQueue{
		client:   client,
		queueURL: queueURL,
	}
}

func (q *SQSQueue) Send(ctx context.Context, msg Message) error {
	attrs := make(map[string]types.MessageAttributeValue, len(msg.Attributes)+1)
	for k, v := range msg.Attributes {
		attrs[k] = types.MessageAttributeValue{DataType: aws.String("String"), StringValue: aws.String(v)}
	}
	attrs[_attrMessageID] = types.MessageAttributeValue{DataType: aws.String("String"), StringValue: aws.String(msg.ID)}

	_, err := q.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:          aws.String(q.queueURL),
		MessageBody:       aws.String(string(msg.Body)),
		MessageAttributes: attrs,
	})
	if err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}

func (q *SQSQueue) Receive(ctx context.Context, max int, window time.Duration) ([]Delivery, error) {
	if max <= 0 {
		max = 1
	}
	deadline := time.Now().Add(window)

	var out []Delivery
	for len(out) < max {
		remaining := time.Until(deadline)
		if remaining < 0 {
			remaining = 0
		}
		wait := min(int32((remaining+time.Second-1)/time.Second), _sqsMaxWait)

		result, err := q.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
			QueueUrl:                    aws.String(q.queueURL),
			MaxNumberOfMessages:         int32(min(max-len(out), _sqsMaxBatch)),
			WaitTimeSeconds:             wait,
			MessageAttributeNames:       []string{"All"},
			MessageSystemAttributeNames: []types.MessageSystemAttributeName{types.MessageSystemAttributeNameApproximateReceiveCount},
		})
		if err != nil {
			if len(out) > 0 {
				return out, nil
			}
			return nil, fmt.Errorf("failed to receive messages: %w", err)
		}
		for _, m := range result.Messages {
			out = append(out, fromSQS(m))
		}
		if remaining == 0 {
			break
		}
	}
	return out, nil
}

func fromSQS(m types.Message) Delivery {
	attrs := make(map[string]string, len(m.MessageAttributes))
	for k, v := range m.MessageAttributes {
		if k == _attrMessageID {
			continue
		}
		attrs[k] = aws.ToString(v.StringValue)
	}

	id := aws.ToString(m.MessageId)
	if v, ok := m.MessageAttributes[_attrMessageID]; ok && v.StringValue != nil {
		id = *v.StringValue
	}
	count, _ := strconv.Atoi(m.Attributes[_attrReceiveCnt])

	return Delivery{
		Message: Message{
			ID:         id,
			Body:       []byte(aws.ToString(m.Body)),
			Attributes: attrs,
		},
		Receipt:      aws.ToString(m.ReceiptHandle),
		ReceiveCount: count,
	}
}

func (q *SQSQueue) Ack(ctx context.Context, deliveries ...Delivery) error {
	for start := 0; start < len(deliveries); start += _sqsMaxBatch {
		chunk := deliveries[start:min(start+_sqsMaxBatch, len(deliveries))]
		entries := make([]types.DeleteMessageBatchRequestEntry, 0, len(chunk))
		for i, d := range chunk {
			entries = append(entries, types.DeleteMessageBatchRequestEntry{
				Id:            aws.String(strconv.Itoa(i)),
				ReceiptHandle: aws.String(d.Receipt),
			})
		}
		result, err := q.client.DeleteMessageBatch(ctx, &sqs.DeleteMessageBatchInput{
			QueueUrl: aws.String(q.queueURL),
			Entries:  entries,
		})
		if err != nil {
			return fmt.Errorf("failed to delete messages: %w", err)
		}
		if len(result.Failed) > 0 {
			return fmt.Errorf("failed to delete %d messages: %s", len(result.Failed), aws.ToString(result.Failed[0].Message))
		}
	}
	return nil
}

// Nack makes the messages visible again right away so the next receive
// counts as a redelivery.
func (q *SQSQueue) Nack(ctx context.Context, deliveries ...Delivery) error {
	for start := 0; start < len(deliveries); start += _sqsMaxBatch {
		chunk := deliveries[start:min(start+_sqsMaxBatch, len(deliveries))]
		entries := make([]types.ChangeMessageVisibilityBatchRequestEntry, 0, len(chunk))
		for i, d := range chunk {
			entries = append(entries, types.ChangeMessageVisibilityBatchRequestEntry{
				Id:                aws.String(strconv.Itoa(i)),
				ReceiptHandle:     aws.String(d.Receipt),
				VisibilityTimeout: 0,
			})
		}
		if _, err := q.client.ChangeMessageVisibilityBatch(ctx, &sqs.ChangeMessageVisibilityBatchInput{
			QueueUrl: aws.String(q.queueURL),
			Entries:  entries,
		}); err != nil {
			return fmt.Errorf("failed to release messages: %w", err)
		}
	}
	return nil
}
