package syncqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sort"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"

	"github.com/retailgrid/pos-sync/internal/aws"
)

// MaxRetries is the ceiling above which a failed item is no longer reclaimed
// by ClaimPending. Such items sit failed until the retention purge removes
// them (or an operator re-enqueues the mutation).
const MaxRetries = 5

// Store encapsulates the durable mutation queue on DynamoDB.
type Store struct {
	client    aws.DynamoDBAPI
	tableName string
	nowFunc   func() time.Time
}

// NewStore creates a queue Store.
func NewStore(client aws.DynamoDBAPI, tableName string) *Store {
	return &Store{
		client:    client,
		tableName: tableName,
		nowFunc:   time.Now,
	}
}

// TableName exposes the bound table for transaction builders in other stores.
func (s *Store) TableName() string { return s.tableName }

// NewItem assembles a pending queue item without persisting it. payload is
// JSON-marshaled into the item's payload document.
func (s *Store) NewItem(entityType, entityID, operation string, payload interface{}, deviceID string) (Item, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Item{}, fmt.Errorf("marshal payload: %w", err)
	}
	now := s.nowFunc().UTC()
	return Item{
		ID:         uuid.NewString(),
		EntityType: entityType,
		EntityID:   entityID,
		Operation:  operation,
		Payload:    string(data),
		DeviceID:   deviceID,
		Status:     StatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

// BuildPut marshals an item into a transact Put entry so callers can append
// the enqueue to their own TransactWriteItems call.
func (s *Store) BuildPut(item Item) (types.TransactWriteItem, error) {
	m, err := aws.MarshalItem(item)
	if err != nil {
		return types.TransactWriteItem{}, fmt.Errorf("marshal queue item: %w", err)
	}
	return types.TransactWriteItem{
		Put: &types.Put{
			TableName: &s.tableName,
			Item:      m,
		},
	}, nil
}

// Enqueue appends a pending mutation and returns its queue id.
func (s *Store) Enqueue(ctx context.Context, entityType, entityID, operation string, payload interface{}, deviceID string) (string, error) {
	item, err := s.NewItem(entityType, entityID, operation, payload, deviceID)
	if err != nil {
		return "", err
	}
	m, err := aws.MarshalItem(item)
	if err != nil {
		return "", fmt.Errorf("marshal queue item: %w", err)
	}
	if _, err := s.client.PutItem(ctx, &dyn.PutItemInput{
		TableName: &s.tableName,
		Item:      m,
	}); err != nil {
		return "", fmt.Errorf("put queue item: %w", err)
	}
	return item.ID, nil
}

// ClaimPending claims up to limit items for processing, oldest first. Pending
// items and failed items below MaxRetries are eligible; each claim flips the
// item to processing with a conditional update, so an item grabbed by a racing
// claimer is silently skipped. Only the sync engine calls this, under its
// drain guard.
func (s *Store) ClaimPending(ctx context.Context, limit int) ([]Item, error) {
	pending, err := s.scanByStatus(ctx, StatusPending, nil)
	if err != nil {
		return nil, err
	}
	retryable, err := s.scanByStatus(ctx, StatusFailed, strPtr("retry_count < :max"))
	if err != nil {
		return nil, err
	}

	candidates := append(pending, retryable...)
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].CreatedAt.Before(candidates[j].CreatedAt)
	})

	claimed := make([]Item, 0, limit)
	for _, it := range candidates {
		if len(claimed) == limit {
			break
		}
		ok, err := s.transition(ctx, it.ID, it.Status, StatusProcessing)
		if err != nil {
			return claimed, err
		}
		if !ok {
			continue
		}
		it.Status = StatusProcessing
		claimed = append(claimed, it)
	}
	return claimed, nil
}

// MarkCompleted moves a processing item to its terminal completed state. An
// item no longer in processing is reported as an error so the caller can
// account for the missed transition.
func (s *Store) MarkCompleted(ctx context.Context, id string) error {
	ok, err := s.transition(ctx, id, StatusProcessing, StatusCompleted)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("queue item %s is not processing", id)
	}
	return nil
}

// MarkFailed moves an item to failed and increments its retry count.
func (s *Store) MarkFailed(ctx context.Context, id string) error {
	now := s.nowFunc().UTC()
	input := &dyn.UpdateItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"id": &types.AttributeValueMemberS{Value: id},
		},
		UpdateExpression:         strPtr("SET #s = :failed, updated_at = :ua ADD retry_count :one"),
		ExpressionAttributeNames: map[string]string{"#s": "status"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":failed": &types.AttributeValueMemberS{Value: StatusFailed},
			":ua":     aws.TimeAttr(now),
			":one":    &types.AttributeValueMemberN{Value: "1"},
		},
		ConditionExpression: strPtr("attribute_exists(id)"),
	}
	if _, err := s.client.UpdateItem(ctx, input); err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	return nil
}

// PurgeTerminalOlderThan deletes completed and failed items whose last update
// predates the cutoff. Non-terminal items are never touched, however old.
func (s *Store) PurgeTerminalOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	purged := 0
	for _, status := range []string{StatusCompleted, StatusFailed} {
		items, err := s.scanByStatusBefore(ctx, status, cutoff)
		if err != nil {
			return purged, err
		}
		for _, it := range items {
			_, err := s.client.DeleteItem(ctx, &dyn.DeleteItemInput{
				TableName: &s.tableName,
				Key: map[string]types.AttributeValue{
					"id": &types.AttributeValueMemberS{Value: it.ID},
				},
			})
			if err != nil {
				return purged, fmt.Errorf("delete queue item: %w", err)
			}
			purged++
		}
	}
	return purged, nil
}

// PendingCountForDevice reports how many pending items a device still has
// queued, for the sync-status endpoint.
func (s *Store) PendingCountForDevice(ctx context.Context, deviceID string) (int, error) {
	out, err := s.client.Scan(ctx, &dyn.ScanInput{
		TableName:        &s.tableName,
		FilterExpression: strPtr("#s = :status AND device_id = :d"),
		ExpressionAttributeNames: map[string]string{
			"#s": "status",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":status": &types.AttributeValueMemberS{Value: StatusPending},
			":d":      &types.AttributeValueMemberS{Value: deviceID},
		},
	})
	if err != nil {
		return 0, fmt.Errorf("scan queue: %w", err)
	}
	return int(out.Count), nil
}

// transition flips id from expected to next. Returns (false, nil) when the
// conditional check fails, meaning the item was not in the expected status.
func (s *Store) transition(ctx context.Context, id, expected, next string) (bool, error) {
	now := s.nowFunc().UTC()
	input := &dyn.UpdateItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"id": &types.AttributeValueMemberS{Value: id},
		},
		UpdateExpression:         strPtr("SET #s = :next, updated_at = :ua"),
		ExpressionAttributeNames: map[string]string{"#s": "status"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":next":     &types.AttributeValueMemberS{Value: next},
			":ua":       aws.TimeAttr(now),
			":expected": &types.AttributeValueMemberS{Value: expected},
		},
		ConditionExpression: strPtr("#s = :expected"),
	}
	if _, err := s.client.UpdateItem(ctx, input); err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			log.Printf("[syncqueue] skipped transition %s -> %s for item=%s", expected, next, id)
			return false, nil
		}
		return false, fmt.Errorf("transition queue item: %w", err)
	}
	return true, nil
}

func (s *Store) scanByStatus(ctx context.Context, status string, extra *string) ([]Item, error) {
	filter := "#s = :status"
	values := map[string]types.AttributeValue{
		":status": &types.AttributeValueMemberS{Value: status},
	}
	if extra != nil {
		filter += " AND " + *extra
		values[":max"] = &types.AttributeValueMemberN{Value: strconv.Itoa(MaxRetries)}
	}
	return s.scan(ctx, filter, values)
}

func (s *Store) scanByStatusBefore(ctx context.Context, status string, cutoff time.Time) ([]Item, error) {
	return s.scan(ctx, "#s = :status AND updated_at < :cutoff", map[string]types.AttributeValue{
		":status": &types.AttributeValueMemberS{Value: status},
		":cutoff": aws.TimeAttr(cutoff),
	})
}

func (s *Store) scan(ctx context.Context, filter string, values map[string]types.AttributeValue) ([]Item, error) {
	out, err := s.client.Scan(ctx, &dyn.ScanInput{
		TableName:                 &s.tableName,
		FilterExpression:          &filter,
		ExpressionAttributeNames:  map[string]string{"#s": "status"},
		ExpressionAttributeValues: values,
	})
	if err != nil {
		return nil, fmt.Errorf("scan queue: %w", err)
	}
	items := make([]Item, 0, len(out.Items))
	for _, raw := range out.Items {
		var it Item
		if err := attributevalue.UnmarshalMap(raw, &it); err != nil {
			return nil, fmt.Errorf("unmarshal queue item: %w", err)
		}
		items = append(items, it)
	}
	return items, nil
}

func strPtr(s string) *string { return &s }
