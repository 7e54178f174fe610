package orders

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/retailgrid/pos-sync/internal/aws"
)

// ErrNotFound is returned when a referenced order does not exist.
var ErrNotFound = errors.New("order not found")

// ErrStatusMismatch indicates a conditional status transition failed, e.g. a
// completion raced with another completion of the same order.
var ErrStatusMismatch = errors.New("order status mismatch")

// Store encapsulates operations on the orders table.
type Store struct {
	client    aws.DynamoDBAPI
	tableName string
	nowFunc   func() time.Time
}

// NewStore creates an orders Store.
func NewStore(client aws.DynamoDBAPI, tableName string) *Store {
	return &Store{
		client:    client,
		tableName: tableName,
		nowFunc:   time.Now,
	}
}

// Get fetches an order by id. Returns (nil, nil) if not found.
func (s *Store) Get(ctx context.Context, id string) (*Order, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"id": &types.AttributeValueMemberS{Value: id},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var o Order
	if err := attributevalue.UnmarshalMap(out.Item, &o); err != nil {
		return nil, fmt.Errorf("unmarshal order: %w", err)
	}
	return &o, nil
}

// CreateTransaction persists a new order plus any companion writes (typically
// the sync-queue entry for an offline order) in one TransactWriteItems call:
// all rows land or none do. The order put is guarded so an id collision
// cancels the whole transaction.
func (s *Store) CreateTransaction(ctx context.Context, order Order, extras []types.TransactWriteItem) error {
	now := s.nowFunc().UTC()
	if order.CreatedAt.IsZero() {
		order.CreatedAt = now
	}
	order.UpdatedAt = now

	orderMap, err := aws.MarshalItem(order)
	if err != nil {
		return fmt.Errorf("marshal order: %w", err)
	}

	items := append([]types.TransactWriteItem{{
		Put: &types.Put{
			TableName:           &s.tableName,
			Item:                orderMap,
			ConditionExpression: strPtr("attribute_not_exists(id)"),
		},
	}}, extras...)

	if _, err := s.client.TransactWriteItems(ctx, &dyn.TransactWriteItemsInput{TransactItems: items}); err != nil {
		var tce *types.TransactionCanceledException
		if errors.As(err, &tce) {
			return fmt.Errorf("transaction canceled: %w", err)
		}
		return fmt.Errorf("transact write: %w", err)
	}
	return nil
}

// CreateIfAbsent writes a replayed order only when the id is unused. Returns
// (false, nil) when the order already exists: the idempotent no-op path for
// duplicate create replays.
func (s *Store) CreateIfAbsent(ctx context.Context, order Order) (bool, error) {
	now := s.nowFunc().UTC()
	if order.CreatedAt.IsZero() {
		order.CreatedAt = now
	}
	order.UpdatedAt = now

	item, err := aws.MarshalItem(order)
	if err != nil {
		return false, fmt.Errorf("marshal order: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dyn.PutItemInput{
		TableName:           &s.tableName,
		Item:                item,
		ConditionExpression: strPtr("attribute_not_exists(id)"),
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return false, nil
		}
		return false, fmt.Errorf("put item: %w", err)
	}
	return true, nil
}

// CompletionFields carries the order mutation applied on completion.
type CompletionFields struct {
	PaymentStatus string
	PaymentMethod string
	SyncStatus    string // empty to leave unchanged
	ReceiptData   string // empty to leave unchanged
	ReceiptImage  string
}

// CompleteTransaction flips the order to completed together with its companion
// writes (inventory adjustments, sync-queue entries) in one transaction. The
// order update is conditioned on status=pending, so a second completion of the
// same order cancels the transaction and surfaces ErrStatusMismatch: inventory
// is decremented exactly once per order.
func (s *Store) CompleteTransaction(ctx context.Context, orderID string, fields CompletionFields, extras []types.TransactWriteItem) error {
	now := s.nowFunc().UTC()
	sets := []string{"#s = :completed", "payment_status = :ps", "updated_at = :ua"}
	values := map[string]types.AttributeValue{
		":completed": &types.AttributeValueMemberS{Value: StatusCompleted},
		":ps":        &types.AttributeValueMemberS{Value: fields.PaymentStatus},
		":ua":        aws.TimeAttr(now),
		":pending":   &types.AttributeValueMemberS{Value: StatusPending},
	}
	if fields.PaymentMethod != "" {
		sets = append(sets, "payment_method = :pm")
		values[":pm"] = &types.AttributeValueMemberS{Value: fields.PaymentMethod}
	}
	if fields.SyncStatus != "" {
		sets = append(sets, "sync_status = :ss")
		values[":ss"] = &types.AttributeValueMemberS{Value: fields.SyncStatus}
	}
	if fields.ReceiptData != "" {
		sets = append(sets, "receipt_data = :rd", "receipt_image = :ri")
		values[":rd"] = &types.AttributeValueMemberS{Value: fields.ReceiptData}
		values[":ri"] = &types.AttributeValueMemberS{Value: fields.ReceiptImage}
	}

	items := append([]types.TransactWriteItem{{
		Update: &types.Update{
			TableName: &s.tableName,
			Key: map[string]types.AttributeValue{
				"id": &types.AttributeValueMemberS{Value: orderID},
			},
			UpdateExpression:          strPtr("SET " + strings.Join(sets, ", ")),
			ExpressionAttributeNames:  map[string]string{"#s": "status"},
			ExpressionAttributeValues: values,
			ConditionExpression:       strPtr("#s = :pending"),
		},
	}}, extras...)

	if _, err := s.client.TransactWriteItems(ctx, &dyn.TransactWriteItemsInput{TransactItems: items}); err != nil {
		var tce *types.TransactionCanceledException
		if errors.As(err, &tce) {
			return ErrStatusMismatch
		}
		return fmt.Errorf("transact write: %w", err)
	}
	return nil
}

// ApplyStatusPatch overwrites status/payment/receipt fields from a replayed
// order update. Returns (false, nil) when the order is absent.
func (s *Store) ApplyStatusPatch(ctx context.Context, patch StatusPatch) (bool, error) {
	now := s.nowFunc().UTC()
	sets := []string{"updated_at = :ua"}
	names := map[string]string{}
	values := map[string]types.AttributeValue{
		":ua": aws.TimeAttr(now),
	}
	if patch.Status != "" {
		names["#s"] = "status"
		sets = append(sets, "#s = :st")
		values[":st"] = &types.AttributeValueMemberS{Value: patch.Status}
	}
	if patch.PaymentStatus != "" {
		sets = append(sets, "payment_status = :ps")
		values[":ps"] = &types.AttributeValueMemberS{Value: patch.PaymentStatus}
	}
	if patch.PaymentMethod != "" {
		sets = append(sets, "payment_method = :pm")
		values[":pm"] = &types.AttributeValueMemberS{Value: patch.PaymentMethod}
	}
	if patch.ReceiptData != "" {
		sets = append(sets, "receipt_data = :rd")
		values[":rd"] = &types.AttributeValueMemberS{Value: patch.ReceiptData}
	}
	if patch.ReceiptImage != "" {
		sets = append(sets, "receipt_image = :ri")
		values[":ri"] = &types.AttributeValueMemberS{Value: patch.ReceiptImage}
	}

	input := &dyn.UpdateItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"id": &types.AttributeValueMemberS{Value: patch.ID},
		},
		UpdateExpression:          strPtr("SET " + strings.Join(sets, ", ")),
		ExpressionAttributeValues: values,
		ConditionExpression:       strPtr("attribute_exists(id)"),
	}
	if len(names) > 0 {
		input.ExpressionAttributeNames = names
	}

	if _, err := s.client.UpdateItem(ctx, input); err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return false, nil
		}
		return false, fmt.Errorf("update item: %w", err)
	}
	return true, nil
}

// ListCompletedSince returns refs of completed orders created after since from
// devices other than excludeDeviceID, oldest first, capped at limit.
func (s *Store) ListCompletedSince(ctx context.Context, since time.Time, excludeDeviceID string, limit int) ([]Ref, error) {
	out, err := s.client.Scan(ctx, &dyn.ScanInput{
		TableName:                &s.tableName,
		FilterExpression:         strPtr("created_at > :since AND #s = :completed AND device_id <> :device"),
		ExpressionAttributeNames: map[string]string{"#s": "status"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":since":     aws.TimeAttr(since),
			":completed": &types.AttributeValueMemberS{Value: StatusCompleted},
			":device":    &types.AttributeValueMemberS{Value: excludeDeviceID},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("scan orders: %w", err)
	}

	full := make([]Order, 0, len(out.Items))
	for _, raw := range out.Items {
		var o Order
		if err := attributevalue.UnmarshalMap(raw, &o); err != nil {
			return nil, fmt.Errorf("unmarshal order: %w", err)
		}
		full = append(full, o)
	}
	sort.Slice(full, func(i, j int) bool { return full[i].CreatedAt.Before(full[j].CreatedAt) })

	refs := make([]Ref, 0, limit)
	for _, o := range full {
		if len(refs) == limit {
			break
		}
		refs = append(refs, Ref{ID: o.ID, OrderNumber: o.OrderNumber, Status: o.Status})
	}
	return refs, nil
}

func strPtr(s string) *string { return &s }
