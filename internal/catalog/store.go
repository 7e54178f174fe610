package catalog

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"

	"github.com/retailgrid/pos-sync/internal/aws"
)

// ErrNotFound is returned when a referenced product does not exist.
var ErrNotFound = errors.New("product not found")

// Store encapsulates operations on the products table.
type Store struct {
	client    aws.DynamoDBAPI
	tableName string
	nowFunc   func() time.Time
}

// NewStore creates a products Store.
func NewStore(client aws.DynamoDBAPI, tableName string) *Store {
	return &Store{
		client:    client,
		tableName: tableName,
		nowFunc:   time.Now,
	}
}

// TableName exposes the bound table for transaction builders in other stores.
func (s *Store) TableName() string { return s.tableName }

// Get fetches a product by id. Returns (nil, nil) if not found.
func (s *Store) Get(ctx context.Context, id string) (*Product, error) {
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
	var p Product
	if err := attributevalue.UnmarshalMap(out.Item, &p); err != nil {
		return nil, fmt.Errorf("unmarshal product: %w", err)
	}
	return &p, nil
}

// CreateIfAbsent writes the product only when the id is unused.
// Returns (true, nil) when created and (false, nil) when it already existed,
// which is how duplicate create replays become no-ops.
func (s *Store) CreateIfAbsent(ctx context.Context, p Product) (bool, error) {
	now := s.nowFunc().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now

	item, err := aws.MarshalItem(p)
	if err != nil {
		return false, fmt.Errorf("marshal product: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dyn.PutItemInput{
		TableName:           &s.tableName,
		Item:                item,
		ConditionExpression: strPtr("attribute_not_exists(id)"),
	})
	if err != nil {
		if isConditionalFailure(err) {
			return false, nil
		}
		return false, fmt.Errorf("put item: %w", err)
	}
	return true, nil
}

// ApplyPatch overwrites only the fields the patch carries. Returns (false, nil)
// when the product is absent so callers can log and move on.
func (s *Store) ApplyPatch(ctx context.Context, id string, patch ProductPatch) (bool, error) {
	if patch.IsEmpty() {
		return true, nil
	}

	sets := []string{"updated_at = :ua"}
	names := map[string]string{}
	values := map[string]types.AttributeValue{
		":ua": timeAttr(s.nowFunc()),
	}

	addSet := func(attr, placeholder string, v types.AttributeValue) {
		sets = append(sets, fmt.Sprintf("%s = %s", attr, placeholder))
		values[placeholder] = v
	}

	if patch.Name != nil {
		names["#n"] = "name"
		addSet("#n", ":n", &types.AttributeValueMemberS{Value: *patch.Name})
	}
	if patch.Price != nil {
		addSet("price", ":p", numberAttr(*patch.Price))
	}
	if patch.Category != nil {
		addSet("category", ":c", &types.AttributeValueMemberS{Value: *patch.Category})
	}
	if patch.SKU != nil {
		addSet("sku", ":sku", &types.AttributeValueMemberS{Value: *patch.SKU})
	}
	if patch.Description != nil {
		addSet("description", ":d", &types.AttributeValueMemberS{Value: *patch.Description})
	}
	if patch.InventoryCount != nil {
		addSet("inventory_count", ":ic", &types.AttributeValueMemberN{Value: strconv.Itoa(*patch.InventoryCount)})
	}
	if patch.IsAvailable != nil {
		addSet("is_available", ":av", &types.AttributeValueMemberBOOL{Value: *patch.IsAvailable})
	}
	if patch.ImageURL != nil {
		addSet("image_url", ":iu", &types.AttributeValueMemberS{Value: *patch.ImageURL})
	}
	if patch.OnlineSync != nil {
		addSet("online_sync", ":os", &types.AttributeValueMemberBOOL{Value: *patch.OnlineSync})
	}

	input := &dyn.UpdateItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"id": &types.AttributeValueMemberS{Value: id},
		},
		UpdateExpression:          strPtr("SET " + strings.Join(sets, ", ")),
		ExpressionAttributeValues: values,
		ConditionExpression:       strPtr("attribute_exists(id)"),
	}
	if len(names) > 0 {
		input.ExpressionAttributeNames = names
	}

	if _, err := s.client.UpdateItem(ctx, input); err != nil {
		if isConditionalFailure(err) {
			return false, nil
		}
		return false, fmt.Errorf("update item: %w", err)
	}
	return true, nil
}

// SetInventory sets inventory_count to an absolute value. Returns (false, nil)
// when the product is absent. Negative counts are allowed: oversell is an
// accepted policy, reconciliation happens out of band.
func (s *Store) SetInventory(ctx context.Context, id string, count int) (bool, error) {
	input := &dyn.UpdateItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"id": &types.AttributeValueMemberS{Value: id},
		},
		UpdateExpression: strPtr("SET inventory_count = :c, updated_at = :ua"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":c":  &types.AttributeValueMemberN{Value: strconv.Itoa(count)},
			":ua": timeAttr(s.nowFunc()),
		},
		ConditionExpression: strPtr("attribute_exists(id)"),
	}
	if _, err := s.client.UpdateItem(ctx, input); err != nil {
		if isConditionalFailure(err) {
			return false, nil
		}
		return false, fmt.Errorf("update item: %w", err)
	}
	return true, nil
}

// AdjustInventory applies a relative inventory change. Returns (false, nil)
// when the product is absent.
func (s *Store) AdjustInventory(ctx context.Context, id string, delta int) (bool, error) {
	input := &dyn.UpdateItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"id": &types.AttributeValueMemberS{Value: id},
		},
		UpdateExpression: strPtr("SET updated_at = :ua ADD inventory_count :delta"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":delta": &types.AttributeValueMemberN{Value: strconv.Itoa(delta)},
			":ua":    timeAttr(s.nowFunc()),
		},
		ConditionExpression: strPtr("attribute_exists(id)"),
	}
	if _, err := s.client.UpdateItem(ctx, input); err != nil {
		if isConditionalFailure(err) {
			return false, nil
		}
		return false, fmt.Errorf("update item: %w", err)
	}
	return true, nil
}

// InventoryAdjustment builds the transact entry that decrements a product's
// count inside an order-completion transaction.
func (s *Store) InventoryAdjustment(id string, delta int) types.TransactWriteItem {
	return types.TransactWriteItem{
		Update: &types.Update{
			TableName: &s.tableName,
			Key: map[string]types.AttributeValue{
				"id": &types.AttributeValueMemberS{Value: id},
			},
			UpdateExpression: strPtr("SET updated_at = :ua ADD inventory_count :delta"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":delta": &types.AttributeValueMemberN{Value: strconv.Itoa(delta)},
				":ua":    timeAttr(s.nowFunc()),
			},
			ConditionExpression: strPtr("attribute_exists(id)"),
		},
	}
}

// List returns products, optionally filtered by category and availability,
// sorted by name.
func (s *Store) List(ctx context.Context, category string, availableOnly bool) ([]Product, error) {
	input := &dyn.ScanInput{TableName: &s.tableName}

	var clauses []string
	values := map[string]types.AttributeValue{}
	if category != "" {
		clauses = append(clauses, "category = :cat")
		values[":cat"] = &types.AttributeValueMemberS{Value: category}
	}
	if availableOnly {
		clauses = append(clauses, "is_available = :true")
		values[":true"] = &types.AttributeValueMemberBOOL{Value: true}
	}
	if len(clauses) > 0 {
		input.FilterExpression = strPtr(strings.Join(clauses, " AND "))
		input.ExpressionAttributeValues = values
	}

	out, err := s.client.Scan(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("scan products: %w", err)
	}
	products, err := unmarshalProducts(out.Items)
	if err != nil {
		return nil, err
	}
	sortProducts(products, func(a, b Product) bool { return a.Name < b.Name })
	return products, nil
}

// ListUpdatedSince returns sync-eligible products updated after the given time,
// oldest update first.
func (s *Store) ListUpdatedSince(ctx context.Context, since time.Time) ([]Product, error) {
	out, err := s.client.Scan(ctx, &dyn.ScanInput{
		TableName:        &s.tableName,
		FilterExpression: strPtr("updated_at > :since AND online_sync = :true"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":since": timeAttr(since),
			":true":  &types.AttributeValueMemberBOOL{Value: true},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("scan products: %w", err)
	}
	products, err := unmarshalProducts(out.Items)
	if err != nil {
		return nil, err
	}
	sortProducts(products, func(a, b Product) bool { return a.UpdatedAt.Before(b.UpdatedAt) })
	return products, nil
}

func unmarshalProducts(items []map[string]types.AttributeValue) ([]Product, error) {
	products := make([]Product, 0, len(items))
	for _, item := range items {
		var p Product
		if err := attributevalue.UnmarshalMap(item, &p); err != nil {
			return nil, fmt.Errorf("unmarshal product: %w", err)
		}
		products = append(products, p)
	}
	return products, nil
}

func sortProducts(products []Product, less func(a, b Product) bool) {
	sort.Slice(products, func(i, j int) bool { return less(products[i], products[j]) })
}

func isConditionalFailure(err error) bool {
	var ccf *types.ConditionalCheckFailedException
	if errors.As(err, &ccf) {
		return true
	}
	var api smithy.APIError
	return errors.As(err, &api) && api.ErrorCode() == "ConditionalCheckFailedException"
}

func strPtr(s string) *string { return &s }

func numberAttr(f float64) types.AttributeValue {
	return &types.AttributeValueMemberN{Value: strconv.FormatFloat(f, 'f', -1, 64)}
}

func timeAttr(t time.Time) types.AttributeValue {
	return aws.TimeAttr(t)
}
