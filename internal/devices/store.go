// Package devices tracks the edge terminals that may operate offline.
// Devices are registered or refreshed on heartbeat and never deleted.
package devices

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/retailgrid/pos-sync/internal/aws"
)

// Device is the item stored in the devices table, keyed by device_id.
type Device struct {
	DeviceID  string    `dynamodbav:"device_id" json:"device_id"`
	Name      string    `dynamodbav:"name,omitempty" json:"name,omitempty"`
	Location  string    `dynamodbav:"location,omitempty" json:"location,omitempty"`
	LastSeen  time.Time `dynamodbav:"last_seen" json:"last_seen"`
	IsOnline  bool      `dynamodbav:"is_online" json:"is_online"`
	IPAddress string    `dynamodbav:"ip_address,omitempty" json:"ip_address,omitempty"`
	CreatedAt time.Time `dynamodbav:"created_at" json:"created_at"`
}

// Store encapsulates operations on the devices table.
type Store struct {
	client    aws.DynamoDBAPI
	tableName string
	nowFunc   func() time.Time
}

// NewStore creates a devices Store.
func NewStore(client aws.DynamoDBAPI, tableName string) *Store {
	return &Store{
		client:    client,
		tableName: tableName,
		nowFunc:   time.Now,
	}
}

// Get fetches a device. Returns (nil, nil) if unknown.
func (s *Store) Get(ctx context.Context, deviceID string) (*Device, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"device_id": &types.AttributeValueMemberS{Value: deviceID},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var d Device
	if err := attributevalue.UnmarshalMap(out.Item, &d); err != nil {
		return nil, fmt.Errorf("unmarshal device: %w", err)
	}
	return &d, nil
}

// Register upserts a device record and marks it online.
func (s *Store) Register(ctx context.Context, deviceID, name, location, ipAddress string) (*Device, error) {
	now := s.nowFunc().UTC()

	existing, err := s.Get(ctx, deviceID)
	if err != nil {
		return nil, err
	}

	d := Device{
		DeviceID:  deviceID,
		Name:      name,
		Location:  location,
		LastSeen:  now,
		IsOnline:  true,
		IPAddress: ipAddress,
		CreatedAt: now,
	}
	if existing != nil {
		d.CreatedAt = existing.CreatedAt
		if name == "" {
			d.Name = existing.Name
		}
		if location == "" {
			d.Location = existing.Location
		}
	}

	item, err := aws.MarshalItem(d)
	if err != nil {
		return nil, fmt.Errorf("marshal device: %w", err)
	}
	if _, err := s.client.PutItem(ctx, &dyn.PutItemInput{
		TableName: &s.tableName,
		Item:      item,
	}); err != nil {
		return nil, fmt.Errorf("put item: %w", err)
	}
	return &d, nil
}

// Heartbeat refreshes last_seen for a known device. Returns (false, nil) when
// the device was never registered.
func (s *Store) Heartbeat(ctx context.Context, deviceID string) (bool, error) {
	now := s.nowFunc().UTC()
	input := &dyn.UpdateItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"device_id": &types.AttributeValueMemberS{Value: deviceID},
		},
		UpdateExpression: strPtr("SET is_online = :on, last_seen = :ls"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":on": &types.AttributeValueMemberBOOL{Value: true},
			":ls": aws.TimeAttr(now),
		},
		ConditionExpression: strPtr("attribute_exists(device_id)"),
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

func strPtr(s string) *string { return &s }
