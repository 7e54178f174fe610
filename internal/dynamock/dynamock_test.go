package dynamock

import (
	"context"
	"errors"
	"testing"

	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

func strPtr(s string) *string { return &s }

func TestConditionalPut(t *testing.T) {
	db := NewDB()
	db.CreateTable("t", "id")
	ctx := context.Background()

	item := map[string]types.AttributeValue{
		"id": &types.AttributeValueMemberS{Value: "a"},
	}
	_, err := db.PutItem(ctx, &dyn.PutItemInput{
		TableName:           strPtr("t"),
		Item:                item,
		ConditionExpression: strPtr("attribute_not_exists(id)"),
	})
	if err != nil {
		t.Fatalf("first put: %v", err)
	}

	_, err = db.PutItem(ctx, &dyn.PutItemInput{
		TableName:           strPtr("t"),
		Item:                item,
		ConditionExpression: strPtr("attribute_not_exists(id)"),
	})
	var ccf *types.ConditionalCheckFailedException
	if !errors.As(err, &ccf) {
		t.Fatalf("expected conditional failure, got %v", err)
	}
}

func TestUpdateSetAndAdd(t *testing.T) {
	db := NewDB()
	db.CreateTable("t", "id")
	ctx := context.Background()

	db.Seed("t", map[string]types.AttributeValue{
		"id":     &types.AttributeValueMemberS{Value: "a"},
		"count":  &types.AttributeValueMemberN{Value: "10"},
		"status": &types.AttributeValueMemberS{Value: "pending"},
	})

	_, err := db.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName: strPtr("t"),
		Key: map[string]types.AttributeValue{
			"id": &types.AttributeValueMemberS{Value: "a"},
		},
		UpdateExpression:         strPtr("SET #s = :next ADD count :delta"),
		ExpressionAttributeNames: map[string]string{"#s": "status"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":next":  &types.AttributeValueMemberS{Value: "done"},
			":delta": &types.AttributeValueMemberN{Value: "-3"},
		},
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}

	got := db.Item("t", "a")
	if s := got["status"].(*types.AttributeValueMemberS); s.Value != "done" {
		t.Fatalf("SET not applied: %s", s.Value)
	}
	if n := got["count"].(*types.AttributeValueMemberN); n.Value != "7" {
		t.Fatalf("ADD not applied: %s", n.Value)
	}
}

func TestAddOnMissingAttributeStartsFromZero(t *testing.T) {
	db := NewDB()
	db.CreateTable("t", "id")
	ctx := context.Background()

	db.Seed("t", map[string]types.AttributeValue{
		"id": &types.AttributeValueMemberS{Value: "a"},
	})

	_, err := db.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName: strPtr("t"),
		Key: map[string]types.AttributeValue{
			"id": &types.AttributeValueMemberS{Value: "a"},
		},
		UpdateExpression: strPtr("ADD retries :one"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":one": &types.AttributeValueMemberN{Value: "1"},
		},
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if n := db.Item("t", "a")["retries"].(*types.AttributeValueMemberN); n.Value != "1" {
		t.Fatalf("expected retries=1, got %s", n.Value)
	}
}

func TestAddRejectsNonNumericAttribute(t *testing.T) {
	db := NewDB()
	db.CreateTable("t", "id")
	ctx := context.Background()

	db.Seed("t", map[string]types.AttributeValue{
		"id":   &types.AttributeValueMemberS{Value: "a"},
		"name": &types.AttributeValueMemberS{Value: "not a number"},
	})

	_, err := db.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName: strPtr("t"),
		Key: map[string]types.AttributeValue{
			"id": &types.AttributeValueMemberS{Value: "a"},
		},
		UpdateExpression: strPtr("ADD name :one"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":one": &types.AttributeValueMemberN{Value: "1"},
		},
	})
	if err == nil {
		t.Fatal("expected error adding to a string attribute")
	}
}

func TestScanFilterConjunction(t *testing.T) {
	db := NewDB()
	db.CreateTable("t", "id")
	ctx := context.Background()

	db.Seed("t", map[string]types.AttributeValue{
		"id":    &types.AttributeValueMemberS{Value: "a"},
		"state": &types.AttributeValueMemberS{Value: "open"},
		"tries": &types.AttributeValueMemberN{Value: "2"},
	})
	db.Seed("t", map[string]types.AttributeValue{
		"id":    &types.AttributeValueMemberS{Value: "b"},
		"state": &types.AttributeValueMemberS{Value: "open"},
		"tries": &types.AttributeValueMemberN{Value: "9"},
	})

	out, err := db.Scan(ctx, &dyn.ScanInput{
		TableName:        strPtr("t"),
		FilterExpression: strPtr("state = :s AND tries < :max"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":s":   &types.AttributeValueMemberS{Value: "open"},
			":max": &types.AttributeValueMemberN{Value: "5"},
		},
	})
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(out.Items) != 1 {
		t.Fatalf("expected 1 match, got %d", len(out.Items))
	}
	if id := out.Items[0]["id"].(*types.AttributeValueMemberS); id.Value != "a" {
		t.Fatalf("wrong item matched: %s", id.Value)
	}
}
