// Package dynamock is an in-memory stand-in for the DynamoDB client used in
// tests. It interprets only the expression subset the stores in this module
// emit: conditional puts, SET/ADD update expressions, simple comparison
// conditions, and scan filters that are conjunctions of comparisons.
package dynamock

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

type table struct {
	pk    string
	items map[string]map[string]types.AttributeValue
}

// DB is a thread-safe in-memory DynamoDB double. Register tables with
// CreateTable before use; operations against unknown tables fail, matching
// the real service.
type DB struct {
	mu     sync.Mutex
	tables map[string]*table

	// FailNext makes the next write operation return an error, for testing
	// store-unavailable paths. Cleared after one use.
	FailNext error
}

// NewDB returns an empty DB.
func NewDB() *DB {
	return &DB{tables: map[string]*table{}}
}

// CreateTable registers a table with its partition key attribute name.
func (d *DB) CreateTable(name, pk string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.tables[name] = &table{pk: pk, items: map[string]map[string]types.AttributeValue{}}
}

// Seed inserts an item directly, bypassing condition checks.
func (d *DB) Seed(tableName string, item map[string]types.AttributeValue) {
	d.mu.Lock()
	defer d.mu.Unlock()
	t := d.tables[tableName]
	t.items[stringAttr(item[t.pk])] = item
}

// Item returns the raw stored item for a key, or nil.
func (d *DB) Item(tableName, key string) map[string]types.AttributeValue {
	d.mu.Lock()
	defer d.mu.Unlock()
	t := d.tables[tableName]
	if t == nil {
		return nil
	}
	return t.items[key]
}

// Len reports how many items a table holds.
func (d *DB) Len(tableName string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	t := d.tables[tableName]
	if t == nil {
		return 0
	}
	return len(t.items)
}

func (d *DB) table(name *string) (*table, error) {
	if name == nil {
		return nil, errors.New("missing table name")
	}
	t, ok := d.tables[*name]
	if !ok {
		return nil, fmt.Errorf("table not found: %s", *name)
	}
	return t, nil
}

func (d *DB) consumeFailNext() error {
	if d.FailNext != nil {
		err := d.FailNext
		d.FailNext = nil
		return err
	}
	return nil
}

func (d *DB) PutItem(ctx context.Context, params *dyn.PutItemInput, optFns ...func(*dyn.Options)) (*dyn.PutItemOutput, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.consumeFailNext(); err != nil {
		return nil, err
	}
	t, err := d.table(params.TableName)
	if err != nil {
		return nil, err
	}
	if err := t.put(params.Item, params.ConditionExpression, params.ExpressionAttributeNames, params.ExpressionAttributeValues); err != nil {
		return nil, err
	}
	return &dyn.PutItemOutput{}, nil
}

func (d *DB) GetItem(ctx context.Context, params *dyn.GetItemInput, optFns ...func(*dyn.Options)) (*dyn.GetItemOutput, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	t, err := d.table(params.TableName)
	if err != nil {
		return nil, err
	}
	keyAttr, ok := params.Key[t.pk]
	if !ok {
		return nil, fmt.Errorf("missing key attribute %s", t.pk)
	}
	item, ok := t.items[stringAttr(keyAttr)]
	if !ok {
		return &dyn.GetItemOutput{}, nil
	}
	return &dyn.GetItemOutput{Item: item}, nil
}

func (d *DB) UpdateItem(ctx context.Context, params *dyn.UpdateItemInput, optFns ...func(*dyn.Options)) (*dyn.UpdateItemOutput, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.consumeFailNext(); err != nil {
		return nil, err
	}
	t, err := d.table(params.TableName)
	if err != nil {
		return nil, err
	}
	item, err := t.update(params.Key, params.UpdateExpression, params.ConditionExpression, params.ExpressionAttributeNames, params.ExpressionAttributeValues)
	if err != nil {
		return nil, err
	}
	return &dyn.UpdateItemOutput{Attributes: item}, nil
}

func (d *DB) DeleteItem(ctx context.Context, params *dyn.DeleteItemInput, optFns ...func(*dyn.Options)) (*dyn.DeleteItemOutput, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.consumeFailNext(); err != nil {
		return nil, err
	}
	t, err := d.table(params.TableName)
	if err != nil {
		return nil, err
	}
	delete(t.items, stringAttr(params.Key[t.pk]))
	return &dyn.DeleteItemOutput{}, nil
}

func (d *DB) Scan(ctx context.Context, params *dyn.ScanInput, optFns ...func(*dyn.Options)) (*dyn.ScanOutput, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	t, err := d.table(params.TableName)
	if err != nil {
		return nil, err
	}
	var out []map[string]types.AttributeValue
	for _, item := range t.items {
		match, err := evalFilter(item, params.FilterExpression, params.ExpressionAttributeNames, params.ExpressionAttributeValues)
		if err != nil {
			return nil, err
		}
		if match {
			out = append(out, item)
		}
	}
	return &dyn.ScanOutput{Items: out, Count: int32(len(out))}, nil
}

// TransactWriteItems verifies every condition before applying any write, which
// is enough atomicity for these tests.
func (d *DB) TransactWriteItems(ctx context.Context, params *dyn.TransactWriteItemsInput, optFns ...func(*dyn.Options)) (*dyn.TransactWriteItemsOutput, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.consumeFailNext(); err != nil {
		return nil, err
	}

	for _, tw := range params.TransactItems {
		if p := tw.Put; p != nil {
			t, err := d.table(p.TableName)
			if err != nil {
				return nil, err
			}
			existing := t.items[stringAttr(p.Item[t.pk])]
			ok, err := evalCondition(existing, p.ConditionExpression, p.ExpressionAttributeNames, p.ExpressionAttributeValues)
			if err != nil {
				return nil, err
			}
			if !ok {
				return nil, &types.TransactionCanceledException{}
			}
		}
		if u := tw.Update; u != nil {
			t, err := d.table(u.TableName)
			if err != nil {
				return nil, err
			}
			existing := t.items[stringAttr(u.Key[t.pk])]
			ok, err := evalCondition(existing, u.ConditionExpression, u.ExpressionAttributeNames, u.ExpressionAttributeValues)
			if err != nil {
				return nil, err
			}
			if !ok {
				return nil, &types.TransactionCanceledException{}
			}
		}
	}

	for _, tw := range params.TransactItems {
		if p := tw.Put; p != nil {
			t, _ := d.table(p.TableName)
			t.items[stringAttr(p.Item[t.pk])] = p.Item
		}
		if u := tw.Update; u != nil {
			t, _ := d.table(u.TableName)
			if _, err := t.update(u.Key, u.UpdateExpression, nil, u.ExpressionAttributeNames, u.ExpressionAttributeValues); err != nil {
				return nil, err
			}
		}
	}
	return &dyn.TransactWriteItemsOutput{}, nil
}

func (t *table) put(item map[string]types.AttributeValue, cond *string, names map[string]string, values map[string]types.AttributeValue) error {
	key := stringAttr(item[t.pk])
	if key == "" {
		return fmt.Errorf("put item missing partition key %s", t.pk)
	}
	existing := t.items[key]
	ok, err := evalCondition(existing, cond, names, values)
	if err != nil {
		return err
	}
	if !ok {
		return &types.ConditionalCheckFailedException{}
	}
	t.items[key] = item
	return nil
}

func (t *table) update(key map[string]types.AttributeValue, updateExpr, cond *string, names map[string]string, values map[string]types.AttributeValue) (map[string]types.AttributeValue, error) {
	k := stringAttr(key[t.pk])
	item, exists := t.items[k]
	ok, err := evalCondition(item, cond, names, values)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &types.ConditionalCheckFailedException{}
	}
	if !exists {
		// upsert semantics: start from the key
		item = map[string]types.AttributeValue{t.pk: key[t.pk]}
	}
	if err := applyUpdate(item, updateExpr, names, values); err != nil {
		return nil, err
	}
	t.items[k] = item
	return item, nil
}

// applyUpdate interprets "SET a = :v, b = :w ADD c :d" expressions.
func applyUpdate(item map[string]types.AttributeValue, expr *string, names map[string]string, values map[string]types.AttributeValue) error {
	if expr == nil {
		return nil
	}
	s := strings.TrimSpace(*expr)
	setPart, addPart := "", ""
	if idx := strings.Index(s, "ADD "); idx >= 0 {
		addPart = strings.TrimSpace(s[idx+4:])
		s = strings.TrimSpace(s[:idx])
	}
	if strings.HasPrefix(s, "SET ") {
		setPart = strings.TrimSpace(s[4:])
	} else if s != "" {
		return fmt.Errorf("unsupported update expression: %s", *expr)
	}

	for _, clause := range splitClauses(setPart) {
		parts := strings.SplitN(clause, "=", 2)
		if len(parts) != 2 {
			return fmt.Errorf("bad SET clause: %s", clause)
		}
		name := resolveName(strings.TrimSpace(parts[0]), names)
		val, ok := values[strings.TrimSpace(parts[1])]
		if !ok {
			return fmt.Errorf("missing value for clause: %s", clause)
		}
		item[name] = val
	}

	for _, clause := range splitClauses(addPart) {
		fields := strings.Fields(clause)
		if len(fields) != 2 {
			return fmt.Errorf("bad ADD clause: %s", clause)
		}
		name := resolveName(fields[0], names)
		delta, err := numberValue(values[fields[1]])
		if err != nil {
			return fmt.Errorf("ADD clause %s: %w", clause, err)
		}
		current := 0.0
		if cur, ok := item[name]; ok {
			current, err = numberValue(cur)
			if err != nil {
				return fmt.Errorf("ADD clause %s: %w", clause, err)
			}
		}
		item[name] = &types.AttributeValueMemberN{Value: strconv.FormatFloat(current+delta, 'f', -1, 64)}
	}
	return nil
}

// numberValue extracts the float behind an N attribute for ADD arithmetic.
func numberValue(av types.AttributeValue) (float64, error) {
	n, ok := av.(*types.AttributeValueMemberN)
	if !ok {
		return 0, fmt.Errorf("expected number attribute, got %T", av)
	}
	return strconv.ParseFloat(n.Value, 64)
}

func splitClauses(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// evalCondition handles attribute_exists, attribute_not_exists, and a single
// comparison. A nil item means the row does not exist.
func evalCondition(item map[string]types.AttributeValue, cond *string, names map[string]string, values map[string]types.AttributeValue) (bool, error) {
	if cond == nil {
		return true, nil
	}
	c := strings.TrimSpace(*cond)
	switch {
	case strings.HasPrefix(c, "attribute_not_exists("):
		return item == nil, nil
	case strings.HasPrefix(c, "attribute_exists("):
		return item != nil, nil
	default:
		if item == nil {
			return false, nil
		}
		return evalComparison(item, c, names, values)
	}
}

// evalFilter handles conjunctions of comparisons.
func evalFilter(item map[string]types.AttributeValue, filter *string, names map[string]string, values map[string]types.AttributeValue) (bool, error) {
	if filter == nil {
		return true, nil
	}
	for _, clause := range strings.Split(*filter, " AND ") {
		ok, err := evalComparison(item, strings.TrimSpace(clause), names, values)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

var comparators = []string{"<>", "<=", ">=", "=", "<", ">"}

func evalComparison(item map[string]types.AttributeValue, clause string, names map[string]string, values map[string]types.AttributeValue) (bool, error) {
	for _, op := range comparators {
		idx := strings.Index(clause, op)
		if idx < 0 {
			continue
		}
		name := resolveName(strings.TrimSpace(clause[:idx]), names)
		valRef := strings.TrimSpace(clause[idx+len(op):])
		want, ok := values[valRef]
		if !ok {
			return false, fmt.Errorf("missing expression value %s", valRef)
		}
		got, ok := item[name]
		if !ok {
			return false, nil
		}
		return compare(got, want, op)
	}
	return false, fmt.Errorf("unsupported filter clause: %s", clause)
}

func compare(got, want types.AttributeValue, op string) (bool, error) {
	switch g := got.(type) {
	case *types.AttributeValueMemberS:
		w, ok := want.(*types.AttributeValueMemberS)
		if !ok {
			return false, nil
		}
		return compareOrdered(strings.Compare(g.Value, w.Value), op), nil
	case *types.AttributeValueMemberN:
		gv, err := strconv.ParseFloat(g.Value, 64)
		if err != nil {
			return false, err
		}
		w, ok := want.(*types.AttributeValueMemberN)
		if !ok {
			return false, nil
		}
		wv, err := strconv.ParseFloat(w.Value, 64)
		if err != nil {
			return false, err
		}
		switch {
		case gv < wv:
			return compareOrdered(-1, op), nil
		case gv > wv:
			return compareOrdered(1, op), nil
		default:
			return compareOrdered(0, op), nil
		}
	case *types.AttributeValueMemberBOOL:
		w, ok := want.(*types.AttributeValueMemberBOOL)
		if !ok {
			return false, nil
		}
		switch op {
		case "=":
			return g.Value == w.Value, nil
		case "<>":
			return g.Value != w.Value, nil
		}
		return false, fmt.Errorf("bad bool comparator %s", op)
	}
	return false, fmt.Errorf("unsupported attribute type %T", got)
}

func compareOrdered(cmp int, op string) bool {
	switch op {
	case "=":
		return cmp == 0
	case "<>":
		return cmp != 0
	case "<":
		return cmp < 0
	case "<=":
		return cmp <= 0
	case ">":
		return cmp > 0
	case ">=":
		return cmp >= 0
	}
	return false
}

func resolveName(name string, names map[string]string) string {
	if strings.HasPrefix(name, "#") {
		if resolved, ok := names[name]; ok {
			return resolved
		}
	}
	return name
}

func stringAttr(av types.AttributeValue) string {
	if s, ok := av.(*types.AttributeValueMemberS); ok {
		return s.Value
	}
	return ""
}
