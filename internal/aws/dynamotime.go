package aws

import (
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// TimeFormat is the storage layout for timestamp attributes. The fractional
// second is fixed-width so that DynamoDB's lexicographic string comparison
// orders timestamps correctly. RFC3339Nano trims trailing zeros, which makes
// "12:00:00.5Z" sort before "12:00:00Z" and breaks range filters.
const TimeFormat = "2006-01-02T15:04:05.000000000Z"

// FormatTime renders a timestamp for storage or for a range-compared
// expression value.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeFormat)
}

// TimeAttr wraps FormatTime as a string attribute value.
func TimeAttr(t time.Time) types.AttributeValue {
	return &types.AttributeValueMemberS{Value: FormatTime(t)}
}

// MarshalItem marshals a record with its time.Time fields encoded via
// TimeFormat instead of attributevalue's variable-width default. Every store
// writes items through this helper so stored timestamps stay comparable with
// the expression values the stores emit. Reads stay on the default decoder,
// which accepts any RFC3339 fraction.
func MarshalItem(v interface{}) (map[string]types.AttributeValue, error) {
	return attributevalue.MarshalMapWithOptions(v, func(o *attributevalue.EncoderOptions) {
		o.EncodeTime = func(t time.Time) (types.AttributeValue, error) {
			return TimeAttr(t), nil
		}
	})
}
