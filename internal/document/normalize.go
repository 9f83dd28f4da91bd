package document

import (
	"encoding/base64"
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/v2/bson"
)

// MaxDepth bounds the nesting Normalize and UnmarshalJSON will follow.
const MaxDepth = 64

// DateKey is the wrapper key used for store-native dates.
const DateKey = "$date"

// Normalize converts a decoded BSON tree into a Value. Object identifiers
// become their hex string and store-native dates become {"$date": RFC3339}
// so every node is plain data. The input is not modified.
func Normalize(v any) (Value, error) {
	return normalize(v, 0)
}

// Failure is a document NormalizeAll could not convert.
type Failure struct {
	Index int
	ID    string
	Err   error
}

func (f Failure) Error() string {
	return fmt.Sprintf("document %d (%s): %v", f.Index, f.ID, f.Err)
}

func (f Failure) Unwrap() error { return f.Err }

// NormalizeAll normalizes each document in docs. A document that fails is
// left out of the result and reported as a Failure; the rest are returned
// in input order.
func NormalizeAll(docs []bson.M) ([]Value, []Failure) {
	out := make([]Value, 0, len(docs))
	var failed []Failure
	for i, d := range docs {
		v, err := Normalize(d)
		if err != nil {
			failed = append(failed, Failure{Index: i, ID: rawID(d), Err: err})
			continue
		}
		out = append(out, v)
	}
	return out, failed
}

// rawID names a document that could not be normalized, for logging.
func rawID(d bson.M) string {
	if s, ok := d["objectId"].(string); ok && s != "" {
		return s
	}
	switch id := d["_id"].(type) {
	case nil:
		return "unknown"
	case bson.ObjectID:
		return id.Hex()
	default:
		return fmt.Sprint(id)
	}
}

// WrapDate returns the {"$date": ...} form of t.
func WrapDate(t time.Time) Value {
	return Object(Field{Key: DateKey, Value: String(t.UTC().Format(time.RFC3339Nano))})
}

func normalize(v any, depth int) (Value, error) {
	if depth > MaxDepth {
		return Value{}, ErrTooDeep
	}

	switch t := v.(type) {
	case nil:
		return Null(), nil
	case Value:
		return t, nil
	case bool:
		return Bool(t), nil
	case string:
		return String(t), nil
	case int:
		return Int(int64(t)), nil
	case int8:
		return Int(int64(t)), nil
	case int16:
		return Int(int64(t)), nil
	case int32:
		return Int(int64(t)), nil
	case int64:
		return Int(t), nil
	case uint:
		return Number(decimal.NewFromUint64(uint64(t))), nil
	case uint8:
		return Int(int64(t)), nil
	case uint16:
		return Int(int64(t)), nil
	case uint32:
		return Int(int64(t)), nil
	case uint64:
		return Number(decimal.NewFromUint64(t)), nil
	case float32:
		return float(float64(t)), nil
	case float64:
		return float(t), nil
	case decimal.Decimal:
		return Number(t), nil
	case bson.Decimal128:
		d, err := decimal.NewFromString(t.String())
		if err != nil {
			// NaN and infinities have no decimal form.
			return Null(), nil
		}
		return Number(d), nil
	case bson.ObjectID:
		return String(t.Hex()), nil
	case bson.DateTime:
		return WrapDate(t.Time()), nil
	case time.Time:
		return WrapDate(t), nil
	case bson.Timestamp:
		return Int(int64(t.T)), nil
	case bson.Binary:
		return String(base64.StdEncoding.EncodeToString(t.Data)), nil
	case []byte:
		return String(base64.StdEncoding.EncodeToString(t)), nil
	case bson.Symbol:
		return String(string(t)), nil
	case bson.Regex:
		return String(t.Pattern), nil
	case bson.Null, bson.Undefined:
		return Null(), nil
	case bson.M:
		return normalizeMap(t, depth)
	case map[string]any:
		return normalizeMap(t, depth)
	case bson.D:
		fields := make([]Field, 0, len(t))
		for _, e := range t {
			item, err := normalize(e.Value, depth+1)
			if err != nil {
				return Value{}, err
			}
			fields = append(fields, Field{Key: e.Key, Value: item})
		}
		return Object(fields...), nil
	case bson.A:
		return normalizeSeq(t, depth)
	case []any:
		return normalizeSeq(t, depth)
	case []bson.M:
		items := make([]any, len(t))
		for i := range t {
			items[i] = t[i]
		}
		return normalizeSeq(items, depth)
	default:
		return Value{}, fmt.Errorf("%w: %T", ErrUnsupported, v)
	}
}

func float(f float64) Value {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return Null()
	}
	return Number(decimal.NewFromFloat(f))
}

func normalizeMap(m map[string]any, depth int) (Value, error) {
	out := make(map[string]Value, len(m))
	for k, item := range m {
		nv, err := normalize(item, depth+1)
		if err != nil {
			return Value{}, err
		}
		out[k] = nv
	}
	return FromMap(out), nil
}

func normalizeSeq(items []any, depth int) (Value, error) {
	out := make([]Value, 0, len(items))
	for _, item := range items {
		nv, err := normalize(item, depth+1)
		if err != nil {
			return Value{}, err
		}
		out = append(out, nv)
	}
	return Value{kind: KindSeq, seq: out}, nil
}
