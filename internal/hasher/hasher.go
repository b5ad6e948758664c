// Package hasher produces the content fingerprint of a transaction record.
//
// The canonical form is a compact JSON object with lexicographically sorted
// keys and HTML characters left unescaped. Every payload field takes part,
// together with companyId and isFraudulent; dataHash never does. Numbers are
// normalized to their shortest decimal form so 100, 100.0 and 1e2 agree.
package hasher

import (
	"bytes"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dvloznov/fraud-ledger/internal/domain"
)

// Hash returns the SHA-256 fingerprint of the record's canonical form.
func Hash(record *domain.TransactionRecord) (domain.Fingerprint, error) {
	canonical, err := CanonicalBytes(record)
	if err != nil {
		return domain.Fingerprint{}, err
	}
	return sha256.Sum256(canonical), nil
}

// Verify reports whether record still hashes to its stored DataHash.
func Verify(record *domain.TransactionRecord) (bool, error) {
	h, err := Hash(record)
	if err != nil {
		return false, err
	}
	return h == record.DataHash, nil
}

// CanonicalBytes returns the exact bytes that Hash digests.
func CanonicalBytes(record *domain.TransactionRecord) ([]byte, error) {
	if record == nil {
		return nil, fmt.Errorf("%w: nil record", domain.ErrSerialization)
	}

	values := make(map[string]any, record.Fields.Len()+2)
	for _, k := range record.Fields.Keys() {
		v, _ := record.Fields.Get(k)
		switch k {
		case domain.FieldDataHash:
			continue
		case domain.FieldIsFraudulent:
			if _, ok := v.(bool); !ok {
				return nil, fmt.Errorf("%w: field %q must be a boolean, got %T", domain.ErrSerialization, k, v)
			}
		case domain.FieldCompanyID:
			if _, ok := v.(string); !ok {
				return nil, fmt.Errorf("%w: field %q must be a string, got %T", domain.ErrSerialization, k, v)
			}
		}
		values[k] = v
	}
	values[domain.FieldCompanyID] = record.CompanyID
	values[domain.FieldIsFraudulent] = record.IsFraudulent

	return encodeObject(values)
}

func encodeObject(values map[string]any) ([]byte, error) {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := writeString(&buf, k); err != nil {
			return nil, err
		}
		buf.WriteByte(':')
		if err := writeScalar(&buf, values[k]); err != nil {
			return nil, fmt.Errorf("%w: field %q: %v", domain.ErrSerialization, k, err)
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func writeScalar(buf *bytes.Buffer, v any) error {
	switch x := v.(type) {
	case nil:
		buf.WriteString("null")
	case bool:
		buf.WriteString(strconv.FormatBool(x))
	case string:
		return writeString(buf, x)
	case json.Number:
		d, err := decimal.NewFromString(x.String())
		if err != nil {
			return fmt.Errorf("invalid number %q", x.String())
		}
		return writeDecimal(buf, d)
	case decimal.Decimal:
		return writeDecimal(buf, x)
	case float64:
		return writeFloat(buf, x)
	case float32:
		return writeFloat(buf, float64(x))
	case int:
		buf.WriteString(strconv.FormatInt(int64(x), 10))
	case int8:
		buf.WriteString(strconv.FormatInt(int64(x), 10))
	case int16:
		buf.WriteString(strconv.FormatInt(int64(x), 10))
	case int32:
		buf.WriteString(strconv.FormatInt(int64(x), 10))
	case int64:
		buf.WriteString(strconv.FormatInt(x, 10))
	case uint:
		buf.WriteString(strconv.FormatUint(uint64(x), 10))
	case uint8:
		buf.WriteString(strconv.FormatUint(uint64(x), 10))
	case uint16:
		buf.WriteString(strconv.FormatUint(uint64(x), 10))
	case uint32:
		buf.WriteString(strconv.FormatUint(uint64(x), 10))
	case uint64:
		buf.WriteString(strconv.FormatUint(x, 10))
	case time.Time:
		return writeString(buf, x.UTC().Format(time.RFC3339Nano))
	default:
		return fmt.Errorf("unsupported type %T", v)
	}
	return nil
}

// Decimal magnitudes are held to the float64 range. String() expands the
// exponent in full, so 1e99999999 would otherwise render 100M digits.
const (
	maxMagnitude = 308
	minMagnitude = -324
)

func writeDecimal(buf *bytes.Buffer, d decimal.Decimal) error {
	if d.IsZero() {
		// 0e99999999 is still zero; skip the rescale String would do
		buf.WriteByte('0')
		return nil
	}
	magnitude := int64(d.Exponent()) + int64(d.NumDigits()) - 1
	if magnitude > maxMagnitude || magnitude < minMagnitude {
		return fmt.Errorf("number out of range: %d digits, exponent %d", d.NumDigits(), d.Exponent())
	}
	buf.WriteString(d.String())
	return nil
}

func writeFloat(buf *bytes.Buffer, f float64) error {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return fmt.Errorf("non-finite number %v", f)
	}
	buf.WriteString(decimal.NewFromFloat(f).String())
	return nil
}

// writeString emits s as a JSON string without HTML escaping.
func writeString(buf *bytes.Buffer, s string) error {
	var tmp bytes.Buffer
	enc := json.NewEncoder(&tmp)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return err
	}
	buf.Write(bytes.TrimSuffix(tmp.Bytes(), []byte("\n")))
	return nil
}
