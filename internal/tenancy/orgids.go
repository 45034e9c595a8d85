package tenancy

import (
	"encoding/json"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// OrgIDs is the normalized organization membership list of an account.
//
// The stored field has historically been a bare string, a list of strings, or
// absent. Decoding (BSON and JSON) accepts all three and always produces a list;
// encoding always writes a list. Nothing past this type should ever see the
// legacy shapes.
type OrgIDs []string

// NormalizeOrgIDs converts a raw stored membership value into a list.
// Empty strings are dropped and duplicates removed, keeping first-seen order.
// The result is never nil.
func NormalizeOrgIDs(raw any) OrgIDs {
	out := OrgIDs{}
	switch v := raw.(type) {
	case nil:
	case string:
		out = out.appendUnique(v)
	case primitive.ObjectID:
		out = out.appendUnique(v.Hex())
	case OrgIDs:
		for _, s := range v {
			out = out.appendUnique(s)
		}
	case []string:
		for _, s := range v {
			out = out.appendUnique(s)
		}
	case primitive.A:
		for _, item := range v {
			out = append(out, NormalizeOrgIDs(item)...)
		}
		out = NormalizeOrgIDs([]string(out))
	case []any:
		for _, item := range v {
			out = append(out, NormalizeOrgIDs(item)...)
		}
		out = NormalizeOrgIDs([]string(out))
	}
	return out
}

func (ids OrgIDs) appendUnique(id string) OrgIDs {
	id = strings.TrimSpace(id)
	if id == "" || ids.Contains(id) {
		return ids
	}
	return append(ids, id)
}

// Contains reports whether orgID is one of the memberships.
func (ids OrgIDs) Contains(orgID string) bool {
	for _, id := range ids {
		if id == orgID {
			return true
		}
	}
	return false
}

// First returns the implicit active tenant, or "" when there are no memberships.
func (ids OrgIDs) First() string {
	if len(ids) == 0 {
		return ""
	}
	return ids[0]
}

// MarshalBSONValue always stores the membership as an array.
func (ids OrgIDs) MarshalBSONValue() (bsontype.Type, []byte, error) {
	return bson.MarshalValue([]string(NormalizeOrgIDs(ids)))
}

// UnmarshalBSONValue accepts string, array, null, or a missing value.
func (ids *OrgIDs) UnmarshalBSONValue(t bsontype.Type, data []byte) error {
	raw := bson.RawValue{Type: t, Value: data}
	switch t {
	case bsontype.Null, bsontype.Undefined:
		*ids = OrgIDs{}
		return nil
	case bsontype.String:
		*ids = NormalizeOrgIDs(raw.StringValue())
		return nil
	case bsontype.ObjectID:
		*ids = NormalizeOrgIDs(raw.ObjectID())
		return nil
	case bsontype.Array:
		values, err := raw.Array().Values()
		if err != nil {
			return fmt.Errorf("tenancy: decode orgId array: %w", err)
		}
		items := make([]any, 0, len(values))
		for _, v := range values {
			switch v.Type {
			case bsontype.String:
				items = append(items, v.StringValue())
			case bsontype.ObjectID:
				items = append(items, v.ObjectID())
			}
		}
		*ids = NormalizeOrgIDs(items)
		return nil
	default:
		return fmt.Errorf("tenancy: unsupported orgId type %s", t)
	}
}

// MarshalJSON always writes a list, never null.
func (ids OrgIDs) MarshalJSON() ([]byte, error) {
	return json.Marshal([]string(NormalizeOrgIDs(ids)))
}

// UnmarshalJSON accepts "id", ["id", ...] and null.
func (ids *OrgIDs) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch raw.(type) {
	case nil, string, []any:
		*ids = NormalizeOrgIDs(raw)
		return nil
	default:
		return fmt.Errorf("tenancy: unsupported orgId json %s", string(data))
	}
}
