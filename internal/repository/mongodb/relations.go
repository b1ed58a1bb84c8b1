package mongodb

import (
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/sakif/vind/internal/model"
)

// relationField is the stored form of followers/following. Documents written
// before the array schema hold a number there instead.
type relationField struct {
	ids    []string
	legacy bool
}

// UnmarshalBSONValue accepts an array of string or ObjectID members, a bare
// number (legacy) and null or undefined (empty).
func (r *relationField) UnmarshalBSONValue(t bsontype.Type, data []byte) error {
	switch t {
	case bsontype.Array:
		var raw []any
		if err := (bson.RawValue{Type: t, Value: data}).Unmarshal(&raw); err != nil {
			return fmt.Errorf("decoding relation array: %w", err)
		}
		ids := make([]string, 0, len(raw))
		for _, el := range raw {
			switch v := el.(type) {
			case string:
				ids = append(ids, v)
			case primitive.ObjectID:
				ids = append(ids, v.Hex())
			default:
				return fmt.Errorf("unexpected relation member of type %T", el)
			}
		}
		*r = relationField{ids: ids}
	case bsontype.Int32, bsontype.Int64, bsontype.Double, bsontype.Decimal128:
		*r = relationField{legacy: true}
	case bsontype.Null, bsontype.Undefined:
		*r = relationField{ids: []string{}}
	default:
		return fmt.Errorf("unexpected relation field type %s", t)
	}
	return nil
}

// MarshalBSONValue always writes the array form.
func (r relationField) MarshalBSONValue() (bsontype.Type, []byte, error) {
	ids := r.ids
	if ids == nil {
		ids = []string{}
	}
	return bson.MarshalValue(ids)
}

func (r relationField) toModel() model.RelationSet {
	if r.legacy {
		return model.LegacyRelationSet()
	}
	return model.NewRelationSet(r.ids...)
}

func relationFromModel(s model.RelationSet) relationField {
	n := s.Normalized()
	return relationField{ids: n.IDs}
}
