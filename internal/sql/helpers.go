package sql

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/pbinitiative/zentask/pkg/ptr"
	"github.com/rqlite/rqlite/v8/command/proto"
)

func ToNullString[S ~string](p *S) sql.NullString {
	if p == nil {
		return sql.NullString{
			Valid: false,
		}
	}
	return sql.NullString{
		String: string(ptr.Deref(p, "")),
		Valid:  true,
	}
}

func ToNullInt64(p *int64) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{Valid: false}
	}
	return sql.NullInt64{Int64: *p, Valid: true}
}

func ToNullFloat64(p *float64) sql.NullFloat64 {
	if p == nil {
		return sql.NullFloat64{Valid: false}
	}
	return sql.NullFloat64{Float64: *p, Valid: true}
}

func FromNullString(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	return ptr.To(v.String)
}

func FromNullInt64(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	return ptr.To(v.Int64)
}

func FromNullFloat64(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	return ptr.To(v.Float64)
}

// JsonList encodes values for the `IN (SELECT value FROM json_each(?))` idiom.
func JsonList[T any](values []T) string {
	if values == nil {
		values = []T{}
	}
	b, err := json.Marshal(values)
	if err != nil {
		panic(fmt.Sprintf("failed to encode list parameter: %s", err))
	}
	return string(b)
}

// ToParameters converts query arguments into rqlite statement parameters.
// A nil value or an invalid sql.NullXxx becomes an empty parameter which binds as NULL.
func ToParameters(parameters ...any) ([]*proto.Parameter, error) {
	resultParams := make([]*proto.Parameter, 0, len(parameters))
	for _, par := range parameters {
		switch par := par.(type) {
		case nil:
			resultParams = append(resultParams, &proto.Parameter{})
		case string:
			resultParams = append(resultParams, &proto.Parameter{Value: &proto.Parameter_S{S: par}})
		case int64:
			resultParams = append(resultParams, &proto.Parameter{Value: &proto.Parameter_I{I: par}})
		case int32:
			resultParams = append(resultParams, &proto.Parameter{Value: &proto.Parameter_I{I: int64(par)}})
		case int:
			resultParams = append(resultParams, &proto.Parameter{Value: &proto.Parameter_I{I: int64(par)}})
		case float64:
			resultParams = append(resultParams, &proto.Parameter{Value: &proto.Parameter_D{D: par}})
		case bool:
			resultParams = append(resultParams, &proto.Parameter{Value: &proto.Parameter_B{B: par}})
		case []byte:
			resultParams = append(resultParams, &proto.Parameter{Value: &proto.Parameter_Y{Y: par}})
		case sql.NullInt64:
			if par.Valid {
				resultParams = append(resultParams, &proto.Parameter{Value: &proto.Parameter_I{I: par.Int64}})
			} else {
				resultParams = append(resultParams, &proto.Parameter{})
			}
		case sql.NullString:
			if par.Valid {
				resultParams = append(resultParams, &proto.Parameter{Value: &proto.Parameter_S{S: par.String}})
			} else {
				resultParams = append(resultParams, &proto.Parameter{})
			}
		case sql.NullFloat64:
			if par.Valid {
				resultParams = append(resultParams, &proto.Parameter{Value: &proto.Parameter_D{D: par.Float64}})
			} else {
				resultParams = append(resultParams, &proto.Parameter{})
			}
		default:
			return nil, fmt.Errorf("unknown parameter type: %T", par)
		}
	}
	return resultParams, nil
}
