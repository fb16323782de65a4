// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

package sql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	"github.com/pbinitiative/zentask/internal/log"
	"github.com/rqlite/rqlite/v8/command/proto"
)

// Rows is a fully materialized rqlite query result. rqlite leaves NULL columns as nil
// parameters.
type Rows struct {
	columns   []string
	values    []*proto.Values
	rowNumber int64 // -1 is the default, indicating Next() has not been called
	ctx       context.Context
}

type Row struct {
	columns []string
	values  *proto.Values
	err     error
	ctx     context.Context
}

func ConstructRows(ctx context.Context, columns []string, values []*proto.Values) *Rows {
	return &Rows{
		columns:   columns,
		values:    values,
		rowNumber: -1,
		ctx:       ctx,
	}
}

func ConstructRow(ctx context.Context, columns []string, values *proto.Values, err error) *Row {
	return &Row{
		columns: columns,
		values:  values,
		ctx:     ctx,
		err:     err,
	}
}

// Next positions the result pointer so that Scan() is ready.
//
//	rows, err := db.QueryContext(ctx, query)
//	for rows.Next() {
//	    // your Scan and processing here.
//	}
func (qr *Rows) Next() bool {
	if qr.rowNumber >= int64(len(qr.values)-1) {
		return false
	}
	qr.rowNumber += 1
	return true
}

func (qr *Rows) Close() error {
	return nil
}

// Err is always nil, the result is complete once QueryContext returned.
func (qr *Rows) Err() error {
	return nil
}

func (qr *Rows) Scan(dest ...any) error {
	if qr.rowNumber == -1 {
		return errors.New("Next() has to be called before Scan()")
	}
	if qr.rowNumber >= int64(len(qr.values)) {
		return errors.New("no more rows")
	}
	return Scan(qr.ctx, qr.columns, qr.values[qr.rowNumber], dest...)
}

// Scan returns sql.ErrNoRows when the query matched nothing.
func (r *Row) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	if r.values == nil {
		return sql.ErrNoRows
	}
	return Scan(r.ctx, r.columns, r.values, dest...)
}

func Scan(ctx context.Context, columns []string, values *proto.Values, dest ...any) error {
	if len(dest) != len(columns) {
		return fmt.Errorf("expected %d columns but got %d vars", len(columns), len(dest))
	}
	for n, d := range dest {
		src := values.Parameters[n]
		switch d := d.(type) {
		case *int64:
			switch x := src.GetValue().(type) {
			case *proto.Parameter_I:
				*d = x.I
			case *proto.Parameter_D:
				*d = int64(x.D)
			case *proto.Parameter_S:
				i, err := strconv.ParseInt(x.S, 10, 64)
				if err != nil {
					return err
				}
				*d = i
			case nil:
				log.Debugf(ctx, "skipping nil scan data for variable #%d (%s)", n, columns[n])
			default:
				return fmt.Errorf("invalid int64 col:%d type:%T val:%v", n, src, src)
			}
		case *float64:
			switch x := src.GetValue().(type) {
			case *proto.Parameter_D:
				*d = x.D
			case *proto.Parameter_I:
				*d = float64(x.I)
			case *proto.Parameter_S:
				f, err := strconv.ParseFloat(x.S, 64)
				if err != nil {
					return err
				}
				*d = f
			case nil:
				log.Debugf(ctx, "skipping nil scan data for variable #%d (%s)", n, columns[n])
			default:
				return fmt.Errorf("invalid float64 col:%d type:%T val:%v", n, src, src)
			}
		case *string:
			switch x := src.GetValue().(type) {
			case *proto.Parameter_S:
				*d = x.S
			case *proto.Parameter_Y:
				*d = string(x.Y)
			case nil:
				log.Debugf(ctx, "skipping nil scan data for variable #%d (%s)", n, columns[n])
			default:
				return fmt.Errorf("invalid string col:%d type:%T val:%v", n, src, src)
			}
		case *bool:
			// sqlite has no bool storage class, values come back as 0/1
			switch x := src.GetValue().(type) {
			case *proto.Parameter_B:
				*d = x.B
			case *proto.Parameter_I:
				b, err := strconv.ParseBool(strconv.FormatInt(x.I, 10))
				if err != nil {
					return err
				}
				*d = b
			case *proto.Parameter_S:
				b, err := strconv.ParseBool(x.S)
				if err != nil {
					return err
				}
				*d = b
			case nil:
				log.Debugf(ctx, "skipping nil scan data for variable #%d (%s)", n, columns[n])
			default:
				return fmt.Errorf("invalid bool col:%d type:%T val:%v", n, src, src)
			}
		case *[]byte:
			switch x := src.GetValue().(type) {
			case *proto.Parameter_Y:
				*d = x.Y
			case *proto.Parameter_S:
				*d = []byte(x.S)
			case nil:
				log.Debugf(ctx, "skipping nil scan data for variable #%d (%s)", n, columns[n])
			default:
				return fmt.Errorf("invalid []byte col:%d type:%T val:%v", n, src, src)
			}
		case *sql.NullInt64:
			switch x := src.GetValue().(type) {
			case *proto.Parameter_I:
				*d = sql.NullInt64{Valid: true, Int64: x.I}
			case *proto.Parameter_D:
				*d = sql.NullInt64{Valid: true, Int64: int64(x.D)}
			case *proto.Parameter_S:
				i, err := strconv.ParseInt(x.S, 10, 64)
				if err != nil {
					return err
				}
				*d = sql.NullInt64{Valid: true, Int64: i}
			case nil:
				*d = sql.NullInt64{Valid: false}
			default:
				return fmt.Errorf("invalid int64 col:%d type:%T val:%v", n, src, src)
			}
		case *sql.NullFloat64:
			switch x := src.GetValue().(type) {
			case *proto.Parameter_D:
				*d = sql.NullFloat64{Valid: true, Float64: x.D}
			case *proto.Parameter_I:
				*d = sql.NullFloat64{Valid: true, Float64: float64(x.I)}
			case nil:
				*d = sql.NullFloat64{Valid: false}
			default:
				return fmt.Errorf("invalid float64 col:%d type:%T val:%v", n, src, src)
			}
		case *sql.NullString:
			switch x := src.GetValue().(type) {
			case *proto.Parameter_S:
				*d = sql.NullString{Valid: true, String: x.S}
			case *proto.Parameter_Y:
				*d = sql.NullString{Valid: true, String: string(x.Y)}
			case nil:
				*d = sql.NullString{Valid: false}
			default:
				return fmt.Errorf("invalid string col:%d type:%T val:%v", n, src, src)
			}
		default:
			return fmt.Errorf("unknown destination type (%T) to scan into in variable #%d", d, n)
		}
	}
	return nil
}

// ConstructRowFromRows returns the current row of rows.
func ConstructRowFromRows(ctx context.Context, rows *Rows) *Row {
	return &Row{
		columns: rows.columns,
		values:  rows.values[rows.rowNumber],
		ctx:     ctx,
	}
}
