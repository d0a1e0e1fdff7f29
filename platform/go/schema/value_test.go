package schema

import (
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type label string

func TestNormalize(t *testing.T) {
	id := uuid.MustParse("6f1c5a0e-9d4b-4a8e-a3b2-1c2d3e4f5a6b")
	instant := time.Date(2024, 3, 1, 12, 30, 0, 123456789, time.FixedZone("CET", 3600))
	text := "hello"

	tests := []struct {
		name    string
		column  Column
		input   any
		want    any
		wantErr string
	}{
		{name: "nil", column: DeclareColumn("a", TypeString, ColumnOptions{}), input: nil, want: nil},
		{name: "nil pointer", column: DeclareColumn("a", TypeString, ColumnOptions{}), input: (*string)(nil), want: nil},
		{name: "string pointer", column: DeclareColumn("a", TypeString, ColumnOptions{}), input: &text, want: "hello"},
		{name: "named string", column: DeclareColumn("a", TypeText, ColumnOptions{}), input: label("x"), want: "x"},
		{name: "string too long", column: DeclareColumn("a", TypeString, ColumnOptions{Size: 3}), input: "abcd", wantErr: "longer than 3 characters"},
		{name: "multibyte within size", column: DeclareColumn("a", TypeString, ColumnOptions{Size: 3}), input: "äöü", want: "äöü"},
		{name: "invalid utf8", column: DeclareColumn("a", TypeText, ColumnOptions{}), input: string([]byte{0xff}), wantErr: "invalid utf-8"},
		{name: "uuid", column: DeclareColumn("a", TypeUUID, ColumnOptions{}), input: id, want: id},
		{name: "uuid string", column: DeclareColumn("a", TypeUUID, ColumnOptions{}), input: id.String(), want: id},
		{name: "uuid bytes", column: DeclareColumn("a", TypeUUID, ColumnOptions{}), input: id[:], want: id},
		{name: "pgx uuid", column: DeclareColumn("a", TypeUUID, ColumnOptions{}), input: [16]byte(id), want: id},
		{name: "nil uuid", column: DeclareColumn("a", TypeUUID, ColumnOptions{}), input: uuid.Nil, want: nil},
		{name: "bad uuid", column: DeclareColumn("a", TypeUUID, ColumnOptions{}), input: "nope", wantErr: `invalid uuid "nope"`},
		{name: "int from int32", column: DeclareColumn("a", TypeInt, ColumnOptions{}), input: int32(7), want: int64(7)},
		{name: "int from whole float", column: DeclareColumn("a", TypeInt, ColumnOptions{}), input: 7.0, want: int64(7)},
		{name: "int from fraction", column: DeclareColumn("a", TypeInt, ColumnOptions{}), input: 7.5, wantErr: "is not an integer"},
		{name: "int from json number", column: DeclareColumn("a", TypeInt, ColumnOptions{}), input: json.Number("42"), want: int64(42)},
		{name: "uint overflow", column: DeclareColumn("a", TypeInt, ColumnOptions{}), input: uint64(math.MaxUint64), wantErr: "overflows int64"},
		{name: "float at 2^63", column: DeclareColumn("a", TypeInt, ColumnOptions{}), input: float64(1 << 63), wantErr: "overflows int64"},
		{name: "float infinity", column: DeclareColumn("a", TypeInt, ColumnOptions{}), input: math.Inf(1), wantErr: "overflows int64"},
		{name: "float at min int64", column: DeclareColumn("a", TypeInt, ColumnOptions{}), input: float64(math.MinInt64), want: int64(math.MinInt64)},
		{name: "float from int", column: DeclareColumn("a", TypeFloat, ColumnOptions{}), input: 3, want: 3.0},
		{name: "float nan", column: DeclareColumn("a", TypeFloat, ColumnOptions{}), input: math.NaN(), wantErr: "non-finite number"},
		{name: "bool", column: DeclareColumn("a", TypeBool, ColumnOptions{}), input: true, want: true},
		{name: "bool from string", column: DeclareColumn("a", TypeBool, ColumnOptions{}), input: "true", wantErr: "cannot use string as bool"},
		{name: "time", column: DeclareColumn("a", TypeTime, ColumnOptions{}), input: instant, want: time.Date(2024, 3, 1, 11, 30, 0, 123456000, time.UTC)},
		{name: "time string", column: DeclareColumn("a", TypeTime, ColumnOptions{}), input: "2024-03-01T11:30:00Z", want: time.Date(2024, 3, 1, 11, 30, 0, 0, time.UTC)},
		{name: "zero time", column: DeclareColumn("a", TypeTime, ColumnOptions{}), input: time.Time{}, want: nil},
		{name: "json object", column: DeclareColumn("a", TypeJSON, ColumnOptions{}), input: json.RawMessage(`{"b": 1, "a": [true]}`), want: json.RawMessage(`{"a":[true],"b":1}`)},
		{name: "json from map", column: DeclareColumn("a", TypeJSON, ColumnOptions{}), input: map[string]any{"k": "v"}, want: json.RawMessage(`{"k":"v"}`)},
		{name: "json null", column: DeclareColumn("a", TypeJSON, ColumnOptions{}), input: json.RawMessage(`null`), want: nil},
		{name: "json empty", column: DeclareColumn("a", TypeJSON, ColumnOptions{}), input: json.RawMessage{}, want: nil},
		{name: "json invalid", column: DeclareColumn("a", TypeJSON, ColumnOptions{}), input: `{"a":`, wantErr: "decode json"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Normalize(tt.column, tt.input)
			if tt.wantErr != "" {
				require.ErrorContains(t, err, tt.wantErr)
				var ve *ValueError
				require.True(t, errors.As(err, &ve))
				require.Equal(t, tt.column.Name, ve.Column)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestNormalizeRecord(t *testing.T) {
	e := MustDeclareEntity("widget", EntityOptions{},
		DeclareColumn(PrimaryKey, TypeUUID, ColumnOptions{Primary: true}),
		DeclareColumn("count", TypeInt, ColumnOptions{}),
	)

	rec, err := e.NormalizeRecord(Record{"count": 3})
	require.NoError(t, err)
	require.Equal(t, Record{"count": int64(3)}, rec)

	_, err = e.NormalizeRecord(Record{"color": "red"})
	require.ErrorContains(t, err, "not a column of widget")
}

func TestRecordClone(t *testing.T) {
	original := Record{"a": 1}
	clone := original.Clone()
	clone["a"] = 2
	require.Equal(t, 1, original["a"])
}
