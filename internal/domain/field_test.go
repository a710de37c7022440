package domain

import (
	"database/sql"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToInt64(t *testing.T) {
	testCases := []struct {
		name    string
		input   any
		want    int64
		wantErr bool
	}{
		{name: "int", input: 10, want: 10},
		{name: "negative int64", input: int64(-3), want: -3},
		{name: "uint8", input: uint8(7), want: 7},
		{name: "integer string", input: "10", want: 10},
		{name: "padded signed string", input: " +42 ", want: 42},
		{name: "integral float", input: 5.0, want: 5},
		{name: "fractional float", input: 5.5, wantErr: true},
		{name: "NaN", input: math.NaN(), wantErr: true},
		{name: "word", input: "ten", wantErr: true},
		{name: "decimal string", input: "10.5", wantErr: true},
		{name: "empty string", input: "", wantErr: true},
		{name: "nil", input: nil, wantErr: true},
		{name: "bool", input: true, wantErr: true},
		{name: "uint64 overflow", input: uint64(math.MaxUint64), wantErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ToInt64(tc.input)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestField_Normalize(t *testing.T) {
	v, err := FieldPoints.Normalize("12")
	require.NoError(t, err)
	assert.Equal(t, int64(12), v)

	v, err = FieldReferral.Normalize("friend-code")
	require.NoError(t, err)
	assert.Equal(t, "friend-code", v)

	_, err = FieldReferral.Normalize(12)
	assert.Error(t, err)
}

func TestFields_CoverEveryColumnOnce(t *testing.T) {
	seen := make(map[string]bool, len(Fields))
	for _, f := range Fields {
		assert.False(t, seen[f.Column], "duplicate column %s", f.Column)
		seen[f.Column] = true
	}

	assert.Len(t, seen, 6)
}

func TestUser_IsOpted(t *testing.T) {
	var nilUser *User
	assert.False(t, nilUser.IsOpted())
	assert.False(t, (&User{}).IsOpted())
	assert.False(t, (&User{Opted: sql.NullInt64{Int64: 2, Valid: true}}).IsOpted())
	assert.True(t, (&User{Opted: sql.NullInt64{Int64: 1, Valid: true}}).IsOpted())
}
