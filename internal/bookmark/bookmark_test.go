package bookmark

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dyluth/stash/pkg/query"
)

func TestSchemas(t *testing.T) {
	assert.NoError(t, V1.ID.Validate())
	assert.NoError(t, V2.ID.Validate())
	assert.NotEqual(t, V1.ID, V2.ID)
	assert.Equal(t, "bookmarks", V1.ID.Name())
	assert.Equal(t, "bookmarks", V2.ID.Name())

	_, ok := V1.Field(FieldTimestamp)
	assert.False(t, ok)
	spec, ok := V2.Field(FieldTimestamp)
	require.True(t, ok)
	require.NotNil(t, spec.Default)
	assert.Equal(t, int64(0), spec.Default.Int)
}

func TestForVersion(t *testing.T) {
	tests := []struct {
		version string
		want    string
		wantErr bool
	}{
		{version: VersionV1, want: string(V1.ID)},
		{version: VersionV2, want: string(V2.ID)},
		{version: "", want: string(V2.ID)},
		{version: "bookmarks/v3", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.version, func(t *testing.T) {
			desc, err := ForVersion(tt.version)
			if tt.wantErr {
				assert.ErrorContains(t, err, "unknown bookmark schema")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(desc.ID))
		})
	}
}

func TestOrderFor(t *testing.T) {
	assert.Equal(t, query.Order{Field: FieldTimestamp, Direction: query.Descending}, OrderFor(V2))
	assert.Equal(t, query.Order{}, OrderFor(V1))
}

func TestSearch(t *testing.T) {
	p := Search("Demo")
	assert.Equal(t, query.Contains{Field: FieldDescription, Text: "Demo"}, p)
	assert.NoError(t, query.Query{SchemaID: V1.ID, Filter: p}.Validate(V1))
	assert.NoError(t, query.Query{SchemaID: V2.ID, Filter: p}.Validate(V2))
}

func TestMessages(t *testing.T) {
	all := NewRequestAll(nil)
	add := NewRequestAdd("https://example.com", "demo")
	assert.NotEqual(t, uuid.Nil, all.ID)
	assert.NotEqual(t, all.ID, add.ID)

	requests := []Request{all, add}
	assert.Equal(t, KindRequestAll, requests[0].Kind())
	assert.Equal(t, KindRequestAdd, requests[1].Kind())
	assert.Equal(t, add.ID, requests[1].CorrelationID())

	responses := []Message{
		ResponseAll{RequestID: all.ID},
		ResponseAdd{RequestID: add.ID},
		RequestFailed{RequestID: add.ID, Request: KindRequestAdd},
	}
	assert.Equal(t, all.ID, responses[0].CorrelationID())
	assert.Equal(t, KindResponseAdd, responses[1].Kind())
	assert.Equal(t, KindRequestFailed, responses[2].Kind())
	assert.Equal(t, "", responses[2].(RequestFailed).Reason())
	assert.Equal(t, "node unreachable", RequestFailed{Err: errors.New("node unreachable")}.Reason())
}
