package domain

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "kyb/pkg/domain-errors"
)

// TestParseWorkItemID_Invariants covers the parsing invariant:
// identifiers must be valid, non-empty, non-nil UUIDs.
func TestParseWorkItemID_Invariants(t *testing.T) {
	t.Run("rejects empty string", func(t *testing.T) {
		_, err := ParseWorkItemID("")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})

	t.Run("rejects invalid format", func(t *testing.T) {
		_, err := ParseWorkItemID("not-a-uuid")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})

	t.Run("rejects nil UUID", func(t *testing.T) {
		_, err := ParseWorkItemID(uuid.Nil.String())
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})

	t.Run("accepts valid UUID", func(t *testing.T) {
		valid := uuid.New()
		id, err := ParseWorkItemID(valid.String())
		require.NoError(t, err)
		assert.Equal(t, WorkItemID(valid), id)
		assert.Equal(t, valid.String(), id.String())
	})
}

func TestParseID_HostileInput(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"SQL injection attempt", "'; DROP TABLE work_items;--", true},
		{"Null byte injection", "550e8400\x00-e29b-41d4-a716-446655440000", true},
		{"Oversized input", strings.Repeat("a", 1000), true},
		{"Whitespace only", "   ", true},
		{"Uppercase valid UUID", "550E8400-E29B-41D4-A716-446655440000", false},
		{"Valid UUID lowercase", "550e8400-e29b-41d4-a716-446655440000", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseApplicationID(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestAllIDTypes_ConsistentBehavior(t *testing.T) {
	valid := uuid.New().String()
	for _, input := range []string{"", "invalid", uuid.Nil.String()} {
		t.Run("all reject: "+input, func(t *testing.T) {
			_, errWorkItem := ParseWorkItemID(input)
			_, errApplication := ParseApplicationID(input)
			_, errEvent := ParseEventID(input)
			require.Error(t, errWorkItem)
			require.Error(t, errApplication)
			require.Error(t, errEvent)
		})
	}

	_, errWorkItem := ParseWorkItemID(valid)
	_, errApplication := ParseApplicationID(valid)
	_, errEvent := ParseEventID(valid)
	require.NoError(t, errWorkItem)
	require.NoError(t, errApplication)
	require.NoError(t, errEvent)
}

func TestIsNil(t *testing.T) {
	assert.True(t, WorkItemID{}.IsNil())
	assert.False(t, NewWorkItemID().IsNil())
	assert.True(t, ApplicationID(uuid.Nil).IsNil())
}

func TestIDsEncodeAsUUIDStrings(t *testing.T) {
	in := struct {
		ID WorkItemID `json:"id"`
	}{ID: NewWorkItemID()}

	raw, err := json.Marshal(in)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"`+in.ID.String()+`"}`, string(raw))

	var out struct {
		ID WorkItemID `json:"id"`
	}
	require.NoError(t, json.Unmarshal(raw, &out))
	assert.Equal(t, in.ID, out.ID)
}
