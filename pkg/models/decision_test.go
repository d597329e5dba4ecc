package models

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecisionUnmarshal_MatchExisting(t *testing.T) {
	intentID := uuid.New()
	raw := fmt.Sprintf(`{"decision": "match_existing", "intent_id": %q, "confidence": 0.92, "reasoning": "clear duplicate"}`, intentID)

	var d Decision
	require.NoError(t, json.Unmarshal([]byte(raw), &d))
	assert.Equal(t, DecisionMatchExisting, d.Kind)
	assert.Equal(t, intentID, d.IntentID)
	assert.Equal(t, 0.92, d.Confidence)
	assert.Equal(t, "clear duplicate", d.Reasoning)
	assert.Empty(t, d.IntentName)
}

func TestDecisionUnmarshal_CreateNew(t *testing.T) {
	raw := `{
		"decision": "create_new",
		"category_level_1_name": "Billing",
		"category_level_2_name": "Invoices",
		"category_level_3_name": "Corrections",
		"intent_name": "Fix invoice amount",
		"confidence": 0.8
	}`

	var d Decision
	require.NoError(t, json.Unmarshal([]byte(raw), &d))
	assert.Equal(t, DecisionCreateNew, d.Kind)
	assert.Equal(t, "Billing", d.CategoryL1Name)
	assert.Equal(t, "Invoices", d.CategoryL2Name)
	assert.Equal(t, "Corrections", d.CategoryL3Name)
	assert.Equal(t, "Fix invoice amount", d.IntentName)
	assert.Equal(t, uuid.Nil, d.IntentID)
}

func TestDecisionUnmarshal_Invalid(t *testing.T) {
	intentID := uuid.New()
	cases := []struct {
		name string
		raw  string
	}{
		{"missing kind", `{"confidence": 0.5}`},
		{"unknown kind", `{"decision": "escalate"}`},
		{"match without intent_id", `{"decision": "match_existing", "confidence": 0.5}`},
		{"match with nil intent_id", `{"decision": "match_existing", "intent_id": "00000000-0000-0000-0000-000000000000"}`},
		{
			"match carrying create fields",
			fmt.Sprintf(`{"decision": "match_existing", "intent_id": %q, "intent_name": "extra"}`, intentID),
		},
		{
			"create carrying intent_id",
			fmt.Sprintf(`{"decision": "create_new", "intent_id": %q, "category_level_1_name": "a", "category_level_2_name": "b", "category_level_3_name": "c", "intent_name": "d"}`, intentID),
		},
		{
			"create missing category level",
			`{"decision": "create_new", "category_level_1_name": "a", "category_level_3_name": "c", "intent_name": "d"}`,
		},
		{
			"create missing intent name",
			`{"decision": "create_new", "category_level_1_name": "a", "category_level_2_name": "b", "category_level_3_name": "c"}`,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var d Decision
			assert.Error(t, json.Unmarshal([]byte(tc.raw), &d))
		})
	}
}

func TestDecisionMarshal_RoundTrip(t *testing.T) {
	decisions := []Decision{
		{
			Kind:       DecisionMatchExisting,
			Confidence: 0.9,
			Reasoning:  "seen before",
			IntentID:   uuid.New(),
		},
		{
			Kind:           DecisionCreateNew,
			Confidence:     0.7,
			CategoryL1Name: "Account",
			CategoryL2Name: "Access",
			CategoryL3Name: "Credentials",
			IntentName:     "Reset password",
		},
	}

	for _, d := range decisions {
		data, err := json.Marshal(d)
		require.NoError(t, err)

		var back Decision
		require.NoError(t, json.Unmarshal(data, &back))
		assert.Equal(t, d, back)
	}
}

func TestDecisionMarshal_OmitsIrrelevantFields(t *testing.T) {
	d := Decision{
		Kind:       DecisionMatchExisting,
		Confidence: 0.9,
		IntentID:   uuid.New(),
		// Stale create fields must never leak onto the wire.
		IntentName: "leftover",
	}
	data, err := json.Marshal(d)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "intent_name")
}

func TestTicketDecision_FlatWireFormat(t *testing.T) {
	intentID := uuid.New()
	raw := fmt.Sprintf(`{"ticket_index": 3, "decision": "match_existing", "intent_id": %q, "confidence": 0.85}`, intentID)

	var td TicketDecision
	require.NoError(t, json.Unmarshal([]byte(raw), &td))
	assert.Equal(t, 3, td.Index)
	assert.Equal(t, intentID, td.Decision.IntentID)

	data, err := json.Marshal(td)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"ticket_index":3`)

	var back TicketDecision
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, td, back)
}

func TestTicketDecision_IndexRequired(t *testing.T) {
	raw := fmt.Sprintf(`{"decision": "match_existing", "intent_id": %q}`, uuid.New())

	var td TicketDecision
	assert.Error(t, json.Unmarshal([]byte(raw), &td))
}

func TestBatchClassification_RoundTrip(t *testing.T) {
	batch := BatchClassification{
		Provider: "anthropic",
		Assignments: []TicketDecision{
			{Index: 0, Decision: Decision{Kind: DecisionMatchExisting, IntentID: uuid.New(), Confidence: 0.9}},
			{Index: 1, Decision: Decision{
				Kind:           DecisionCreateNew,
				CategoryL1Name: "Billing",
				CategoryL2Name: "Invoices",
				CategoryL3Name: "Corrections",
				IntentName:     "Fix invoice amount",
				Confidence:     0.8,
			}},
		},
	}

	data, err := json.Marshal(batch)
	require.NoError(t, err)

	var back BatchClassification
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, batch, back)
}
