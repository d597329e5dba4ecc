package models

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Decision kinds. Exactly one per classified ticket.
const (
	DecisionMatchExisting = "match_existing"
	DecisionCreateNew     = "create_new"
)

// Decision is one classifier verdict for a single ticket: either reuse an
// existing intent or create a new one under a named category path. The kind
// determines which field set is populated; invalid combinations are rejected
// at decode time, so downstream code never checks for them.
type Decision struct {
	Kind       string
	Confidence float64
	Reasoning  string

	// match_existing
	IntentID uuid.UUID

	// create_new
	CategoryL1Name string
	CategoryL2Name string
	CategoryL3Name string
	IntentName     string
}

type decisionWire struct {
	Decision       string     `json:"decision"`
	Confidence     float64    `json:"confidence"`
	Reasoning      string     `json:"reasoning,omitempty"`
	IntentID       *uuid.UUID `json:"intent_id,omitempty"`
	CategoryL1Name string     `json:"category_level_1_name,omitempty"`
	CategoryL2Name string     `json:"category_level_2_name,omitempty"`
	CategoryL3Name string     `json:"category_level_3_name,omitempty"`
	IntentName     string     `json:"intent_name,omitempty"`
}

// UnmarshalJSON decodes and validates a decision. A match_existing decision
// must carry an intent id and nothing else; a create_new decision must carry
// all three category names and an intent name.
func (d *Decision) UnmarshalJSON(data []byte) error {
	var w decisionWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	switch w.Decision {
	case DecisionMatchExisting:
		if w.IntentID == nil || *w.IntentID == uuid.Nil {
			return fmt.Errorf("match_existing decision requires intent_id")
		}
		if w.IntentName != "" || w.CategoryL1Name != "" || w.CategoryL2Name != "" || w.CategoryL3Name != "" {
			return fmt.Errorf("match_existing decision must not carry create_new fields")
		}
		*d = Decision{
			Kind:       DecisionMatchExisting,
			Confidence: w.Confidence,
			Reasoning:  w.Reasoning,
			IntentID:   *w.IntentID,
		}
	case DecisionCreateNew:
		if w.IntentID != nil {
			return fmt.Errorf("create_new decision must not carry intent_id")
		}
		if w.CategoryL1Name == "" || w.CategoryL2Name == "" || w.CategoryL3Name == "" {
			return fmt.Errorf("create_new decision requires all three category names")
		}
		if w.IntentName == "" {
			return fmt.Errorf("create_new decision requires intent_name")
		}
		*d = Decision{
			Kind:           DecisionCreateNew,
			Confidence:     w.Confidence,
			Reasoning:      w.Reasoning,
			CategoryL1Name: w.CategoryL1Name,
			CategoryL2Name: w.CategoryL2Name,
			CategoryL3Name: w.CategoryL3Name,
			IntentName:     w.IntentName,
		}
	case "":
		return fmt.Errorf("decision kind is required")
	default:
		return fmt.Errorf("unknown decision kind %q", w.Decision)
	}
	return nil
}

func (d Decision) wire() (decisionWire, error) {
	w := decisionWire{
		Decision:   d.Kind,
		Confidence: d.Confidence,
		Reasoning:  d.Reasoning,
	}
	switch d.Kind {
	case DecisionMatchExisting:
		id := d.IntentID
		w.IntentID = &id
	case DecisionCreateNew:
		w.CategoryL1Name = d.CategoryL1Name
		w.CategoryL2Name = d.CategoryL2Name
		w.CategoryL3Name = d.CategoryL3Name
		w.IntentName = d.IntentName
	default:
		return decisionWire{}, fmt.Errorf("unknown decision kind %q", d.Kind)
	}
	return w, nil
}

// MarshalJSON emits only the fields relevant to the decision kind, so a
// cached decision decodes through the same validation it was produced under.
func (d Decision) MarshalJSON() ([]byte, error) {
	w, err := d.wire()
	if err != nil {
		return nil, err
	}
	return json.Marshal(w)
}

// TicketDecision binds a decision to the zero-based index of the ticket it
// applies to within the classified batch. On the wire it is one flat object:
// the ticket index alongside the decision fields.
type TicketDecision struct {
	Index    int
	Decision Decision
}

func (td *TicketDecision) UnmarshalJSON(data []byte) error {
	var head struct {
		Index *int `json:"ticket_index"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return err
	}
	if head.Index == nil {
		return fmt.Errorf("ticket_index is required")
	}
	var d Decision
	if err := json.Unmarshal(data, &d); err != nil {
		return err
	}
	td.Index = *head.Index
	td.Decision = d
	return nil
}

func (td TicketDecision) MarshalJSON() ([]byte, error) {
	w, err := td.Decision.wire()
	if err != nil {
		return nil, err
	}
	return json.Marshal(struct {
		Index int `json:"ticket_index"`
		decisionWire
	}{Index: td.Index, decisionWire: w})
}

// BatchClassification is the validated output of one classifier call: exactly
// one decision per input ticket, indices forming a permutation of the input.
type BatchClassification struct {
	Provider    string           `json:"provider"`
	Assignments []TicketDecision `json:"assignments"`
}
