package classify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/intentflow/intentflow/pkg/models"
)

const systemPrompt = `You are a support ticket classifier. You assign each ticket to an intent in a three-level category taxonomy.

For every ticket you either reuse an existing intent or create a new one:
- If an existing intent covers the ticket, answer with decision "match_existing" and its intent_id.
- Otherwise answer with decision "create_new" and propose category_level_1_name, category_level_2_name, category_level_3_name and intent_name. Reuse existing category names at each level whenever they fit.

Respond with JSON only, no prose, matching exactly this schema:
{
  "assignments": [
    {
      "ticket_index": <int, zero-based index of the ticket>,
      "decision": "match_existing" | "create_new",
      "intent_id": "<uuid, match_existing only>",
      "category_level_1_name": "<string, create_new only>",
      "category_level_2_name": "<string, create_new only>",
      "category_level_3_name": "<string, create_new only>",
      "intent_name": "<string, create_new only>",
      "confidence": <float 0..1>,
      "reasoning": "<short justification>"
    }
  ]
}

Return exactly one assignment per ticket. Every ticket index must appear exactly once.`

// Classifier wraps the single structured LLM call that assigns a batch of
// tickets to intents. One call per batch; the response must satisfy the batch
// contract or the whole batch fails.
type Classifier struct {
	provider    models.LLMProvider
	maxRetries  int
	temperature float64
	maxTokens   int
}

// NewClassifier creates a Classifier. maxRetries bounds re-asks on malformed
// (non-JSON) model output; contract violations are never retried.
func NewClassifier(provider models.LLMProvider, maxRetries int, temperature float64, maxTokens int) *Classifier {
	if maxRetries < 1 {
		maxRetries = 1
	}
	return &Classifier{
		provider:    provider,
		maxRetries:  maxRetries,
		temperature: temperature,
		maxTokens:   maxTokens,
	}
}

type classifierResponse struct {
	Assignments []models.TicketDecision `json:"assignments"`
}

// Classify sends the ticket texts and the taxonomy snapshot to the model and
// returns one validated decision per ticket. The snapshot is the only set of
// intents the model may reference in match_existing decisions.
func (c *Classifier) Classify(ctx context.Context, texts []string, snapshot []models.IntentSnapshotRow) (*models.BatchClassification, error) {
	if len(texts) == 0 {
		return &models.BatchClassification{Provider: c.provider.Name()}, nil
	}

	prompt, err := buildPrompt(texts, snapshot)
	if err != nil {
		return nil, fmt.Errorf("building prompt: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= c.maxRetries; attempt++ {
		raw, err := c.provider.Complete(ctx, models.ChatRequest{
			System:      systemPrompt,
			Prompt:      prompt,
			Temperature: c.temperature,
			MaxTokens:   c.maxTokens,
		})
		if err != nil {
			return nil, err
		}

		var resp classifierResponse
		if err := json.Unmarshal([]byte(extractJSON(raw)), &resp); err != nil {
			lastErr = err
			slog.Warn("classifier returned malformed response",
				"provider", c.provider.Name(),
				"attempt", attempt,
				"error", err,
			)
			continue
		}

		if err := ValidateAssignments(len(texts), resp.Assignments); err != nil {
			return nil, err
		}

		return &models.BatchClassification{
			Provider:    c.provider.Name(),
			Assignments: resp.Assignments,
		}, nil
	}

	return nil, fmt.Errorf("%w: no parseable response after %d attempts: %v",
		ErrContractViolation, c.maxRetries, lastErr)
}

// ValidateAssignments enforces the batch contract: exactly one assignment per
// ticket, indices forming a permutation of [0, n).
func ValidateAssignments(n int, assignments []models.TicketDecision) error {
	if len(assignments) != n {
		return fmt.Errorf("%w: got %d assignments for %d tickets", ErrContractViolation, len(assignments), n)
	}
	seen := make([]bool, n)
	for _, a := range assignments {
		if a.Index < 0 || a.Index >= n {
			return fmt.Errorf("%w: ticket index %d out of range [0, %d)", ErrContractViolation, a.Index, n)
		}
		if seen[a.Index] {
			return fmt.Errorf("%w: duplicate assignment for ticket index %d", ErrContractViolation, a.Index)
		}
		seen[a.Index] = true
	}
	return nil
}

func buildPrompt(texts []string, snapshot []models.IntentSnapshotRow) (string, error) {
	taxonomy, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	sb.WriteString("Existing taxonomy (intents with their full category paths):\n")
	sb.Write(taxonomy)
	sb.WriteString("\n\nTickets to classify:\n")
	for i, text := range texts {
		fmt.Fprintf(&sb, "\n--- Ticket %d ---\n%s\n", i, text)
	}
	return sb.String(), nil
}

// extractJSON strips markdown code fences some models wrap around JSON output.
func extractJSON(raw string) string {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if idx := strings.LastIndex(s, "```"); idx >= 0 {
			s = s[:idx]
		}
		return strings.TrimSpace(s)
	}
	// Fall back to the outermost object if the model added prose around it.
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start >= 0 && end > start {
		return s[start : end+1]
	}
	return s
}
