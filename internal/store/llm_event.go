package store

import (
	"context"
	"fmt"

	"github.com/abhisek/ascend/ent"
	"github.com/abhisek/ascend/ent/llmrequestevent"
)

// EventRepo returns the repository the LLM logging decorator writes to.
func (s *Store) EventRepo() EventRepo {
	return s
}

// AppendLLMRequest records one LLM call.
func (s *Store) AppendLLMRequest(ctx context.Context, data LLMRequestEventData) error {
	_, err := s.client.LLMRequestEvent.Create().
		SetTimestamp(s.stamp()).
		SetProvider(data.Provider).
		SetModel(data.Model).
		SetPurpose(data.Purpose).
		SetInputTokens(data.InputTokens).
		SetOutputTokens(data.OutputTokens).
		SetLatencyMs(data.LatencyMs).
		SetSuccess(data.Success).
		SetErrorMessage(data.ErrorMessage).
		Save(ctx)
	if err != nil {
		return mapErr("append llm request", fmt.Errorf("save LLM request event: %w", err))
	}
	return nil
}

// QueryLLMEvents returns stored LLM request events ordered by id.
func (s *Store) QueryLLMEvents(ctx context.Context, opts QueryOpts) ([]LLMRequestEvent, error) {
	q := s.client.LLMRequestEvent.Query().
		Where(llmrequestevent.IDGT(opts.After)).
		Order(ent.Asc(llmrequestevent.FieldID))
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	rows, err := q.All(ctx)
	if err != nil {
		return nil, mapErr("query llm events", err)
	}
	out := make([]LLMRequestEvent, 0, len(rows))
	for _, row := range rows {
		out = append(out, LLMRequestEvent{
			ID:        row.ID,
			Timestamp: row.Timestamp.UTC(),
			LLMRequestEventData: LLMRequestEventData{
				Provider:     row.Provider,
				Model:        row.Model,
				Purpose:      row.Purpose,
				InputTokens:  row.InputTokens,
				OutputTokens: row.OutputTokens,
				LatencyMs:    row.LatencyMs,
				Success:      row.Success,
				ErrorMessage: row.ErrorMessage,
			},
		})
	}
	return out, nil
}
