// Package loop runs the generate-evaluate-revise state machine that iterates
// an article toward a joint quality-and-length target.
package loop

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/draftforge/draftforge/engine/judge"
)

// ArticleVersion is one generated candidate. Indices start at 1 and are
// strictly increasing; the history is append-only and every version carries
// the judgement produced before the next generation.
type ArticleVersion struct {
	Index         int              `json:"index"`
	Text          string           `json:"text"`
	WordCount     int              `json:"word_count"`
	Judgement     *judge.Judgement `json:"judgement"`
	Queries       []string         `json:"queries,omitempty"`
	PassageCount  int              `json:"passage_count"`
	ReusedContext bool             `json:"reused_context"`
	CreatedAt     time.Time        `json:"created_at"`
}

// Outcome classifies how a run ended.
type Outcome string

const (
	// OutcomeAccepted means a version met the joint quality and length
	// requirements.
	OutcomeAccepted Outcome = "accepted"
	// OutcomeExhausted means the iteration budget ran out; Best holds the
	// highest-scoring version produced.
	OutcomeExhausted Outcome = "exhausted"
	// OutcomeFailed means a generator or evaluator call failed fatally;
	// the partial history is retained.
	OutcomeFailed Outcome = "failed"
)

// Result is the full record of one run: the ordered version history, the
// best version, and how the run ended. RunID ties the exported record to
// log lines from the same run.
type Result struct {
	RunID           string           `json:"run_id"`
	Outcome         Outcome          `json:"outcome"`
	TargetAchieved  bool             `json:"target_achieved"`
	Best            *ArticleVersion  `json:"best"`
	Versions        []ArticleVersion `json:"versions"`
	Iterations      int              `json:"iterations"`
	FailedIteration int              `json:"failed_iteration,omitempty"`
	Summary         string           `json:"summary,omitempty"`
	// Log is the human-readable per-iteration trail, one line per event.
	Log []string `json:"log,omitempty"`
}

// ExportJSON renders the result as a machine-readable audit record.
func (r *Result) ExportJSON() ([]byte, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("loop: export result: %w", err)
	}
	return data, nil
}

// bestVersion returns the highest-percentage version, preferring earlier
// versions on ties. Nil when the history is empty.
func bestVersion(versions []ArticleVersion) *ArticleVersion {
	var best *ArticleVersion
	for i := range versions {
		v := &versions[i]
		if v.Judgement == nil {
			continue
		}
		if best == nil || v.Judgement.Percentage > best.Judgement.Percentage {
			best = v
		}
	}
	return best
}
