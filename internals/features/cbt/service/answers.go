package service

import (
	"sync"
)

type AnswerStatus string

const (
	AnswerPending   AnswerStatus = "pending"
	AnswerConfirmed AnswerStatus = "confirmed"
	AnswerFailed    AnswerStatus = "failed"
)

type AnswerState struct {
	QuestionID int64        `json:"question_id"`
	ChoiceID   int64        `json:"choice_id"`
	Status     AnswerStatus `json:"status"`
	Error      string       `json:"error,omitempty"`
	Seq        uint64       `json:"seq"`
}

// AnswerBook is the local selection per question. A selection starts pending
// and only the save carrying the latest sequence number may settle it.
type AnswerBook struct {
	mu      sync.Mutex
	seq     uint64
	entries map[int64]AnswerState
}

func NewAnswerBook() *AnswerBook {
	return &AnswerBook{entries: map[int64]AnswerState{}}
}

func (b *AnswerBook) Select(questionID, choiceID int64) AnswerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.seq++
	st := AnswerState{QuestionID: questionID, ChoiceID: choiceID, Status: AnswerPending, Seq: b.seq}
	b.entries[questionID] = st
	return st
}

// Resolve settles the save identified by seq. It reports false when a newer
// selection has superseded it.
func (b *AnswerBook) Resolve(questionID int64, seq uint64, err error) (AnswerState, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	st, ok := b.entries[questionID]
	if !ok || st.Seq != seq {
		return st, false
	}
	if err != nil {
		st.Status = AnswerFailed
		st.Error = err.Error()
	} else {
		st.Status = AnswerConfirmed
		st.Error = ""
	}
	b.entries[questionID] = st
	return st, true
}

// Seed records an answer the server already holds, unless one is known locally.
func (b *AnswerBook) Seed(questionID, choiceID int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.entries[questionID]; ok {
		return
	}
	b.entries[questionID] = AnswerState{QuestionID: questionID, ChoiceID: choiceID, Status: AnswerConfirmed}
}

func (b *AnswerBook) Get(questionID int64) (AnswerState, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	st, ok := b.entries[questionID]
	return st, ok
}

func (b *AnswerBook) Snapshot() map[int64]AnswerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[int64]AnswerState, len(b.entries))
	for k, v := range b.entries {
		out[k] = v
	}
	return out
}

func (b *AnswerBook) Counts() (pending, confirmed, failed int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, st := range b.entries {
		switch st.Status {
		case AnswerPending:
			pending++
		case AnswerConfirmed:
			confirmed++
		case AnswerFailed:
			failed++
		}
	}
	return
}
