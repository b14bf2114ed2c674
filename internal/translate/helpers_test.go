package translate

import (
	"encoding/json"
	"sync"
)

// mustJSON builds json.RawMessage from any value.
func mustJSON(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}

func ptr[T any](v T) *T { return &v }

// recordingDiag captures every reported condition for assertions.
type recordingDiag struct {
	mu      sync.Mutex
	reports []diagReport
}

type diagReport struct {
	kind   Kind
	detail string
}

func (d *recordingDiag) Report(kind Kind, detail string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.reports = append(d.reports, diagReport{kind, detail})
}

func (d *recordingDiag) kinds() []Kind {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Kind, len(d.reports))
	for i, r := range d.reports {
		out[i] = r.kind
	}
	return out
}
