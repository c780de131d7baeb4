package model

import "time"

// Candidate is one task's value for one output property.
type Candidate struct {
	Path        string
	Value       any
	TaskID      string
	Kind        CalcKind
	Quality     int
	Accuracy    int
	Energy      float64
	LastUpdated time.Time
	Valid       bool
	Aggregate   bool
	Track       bool
}

// Origin records which task supplied a winning property value.
type Origin struct {
	Name        string    `json:"name"`
	TaskID      string    `json:"task_id"`
	Kind        CalcKind  `json:"calc_type"`
	LastUpdated time.Time `json:"last_updated"`
}

// Doc renders the origin as a document fragment.
func (o Origin) Doc() map[string]any {
	return map[string]any{
		"name":         o.Name,
		"task_id":      o.TaskID,
		"calc_type":    string(o.Kind),
		"last_updated": o.LastUpdated,
	}
}

// Group is a set of tasks judged to describe the same entity, restricted to
// one sandbox partition.
type Group struct {
	Tasks     []Task
	Partition []string
}

// IDs returns the task ids of the group in order, without duplicates.
func (g Group) IDs() []string {
	seen := make(map[string]bool, len(g.Tasks))
	out := make([]string, 0, len(g.Tasks))
	for _, t := range g.Tasks {
		if !seen[t.ID] {
			seen[t.ID] = true
			out = append(out, t.ID)
		}
	}
	return out
}
