package orchestrator

// ItemOutcome records whether one candidate or requirement made it through a stage.
type ItemOutcome struct {
	Key string
	Err error
}

// BatchOutcome collects per-item outcomes for one stage.
type BatchOutcome struct {
	Items []ItemOutcome
}

func (b *BatchOutcome) Add(key string, err error) {
	b.Items = append(b.Items, ItemOutcome{Key: key, Err: err})
}

func (b BatchOutcome) Succeeded() int {
	n := 0
	for _, item := range b.Items {
		if item.Err == nil {
			n++
		}
	}
	return n
}

func (b BatchOutcome) Failed() int {
	return len(b.Items) - b.Succeeded()
}
