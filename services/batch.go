package services

// BatchFailure reports one item a batch operation skipped, keyed by the
// identifier the caller supplied for it.
type BatchFailure struct {
	ID     string `json:"id"`
	Reason string `json:"reason"`
}

// BatchResult is the outcome of a best-effort batch operation. Failed items
// never roll back the successfully processed ones.
type BatchResult struct {
	Succeeded []string       `json:"succeeded"`
	Failed    []BatchFailure `json:"failed"`
}

func (r *BatchResult) succeed(id string) {
	r.Succeeded = append(r.Succeeded, id)
}

func (r *BatchResult) fail(id, reason string) {
	r.Failed = append(r.Failed, BatchFailure{ID: id, Reason: reason})
}
