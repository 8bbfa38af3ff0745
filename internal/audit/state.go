package audit

// crawlState is the frontier queue and visited set for one crawl. It is
// owned exclusively by the orchestrator's coordinating loop; workers
// never touch it, so no locking is needed. Separate instances keep
// concurrent audits fully independent.
type crawlState struct {
	frontier []string
	visited  map[string]struct{}
}

func newCrawlState() *crawlState {
	return &crawlState{
		visited: make(map[string]struct{}),
	}
}

// enqueue adds a canonical URL to the frontier unless it was already
// seen. Returns true when the URL was accepted.
func (s *crawlState) enqueue(canonical string) bool {
	if _, seen := s.visited[canonical]; seen {
		return false
	}
	s.visited[canonical] = struct{}{}
	s.frontier = append(s.frontier, canonical)
	return true
}

// dequeue pops the oldest frontier entry (FIFO).
func (s *crawlState) dequeue() (string, bool) {
	if len(s.frontier) == 0 {
		return "", false
	}
	next := s.frontier[0]
	s.frontier = s.frontier[1:]
	return next, true
}

func (s *crawlState) pending() int {
	return len(s.frontier)
}
