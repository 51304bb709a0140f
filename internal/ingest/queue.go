package ingest

import (
	"sync"

	"pkt.systems/engramd/api"
	"pkt.systems/engramd/internal/logfields"
	"pkt.systems/pslog"
)

// lane is the per-namespace FIFO plus its in-flight marker.
type lane struct {
	tasks    []Task
	inFlight bool
}

// Queue holds pending ingestion tasks partitioned by namespace. One
// mutex guards all lanes; the wake channel carries at most one pending
// signal so enqueues never block.
type Queue struct {
	mu      sync.Mutex
	lanes   map[string]*lane
	nextSeq uint64
	wake    chan struct{}
	logger  pslog.Logger
}

// NewQueue returns an empty queue.
func NewQueue(logger pslog.Logger) *Queue {
	return &Queue{
		lanes:  make(map[string]*lane),
		wake:   make(chan struct{}, 1),
		logger: logfields.WithSubsystem(logger, "ingest.queue"),
	}
}

// Enqueue appends t to its namespace lane and wakes the pool. It never
// blocks and never rejects; queue capacity is bounded only by memory.
func (q *Queue) Enqueue(t Task) {
	q.mu.Lock()
	q.nextSeq++
	t.seq = q.nextSeq
	ln := q.lanes[t.Namespace]
	if ln == nil {
		ln = &lane{}
		q.lanes[t.Namespace] = ln
	}
	ln.tasks = append(ln.tasks, t)
	depth := len(ln.tasks)
	q.mu.Unlock()
	q.logger.Debug("ingest.queue.enqueued",
		"namespace", t.Namespace,
		"task_id", t.ID,
		"name", t.Name,
		"lane_depth", depth)
	q.signal()
}

// Wake exposes the pool's wake channel.
func (q *Queue) Wake() <-chan struct{} {
	return q.wake
}

func (q *Queue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// take pops the next eligible task: among namespaces that are not in
// flight, the one whose head task has waited longest. The chosen
// namespace is marked in flight until finish is called. When further
// eligible work remains the wake signal is re-armed so sibling workers
// are not left sleeping on a missed edge.
func (q *Queue) take() (Task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var pickLane *lane
	for _, ln := range q.lanes {
		if ln.inFlight || len(ln.tasks) == 0 {
			continue
		}
		if pickLane == nil || ln.tasks[0].seq < pickLane.tasks[0].seq {
			pickLane = ln
		}
	}
	if pickLane == nil {
		return Task{}, false
	}
	task := pickLane.tasks[0]
	pickLane.tasks = pickLane.tasks[1:]
	pickLane.inFlight = true

	for _, ln := range q.lanes {
		if !ln.inFlight && len(ln.tasks) > 0 {
			q.signal()
			break
		}
	}
	return task, true
}

// finish clears the namespace's in-flight marker and re-wakes the pool
// so the lane's next task becomes eligible. Empty idle lanes are
// dropped to keep the map from accumulating dead namespaces.
func (q *Queue) finish(namespace string) {
	q.mu.Lock()
	if ln := q.lanes[namespace]; ln != nil {
		ln.inFlight = false
		if len(ln.tasks) == 0 {
			delete(q.lanes, namespace)
		}
	}
	q.mu.Unlock()
	q.signal()
}

// Stats snapshots queue depth for get_status and the metrics gauges.
func (q *Queue) Stats() api.QueueStats {
	q.mu.Lock()
	defer q.mu.Unlock()
	var stats api.QueueStats
	for _, ln := range q.lanes {
		stats.QueuedTasks += len(ln.tasks)
		if ln.inFlight {
			stats.InFlight++
		}
		if ln.inFlight || len(ln.tasks) > 0 {
			stats.ActiveNamespaces++
		}
	}
	return stats
}
