package memory

import (
	"context"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/shirou/gopsutil/v4/process"

	"pkt.systems/engramd/api"
	"pkt.systems/engramd/internal/ingest"
	"pkt.systems/engramd/internal/version"
)

const statusPingTimeout = 2 * time.Second

// AttachPool wires the worker pool in after construction. The pool is
// built around IngestTask, so it cannot exist before the service does.
func (s *Service) AttachPool(pool *ingest.Pool) {
	s.pool = pool
}

// Status reports server health: backend connectivity, known
// namespaces, queue depth, and process vitals.
func (s *Service) Status(ctx context.Context) api.Status {
	st := api.Status{
		Version:    version.Current(),
		InstanceID: s.instanceID,
		Uptime:     time.Since(s.startedAt).Round(time.Second).String(),
	}
	pingCtx, cancel := context.WithTimeout(ctx, statusPingTimeout)
	defer cancel()
	if err := s.engine.Ping(pingCtx); err != nil {
		st.GraphError = err.Error()
	} else {
		st.GraphReachable = true
		if nss, err := s.engine.ListNamespaces(ctx); err == nil {
			st.Namespaces = nss
		}
	}
	st.Queue = s.queue.Stats()
	if s.pool != nil {
		st.Queue.Workers = s.pool.Size()
		st.Queue.BusyWorkers = s.pool.Busy()
	}
	if rss := processRSS(); rss > 0 {
		st.MemoryRSS = humanize.IBytes(rss)
	}
	return st
}

func processRSS() uint64 {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return 0
	}
	info, err := proc.MemoryInfo()
	if err != nil || info == nil {
		return 0
	}
	return info.RSS
}
