package csched

import (
	"time"

	"github.com/cuemby/cn-csched/pkg/cn"
	"github.com/cuemby/cn-csched/pkg/config"
	"github.com/cuemby/cn-csched/pkg/log"
	"github.com/cuemby/cn-csched/pkg/metrics"
)

// Monitor iteration cadences.
const (
	qosInterval      = 333 * time.Millisecond
	scheduleInterval = 3 * time.Second
	settingsInterval = 10 * time.Second
	shapeInterval    = 15 * time.Second
	idleAfter        = 5 * time.Second
)

// monitorLoop is the scheduler's single background goroutine: a timer
// drives runIteration on the qos cadence, with ingest/completion/user
// activity able to wake it early via s.wake.
func (s *Scheduler) monitorLoop() {
	defer close(s.done)

	ticker := time.NewTicker(qosInterval)
	defer ticker.Stop()

	var lastSchedule, lastSettings, lastShape time.Time

	for {
		select {
		case <-s.stop:
			s.runIteration(&lastSchedule, &lastSettings, &lastShape)
			return
		case <-s.wake:
			s.runIteration(&lastSchedule, &lastSettings, &lastShape)
		case <-ticker.C:
			s.runIteration(&lastSchedule, &lastSettings, &lastShape)
		}
	}
}

// runIteration runs the monitor's ten numbered steps once.
func (s *Scheduler) runIteration(lastSchedule, lastSettings, lastShape *time.Time) {
	start := time.Now()
	defer func() {
		metrics.MonitorIterationDuration.Observe(time.Since(start).Seconds())
	}()

	params := s.Params()
	activity := false

	// Step 1: drain and account for completed jobs.
	for _, cw := range s.completions.Drain() {
		activity = true
		if cw.err != nil {
			log.WithJobID(cw.item.JobID).Warn().Str("rule", cw.item.Rule).Err(cw.err).
				Msg("csched: job completion recorded an error")
		}
	}
	if activity {
		s.markActivity()
	}

	// Step 2: health gate, then drain and reclassify dirty nodes.
	healthy := true
	if s.healthFn != nil {
		healthy = s.healthFn()
	}
	s.healthy.Store(healthy)

	drained := s.dirty.Drain()
	if healthy {
		for n := range drained.nodes {
			st, ok := s.ownerOf(n)
			if !ok {
				continue
			}
			st.tree.RLock()
			classify(s.ci, st.tree, n, params)
			st.tree.RUnlock()

			if !n.IsRoot && !n.RouteValid() && n.Stats().KvsetCount == 0 && n.Role() == cn.RoleNone {
				st.tree.Lock()
				err := st.tree.RemoveNode(n)
				st.tree.Unlock()
				if err == nil {
					s.forgetNode(n)
				}
			}
		}
	}

	// Step 3: apply per-tree ingest deltas accumulated since the last
	// drain.
	s.mu.RLock()
	trees := make([]*spTree, 0, len(s.trees))
	for _, st := range s.trees {
		trees = append(trees, st)
	}
	s.mu.RUnlock()

	for _, st := range trees {
		alen, wlen := st.tree.DrainIngest()
		if alen+wlen == 0 {
			continue
		}
		activity = true
		s.samp.AddIngest(alen, wlen)
		s.dirty.MarkNode(st.tree, st.tree.Root())
	}

	// Step 4: promote newly added trees.
	for _, t := range s.newTrees.Drain() {
		activity = true
		routes := cn.NewRouteMap(s.routeStore)
		st := newSpTree(t, routes)

		s.mu.Lock()
		s.trees[t.ID] = st
		s.mu.Unlock()

		s.samp.AddTree(aggregateTreeSampStats(t))
		root := t.Root()
		s.registerNode(st, root)

		t.RLock()
		classify(s.ci, t, root, params)
		t.RUnlock()

		log.WithComponent("csched").Info().Str("tree", t.ID).Msg("csched: tree attached")
	}

	// Step 5: prune disabled trees with no in-flight work.
	s.mu.Lock()
	for id, st := range s.trees {
		if !st.tree.Enabled() && st.tree.InFlightJobs() == 0 {
			s.samp.RemoveTree(aggregateTreeSampStats(st.tree))
			for _, sn := range st.allSpNodes() {
				s.forgetNode(sn.node)
			}
			delete(s.trees, id)
			log.WithComponent("csched").Info().Str("tree", id).Msg("csched: tree detached")
		}
	}
	s.mu.Unlock()

	// Step 6: recompute samp, refresh its metrics, let a running user
	// compaction check its exit condition.
	snap := s.samp.Recompute(params)
	s.updateSampMetrics(snap)
	s.userCompact.CheckExit(snap, s.idle.Load())

	now := time.Now()

	// Step 7/8: dispatch a round if the schedule cadence has elapsed
	// or there was fresh activity this iteration.
	if activity || now.Sub(*lastSchedule) >= scheduleInterval {
		s.dispatchRound(params)
		*lastSchedule = now
	}

	// Step 9: periodic settings/throttle/shape refreshes.
	if now.Sub(*lastSettings) >= settingsInterval {
		*lastSettings = now
		log.WithComponent("csched").Debug().Msg("csched: settings refresh tick")
	}

	worst, holdEligible := s.computeWorstBacklog(params)
	s.throttle.Compute(worst, params.Rspill.RunlenMin, holdEligible)
	metrics.ThrottleSensorValue.Set(float64(s.throttle.Current()))

	if now.Sub(*lastShape) >= shapeInterval {
		*lastShape = now
		s.mu.RLock()
		liveTrees := make([]*cn.Tree, 0, len(s.trees))
		liveSpTrees := make([]*spTree, 0, len(s.trees))
		for _, st := range s.trees {
			liveTrees = append(liveTrees, st.tree)
			liveSpTrees = append(liveSpTrees, st)
		}
		s.mu.RUnlock()

		s.shape.Audit(liveTrees)
		for _, st := range liveSpTrees {
			trimmed, err := s.shape.Trim(st)
			if err != nil {
				log.WithComponent("csched").Warn().Str("tree", st.tree.ID).Err(err).
					Msg("csched: trailing-empty trim failed")
			} else if trimmed {
				activity = true
			}
		}
	}

	// Step 10: idle detection.
	lastActivity := time.Unix(0, s.lastActivity.Load())
	quiet := now.Sub(lastActivity) >= idleAfter
	drained2 := s.disp.jobsStarted.Load() == s.disp.jobsCompleted.Load()
	s.idle.Store(quiet && drained2)
}

// dispatchRound runs one round-robin dispatch pass: each category
// gets one candidate considered per round, cycling the start category
// so no category is starved by an always-full one ahead of it.
func (s *Scheduler) dispatchRound(params config.Params) {
	start := int(s.roundRobinCursor.Add(1)-1) % categoryCount

	for i := 0; i < categoryCount; i++ {
		c := WorkCategory((start + i) % categoryCount)

		if until := s.categoryCooldownUntil[c].Load(); until > time.Now().UnixNano() {
			continue
		}
		if s.disp.QFull(c) {
			continue
		}

		node, _, ok := s.ci.of(c).First()
		if !ok {
			continue
		}

		st, ok := s.ownerOf(node)
		if !ok {
			s.ci.of(c).Remove(node)
			continue
		}

		st.tree.RLock()
		item, result := plan(st.tree, node, c, params)
		st.tree.RUnlock()

		switch result {
		case Planned:
			// Remove before submit, matching sp3_check_rb_tree: the
			// node only returns to this index once classify reassesses
			// it after the job completes.
			s.ci.of(c).Remove(node)
			if !s.disp.Submit(item) {
				s.categoryCooldownUntil[c].Store(time.Now().Add(50 * time.Millisecond).UnixNano())
			}
		case Drop:
			s.ci.of(c).Remove(node)
		case Resched:
			// leave it in place; it will be reconsidered next round
			// once its blocking condition clears.
		}
	}
}

// backlogHoldWindow is how recently a root must have last ingested
// for its oversize clen to keep the throttle sensor held rather than
// decaying to zero.
const backlogHoldWindow = 60 * time.Second

// backlogHoldClenBytes is the clen a root must exceed, combined with
// recent ingest, to keep the throttle sensor held between backlog
// episodes.
const backlogHoldClenBytes = 1 << 30

// computeWorstBacklog scans every monitored tree's root and returns
// the worst observed backlog for the throttle advisor (nil if no tree
// currently has excess unclaimed root kvsets), plus whether any
// monitored root independently qualifies to hold the sensor steady:
// clen beyond backlogHoldClenBytes with ingest inside backlogHoldWindow.
// That second condition is evaluated over every tree, not just the
// one contributing the worst backlog.
func (s *Scheduler) computeWorstBacklog(params config.Params) (*rootBacklog, bool) {
	s.mu.RLock()
	trees := make([]*spTree, 0, len(s.trees))
	for _, st := range s.trees {
		trees = append(trees, st)
	}
	s.mu.RUnlock()

	var worst *rootBacklog
	holdEligible := false
	now := time.Now()

	for _, st := range trees {
		root := st.tree.Root()
		lastIngestNano := st.tree.LastIngestUnixNano()

		if root.Stats().Clen > backlogHoldClenBytes && lastIngestNano > 0 &&
			now.Sub(time.Unix(0, lastIngestNano)) < backlogHoldWindow {
			holdEligible = true
		}

		run, _ := oldestUnclaimedRun(root)
		excess := len(run) - params.Rspill.RunlenMax
		if excess <= 0 {
			continue
		}

		var latency float64
		if lastIngestNano > 0 {
			latency = now.Sub(time.Unix(0, lastIngestNano)).Seconds()
		}

		b := &rootBacklog{
			excessKvsets:      excess,
			maxLatencySec:     latency,
			clenBytes:         root.Stats().Clen,
			lastIngest:        time.Unix(0, lastIngestNano),
			anyCriticallyLong: latency >= maxLatencySeconds,
			anySpillBlocked:   root.SpillingCount() > 0 && len(run) >= params.Rspill.RunlenMax*2,
		}
		if worst == nil || b.excessKvsets > worst.excessKvsets {
			worst = b
		}
	}
	return worst, holdEligible
}
