// Copyright (C) 2022 Sneller, Inc.
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

package dataflowtest

import (
	"sort"
	"sync"

	"github.com/mellowstream/dbsp/dataflow"
	"github.com/mellowstream/dbsp/engine"
	"github.com/mellowstream/dbsp/layout"
)

// pool is a fixed-size goroutine work queue, grounded in the teacher's
// plan.pool/plan.mkpool (SnellerInc/sneller plan/exec.go): closing the
// pool cleans up its goroutines, and do() dispatches one (index, func)
// task to whichever goroutine picks it up next.
type pool chan task

type task struct {
	i int
	f func(int)
}

func mkpool(parallel int) pool {
	if parallel <= 0 {
		parallel = 1
	}
	ch := make(pool, parallel)
	for i := 0; i < parallel; i++ {
		go func() {
			for t := range ch {
				t.f(t.i)
			}
		}()
	}
	return ch
}

func (p pool) do(i int, f func(int)) { p <- task{i, f} }

// tupleEntry is one accumulated multiset entry. value is nil for
// Set-typed streams.
type tupleEntry struct {
	key    *layout.Row
	value  *layout.Row
	weight int64
}

// trace is the accumulated state of one node: every (key[, value]) ever
// pushed, keyed by its byte-exact content so that repeated pushes of the
// same logical row accumulate weight instead of appearing as distinct
// entries (SPEC_FULL.md's weight-additivity invariant).
type trace struct {
	kind    dataflow.StreamKind
	entries map[string]*tupleEntry
}

func newTrace(kind dataflow.StreamKind) *trace {
	return &trace{kind: kind, entries: make(map[string]*tupleEntry)}
}

func (tr *trace) traceKey(t engine.Tuple) string {
	if tr.kind == dataflow.Map {
		return string(t.Key.Bytes()) + "\x00" + string(t.Value.Bytes())
	}
	return string(t.Key.Bytes())
}

// merge folds batch into tr, summing weights for already-seen entries and
// dropping any entry whose weight becomes exactly zero.
func (tr *trace) merge(batch []engine.Tuple) {
	for _, t := range batch {
		k := tr.traceKey(t)
		if e, ok := tr.entries[k]; ok {
			e.weight += t.Weight
			if e.weight == 0 {
				delete(tr.entries, k)
			}
			continue
		}
		if t.Weight == 0 {
			continue
		}
		tr.entries[k] = &tupleEntry{key: t.Key, value: t.Value, weight: t.Weight}
	}
}

// snapshot returns tr's entries as a deterministically ordered slice,
// sorted by key bytes (and, for maps, then by value bytes within a key).
// Byte-order is a valid strict total order for any fixed-width native
// layout; it is not the numeric order of the logical column values, a
// simplification acceptable in a test fake whose only obligation is
// *some* deterministic strict ordering (SPEC_FULL.md's "strict key
// ordering" invariant), not a specific one.
func (tr *trace) snapshot() []engine.Tuple {
	out := make([]engine.Tuple, 0, len(tr.entries))
	for _, e := range tr.entries {
		out = append(out, engine.Tuple{Key: e.key, Value: e.value, Weight: e.weight})
	}
	sort.Slice(out, func(i, j int) bool {
		ki, kj := out[i].Key.Bytes(), out[j].Key.Bytes()
		for x := 0; x < len(ki) && x < len(kj); x++ {
			if ki[x] != kj[x] {
				return ki[x] < kj[x]
			}
		}
		if len(ki) != len(kj) {
			return len(ki) < len(kj)
		}
		if out[i].Value == nil || out[j].Value == nil {
			return false
		}
		vi, vj := out[i].Value.Bytes(), out[j].Value.Bytes()
		for x := 0; x < len(vi) && x < len(vj); x++ {
			if vi[x] != vj[x] {
				return vi[x] < vj[x]
			}
		}
		return len(vi) < len(vj)
	})
	return out
}

// Runtime is the fake engine.Handle: a single-process, in-memory
// incremental runtime. Every declared source accumulates a trace; every
// declared sink's consolidated output is the weight-summed union of its
// wired sources' traces, recomputed once per Step -- the simplest
// non-trivial dataflow (identity when a sink has exactly one source)
// that still exercises weight additivity, tick isolation, and key
// ordering.
type Runtime struct {
	mu      sync.Mutex
	p       pool
	sources map[dataflow.NodeId]*runtimeSource
	sinks   map[dataflow.NodeId]*runtimeSink
}

type runtimeSource struct {
	kind   dataflow.StreamKind
	queued []engine.Tuple
	trace  *trace
}

type runtimeSink struct {
	kind   dataflow.StreamKind
	from   []dataflow.NodeId
	join   *JoinSpec
	cached []engine.Tuple
}

func newRuntime(workers int) *Runtime {
	return &Runtime{
		p:       mkpool(workers),
		sources: make(map[dataflow.NodeId]*runtimeSource),
		sinks:   make(map[dataflow.NodeId]*runtimeSink),
	}
}

func (rt *Runtime) addSource(node dataflow.NodeId, sl dataflow.StreamLayout) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.sources[node] = &runtimeSource{kind: sl.Kind, trace: newTrace(sl.Kind)}
}

func (rt *Runtime) addSink(node dataflow.NodeId, sl dataflow.StreamLayout, from []dataflow.NodeId) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.sinks[node] = &runtimeSink{kind: sl.Kind, from: from}
}

// addJoinSink declares node as a sink computed by js's equi-join rather
// than by unioning wired sources.
func (rt *Runtime) addJoinSink(node dataflow.NodeId, sl dataflow.StreamLayout, js JoinSpec) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.sinks[node] = &runtimeSink{kind: sl.Kind, join: &js}
}

// computeJoin implements a bilinear equi-join on js.KeyColumn: every
// (left, right) row pair whose key column matches contributes one output
// row (the left row) weighted by the product of the two rows' weights,
// the standard DBSP join formula restricted to a single integer key
// column -- adequate for this test fake's role of exercising
// SPEC_FULL.md §8's S3 CSV-join scenario, not a general relational join.
func (rt *Runtime) computeJoin(js *JoinSpec) []engine.Tuple {
	left, lok := rt.sources[js.Left]
	right, rok := rt.sources[js.Right]
	if !lok || !rok {
		return nil
	}
	rightByKey := make(map[int64][]engine.Tuple)
	for _, t := range right.trace.snapshot() {
		k := t.Key.ReadI64(js.KeyColumn)
		rightByKey[k] = append(rightByKey[k], t)
	}
	out := newTrace(dataflow.Set)
	for _, lt := range left.trace.snapshot() {
		k := lt.Key.ReadI64(js.KeyColumn)
		for _, rr := range rightByKey[k] {
			out.merge([]engine.Tuple{{Key: lt.Key, Weight: lt.Weight * rr.Weight}})
		}
	}
	return out.snapshot()
}

// Step merges every source's queued batch into its trace, then
// recomputes every sink's consolidated snapshot as the union of its
// wired sources' traces. Sinks are recomputed concurrently through the
// worker pool, joined by a WaitGroup barrier, mirroring the teacher's
// per-tick fan-out/fan-in in plan/exec.go.
func (rt *Runtime) Step() error {
	rt.mu.Lock()
	for _, s := range rt.sources {
		s.trace.merge(s.queued)
		s.queued = nil
	}

	sinkNodes := make([]dataflow.NodeId, 0, len(rt.sinks))
	for n := range rt.sinks {
		sinkNodes = append(sinkNodes, n)
	}
	var wg sync.WaitGroup
	wg.Add(len(sinkNodes))
	for i, n := range sinkNodes {
		sink := rt.sinks[n]
		rt.p.do(i, func(int) {
			defer wg.Done()
			if sink.join != nil {
				sink.cached = rt.computeJoin(sink.join)
				return
			}
			union := newTrace(sink.kind)
			for _, from := range sink.from {
				if src, ok := rt.sources[from]; ok {
					union.merge(src.trace.snapshot())
				}
			}
			sink.cached = union.snapshot()
		})
	}
	rt.mu.Unlock()
	wg.Wait()
	return nil
}

// Kill is a no-op beyond draining the pool: this runtime holds no
// goroutines blocked mid-step, so there is nothing to interrupt.
func (rt *Runtime) Kill() error {
	close(rt.p)
	return nil
}

type inputEndpoint struct {
	rt   *Runtime
	node dataflow.NodeId
}

func (e *inputEndpoint) Push(t engine.Tuple) { e.PushBatch([]engine.Tuple{t}) }

func (e *inputEndpoint) PushBatch(ts []engine.Tuple) {
	e.rt.mu.Lock()
	defer e.rt.mu.Unlock()
	e.rt.sources[e.node].queued = append(e.rt.sources[e.node].queued, ts...)
}

func (e *inputEndpoint) Clear() {
	e.rt.mu.Lock()
	defer e.rt.mu.Unlock()
	e.rt.sources[e.node].queued = nil
}

type outputEndpoint struct {
	rt   *Runtime
	node dataflow.NodeId
}

func (e *outputEndpoint) Consolidate() []engine.Tuple {
	e.rt.mu.Lock()
	defer e.rt.mu.Unlock()
	out := make([]engine.Tuple, len(e.rt.sinks[e.node].cached))
	copy(out, e.rt.sinks[e.node].cached)
	return out
}

// Factory is the fake engine.Factory: it stands up a Runtime, hands it to
// construct as the CircuitBuilder, and returns endpoint handles for every
// node construct populated.
type Factory struct {
	// Workers, if positive, overrides the worker count passed to Init;
	// if left zero, Init's workers argument is used.
	Workers int
}

func (f Factory) Init(workers int, construct func(engine.CircuitBuilder) error) (engine.Handle, map[dataflow.NodeId]engine.InputEndpoint, map[dataflow.NodeId]engine.OutputEndpoint, error) {
	w := workers
	if f.Workers > 0 {
		w = f.Workers
	}
	rt := newRuntime(w)
	if err := construct(rt); err != nil {
		return nil, nil, nil, err
	}

	ins := make(map[dataflow.NodeId]engine.InputEndpoint, len(rt.sources))
	for n := range rt.sources {
		ins[n] = &inputEndpoint{rt: rt, node: n}
	}
	outs := make(map[dataflow.NodeId]engine.OutputEndpoint, len(rt.sinks))
	for n := range rt.sinks {
		outs[n] = &outputEndpoint{rt: rt, node: n}
	}
	return rt, ins, outs, nil
}
