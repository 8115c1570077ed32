// Copyright 2020 Nathan Taylor (nbtaylor@gmail.com)
//
// Permission is hereby granted, free of charge, to any person obtaining a copy of
// this software and associated documentation files (the "Software"), to deal in
// the Software without restriction, including without limitation the rights to
// use, copy, modify, merge, publish, distribute, sublicense, and/or sell copies
// of the Software, and to permit persons to whom the Software is furnished to do
// so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

// Package ghost implements a deterministic, content-addressed ledger of
// speculative state transitions: a ghost proposes candidate next-states,
// the engine collapses the proposal to exactly one via a pure function of
// the ledger length, the ghost id, the step index and the candidate tags
// (see seed), and every transition - proposed
// or stepped - is recorded for audit.
//
// Engine is deliberately single-writer with no internal locking, per the
// original model's "process-wide globals, external serialization
// required" - adding a mutex here would hide a caller bug (concurrent use
// without its own lock) behind an appearance of safety the spec never
// promises.
package ghost

import (
	"encoding/binary"

	"github.com/dijkstracula/go-ctk/ctkerr"
	"github.com/dijkstracula/go-ctk/ctklog"
)

const (
	fnvOffsetBasis uint64 = 14695981039346656037
	fnvPrime       uint64 = 1099511628211

	// engineConstant is the fixed, nonzero starting accumulator spec'd as
	// input #1 to every collapse's seed computation.
	engineConstant uint64 = 0x9E3779B97F4A7C15

	maxIDLen  = 63
	maxTagLen = 63

	noChoice = -1
)

// Candidate is a proposed next-state: an opaque, caller-owned data
// pointer and a short audit tag. Data and the memory it points to are
// borrowed by the engine until the paired Collapse returns.
type Candidate struct {
	Data any
	Tag  string
}

// LedgerEntry is one append-only record of a ghost's history.
type LedgerEntry struct {
	GhostID         string
	StepIndex       uint64
	ProposalPresent bool
	CandidateTags   []string // copied at append time, audit-independent of the caller's array
	ChosenIndex     int      // noChoice ("none yet") until a paired Collapse fills it in
	State           any
}

// Ghost is a handle to one speculative state-transition history.
type Ghost struct {
	id        string
	engine    *Engine
	stepFn    func(arg any) any
	arg       any
	state     any
	stepIndex uint64

	proposal []Candidate // borrowed; nil when none pending

	finished bool
}

// ID returns the (possibly truncated) identifier this ghost was created
// with.
func (g *Ghost) ID() string { return g.id }

// State returns the most recently installed state (nil before the first
// collapse or step).
func (g *Ghost) State() any { return g.state }

// Finished reports whether Dispose has been called on this ghost.
func (g *Ghost) Finished() bool { return g.finished }

// Engine owns the append-only ledger and the scheduling queue. Not safe
// for concurrent use without an external lock.
type Engine struct {
	ledger    []LedgerEntry
	ledgerCap int

	queue    []*Ghost
	queueCap int
}

// Init returns a freshly-initialized engine with the given ledger and
// scheduling-queue capacities. Both must be positive.
func Init(ledgerCap, queueCap int) (*Engine, error) {
	const op = "Engine.Init"
	if ledgerCap <= 0 || queueCap <= 0 {
		return nil, ctkerr.Invalid(op)
	}
	e := &Engine{
		ledger:    make([]LedgerEntry, 0, ledgerCap),
		ledgerCap: ledgerCap,
		queue:     make([]*Ghost, 0, queueCap),
		queueCap:  queueCap,
	}
	ctklog.Debug("ghost", op, "ledgerCap", ledgerCap, "queueCap", queueCap)
	return e, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func (e *Engine) appendLedger(entry LedgerEntry) error {
	const op = "Engine.append"
	if len(e.ledger) >= e.ledgerCap {
		return ctkerr.ResourceExhaustedErr(op, nil)
	}
	e.ledger = append(e.ledger, entry)
	return nil
}

// Create allocates a new ghost, truncates its id to 63 bytes, and records
// its initial ledger entry (step 0, no proposal, no state).
func (e *Engine) Create(id string, stepFn func(arg any) any, arg any) (*Ghost, error) {
	const op = "Engine.Create"
	if e == nil {
		return nil, ctkerr.Invalid(op)
	}
	g := &Ghost{id: truncate(id, maxIDLen), engine: e, stepFn: stepFn, arg: arg}
	if err := e.appendLedger(LedgerEntry{
		GhostID:     g.id,
		StepIndex:   0,
		ChosenIndex: noChoice,
	}); err != nil {
		return nil, err
	}
	ctklog.Debug("ghost", op, "id", g.id)
	return g, nil
}

// Propose attaches candidates (borrowed - the caller must keep them valid
// until the paired Collapse) to ghost and appends a pending-proposal
// ledger entry.
func (e *Engine) Propose(g *Ghost, candidates []Candidate) error {
	const op = "Engine.Propose"
	if e == nil || g == nil || g.finished {
		return ctkerr.Invalid(op)
	}
	if len(candidates) == 0 {
		return ctkerr.Invalid(op)
	}
	g.stepIndex++
	tags := make([]string, len(candidates))
	for i, c := range candidates {
		tags[i] = truncate(c.Tag, maxTagLen)
	}
	g.proposal = candidates

	if err := e.appendLedger(LedgerEntry{
		GhostID:         g.id,
		StepIndex:       g.stepIndex,
		ProposalPresent: true,
		CandidateTags:   tags,
		ChosenIndex:     noChoice,
	}); err != nil {
		g.stepIndex--
		g.proposal = nil
		return err
	}
	return nil
}

// mix is one FNV-1a-64 sub-hash: the prior accumulator is XOR'd into the
// offset basis before absorbing data, per spec.
func mix(prior uint64, data []byte) uint64 {
	h := fnvOffsetBasis ^ prior
	for _, b := range data {
		h ^= uint64(b)
		h *= fnvPrime
	}
	return h
}

func uint64Bytes(v uint64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v)
	return buf[:]
}

// seed computes the deterministic collapse seed for a pending proposal
// recorded at ledger position ledgerLen (the length *before* this
// collapse's own state is recorded), per the 5-input mixing order spec'd.
func seed(ledgerLen int, ghostID string, stepIndex uint64, tags []string) uint64 {
	acc := mix(engineConstant, uint64Bytes(uint64(ledgerLen)))
	acc = mix(acc, []byte(ghostID))
	acc = mix(acc, uint64Bytes(stepIndex))
	for _, tag := range tags {
		acc = mix(acc, []byte(tag))
	}
	return acc
}

// Collapse resolves g's most recent pending proposal to exactly one
// candidate, deterministically, and records the result in the ledger.
func (e *Engine) Collapse(g *Ghost) (int, error) {
	const op = "Engine.Collapse"
	if e == nil || g == nil || g.finished {
		return noChoice, ctkerr.Invalid(op)
	}
	idx := e.findPendingEntry(g)
	if idx < 0 || g.proposal == nil {
		return noChoice, ctkerr.Invalid(op)
	}
	entry := &e.ledger[idx]

	n := len(g.proposal)
	h := seed(len(e.ledger), g.id, entry.StepIndex, entry.CandidateTags)
	chosen := int(h % uint64(n))

	g.state = g.proposal[chosen].Data
	entry.ChosenIndex = chosen
	entry.State = g.state
	g.proposal = nil

	return chosen, nil
}

func (e *Engine) findPendingEntry(g *Ghost) int {
	for i := len(e.ledger) - 1; i >= 0; i-- {
		entry := &e.ledger[i]
		if entry.GhostID == g.id && entry.ProposalPresent && entry.ChosenIndex == noChoice {
			return i
		}
	}
	return -1
}

// Step invokes g's step function (a no-op precondition failure if g has
// a pending proposal or no step function), installs the produced state,
// and appends a ledger entry.
func (e *Engine) Step(g *Ghost) error {
	const op = "Engine.Step"
	if e == nil || g == nil || g.finished {
		return ctkerr.Invalid(op)
	}
	if g.proposal != nil {
		return ctkerr.BusyErr(op)
	}
	if g.stepFn == nil {
		return ctkerr.Invalid(op)
	}
	next := g.stepFn(g.arg)
	g.state = next
	g.stepIndex++

	return e.appendLedger(LedgerEntry{
		GhostID:     g.id,
		StepIndex:   g.stepIndex,
		ChosenIndex: noChoice,
		State:       next,
	})
}

// QueueAdd appends g to the scheduling queue. Returns Busy if the queue
// is at capacity.
func (e *Engine) QueueAdd(g *Ghost) error {
	const op = "Engine.QueueAdd"
	if e == nil || g == nil {
		return ctkerr.Invalid(op)
	}
	if len(e.queue) >= e.queueCap {
		return ctkerr.BusyErr(op)
	}
	e.queue = append(e.queue, g)
	return nil
}

// Schedule drains the scheduling queue once, collapsing or stepping each
// non-finished ghost in enqueue order. Returns Invalid if the queue is
// empty.
func (e *Engine) Schedule() error {
	const op = "Engine.Schedule"
	if e == nil {
		return ctkerr.Invalid(op)
	}
	if len(e.queue) == 0 {
		return ctkerr.Invalid(op)
	}
	queue := e.queue
	e.queue = make([]*Ghost, 0, e.queueCap)

	for _, g := range queue {
		if g.finished {
			continue
		}
		if g.proposal != nil {
			if _, err := e.Collapse(g); err != nil {
				return err
			}
			continue
		}
		if g.stepFn != nil {
			if err := e.Step(g); err != nil {
				return err
			}
		}
	}
	return nil
}

// Dispose marks g finished and clears its fields. Ledger entries already
// recorded for g's id are left in place (the ledger is append-only and
// shared); any outstanding proposal's caller-owned payloads are untouched
// - ownership of those was never the engine's.
func (e *Engine) Dispose(g *Ghost) error {
	const op = "Engine.Dispose"
	if g == nil {
		return nil
	}
	if g.finished {
		return nil
	}
	g.proposal = nil
	g.stepFn = nil
	g.arg = nil
	g.state = nil
	g.finished = true
	ctklog.Debug("ghost", op, "id", g.id)
	return nil
}

// Ledger returns a read-only snapshot of the current ledger.
func (e *Engine) Ledger() []LedgerEntry {
	out := make([]LedgerEntry, len(e.ledger))
	copy(out, e.ledger)
	return out
}
