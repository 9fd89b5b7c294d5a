// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package tlrpc

// PendingQuery is a stored TL query awaiting its typed fetch.
type PendingQuery struct {
	Function string
	Fetch    Fetcher
}

// PendingQueries maps query ids of one epoch to their result decoders.
// Each entry is withdrawn at most once.
type PendingQueries struct {
	epoch uint64
	used  bool
	m     map[RequestID]PendingQuery
}

// Reset drops every entry and retags the registry with epoch.
func (p *PendingQueries) Reset(epoch uint64) {
	p.epoch = epoch
	p.used = false
	p.m = nil
}

// Save records the decoder for id.
func (p *PendingQueries) Save(id RequestID, function string, fetch Fetcher) {
	if p.m == nil {
		p.m = make(map[RequestID]PendingQuery)
	}
	p.used = true
	p.m[id] = PendingQuery{Function: function, Fetch: fetch}
}

// Withdraw removes and returns the entry for id.
func (p *PendingQueries) Withdraw(id RequestID) (PendingQuery, bool) {
	q, ok := p.m[id]
	if ok {
		delete(p.m, id)
	}
	return q, ok
}

// Count returns the number of queries not yet fetched.
func (p *PendingQueries) Count() int {
	return len(p.m)
}

// Used reports whether any TL query was saved this epoch.
func (p *PendingQueries) Used() bool {
	return p.used
}

// Epoch returns the epoch the registry belongs to.
func (p *PendingQueries) Epoch() uint64 {
	return p.epoch
}
