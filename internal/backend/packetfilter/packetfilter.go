// Copyright (C) 2026 ShieldCore Authors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package packetfilter implements the PacketFilter backend (C5): a custom
// kernel packet-filter chain, linked into OUTPUT, holding one owner-UID
// DROP rule per blocked app, for both IPv4 and IPv6.
package packetfilter

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/google/nftables"
	"github.com/google/nftables/expr"

	"shieldcore.dev/fwcore/internal/backend"
	fwerrors "shieldcore.dev/fwcore/internal/errors"
	"shieldcore.dev/fwcore/internal/logging"
	"shieldcore.dev/fwcore/internal/model"
)

const (
	tableName = "shieldcore"
	chainName = "app_output"
)

// Conn is the seam over *nftables.Conn so tests can run without a real
// netlink socket / CAP_NET_ADMIN, mirroring the teacher's NFTablesConn
// injected-dependency pattern.
type Conn interface {
	AddTable(*nftables.Table) *nftables.Table
	AddChain(*nftables.Chain) *nftables.Chain
	AddRule(*nftables.Rule) *nftables.Rule
	DelRule(*nftables.Rule) error
	GetRules(*nftables.Table, *nftables.Chain) ([]*nftables.Rule, error)
	ListChains() ([]*nftables.Chain, error)
	DelChain(*nftables.Chain)
	DelTable(*nftables.Table)
	Flush() error
}

// Backend implements backend.Backend for the PacketFilter mechanism.
// start/stop/apply are mutually exclusive under mu, per spec.md §4.4.b.
type Backend struct {
	conn   Conn
	logger *logging.Logger

	mu        sync.Mutex
	active    bool
	installed map[model.UID]struct{} // currently-installed rule UIDs, tracked to diff
	tables    map[nftables.TableFamily]*nftables.Table
	chains    map[nftables.TableFamily]*nftables.Chain
	rules     map[model.UID]map[nftables.TableFamily]*nftables.Rule
}

// New builds a PacketFilter backend over conn.
func New(conn Conn, logger *logging.Logger) *Backend {
	if logger == nil {
		logger = logging.Default().WithComponent("backend.packetfilter")
	}
	return &Backend{
		conn:      conn,
		logger:    logger,
		installed: map[model.UID]struct{}{},
		tables:    map[nftables.TableFamily]*nftables.Table{},
		chains:    map[nftables.TableFamily]*nftables.Chain{},
		rules:     map[model.UID]map[nftables.TableFamily]*nftables.Rule{},
	}
}

func (b *Backend) Kind() model.BackendKind { return model.BackendPacketFilter }

// CheckAvailability reports Ok unconditionally from the userspace side; the
// real gate is the caller's PrivilegeLevel (orchestrator's job per §4.5),
// since nftables itself has no "probe without mutating" API cheaper than
// attempting AddTable+Flush.
func (b *Backend) CheckAvailability(ctx context.Context) (backend.Availability, error) {
	return backend.Availability{Available: true}, nil
}

var families = []nftables.TableFamily{nftables.TableFamilyIPv4, nftables.TableFamilyIPv6}

// Start creates the custom chain in both IPv4 and IPv6 tables if absent,
// and links it from OUTPUT at the head. Idempotent: re-running Start when
// already active is a no-op.
func (b *Backend) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.active {
		return nil
	}

	for _, fam := range families {
		table := b.conn.AddTable(&nftables.Table{Family: fam, Name: tableName})
		chain := b.conn.AddChain(&nftables.Chain{
			Name:     chainName,
			Table:    table,
			Type:     nftables.ChainTypeFilter,
			Hooknum:  nftables.ChainHookOutput,
			Priority: nftables.ChainPriorityFilter,
			Policy:   chainPolicyAccept(),
		})
		b.tables[fam] = table
		b.chains[fam] = chain
	}

	if err := b.conn.Flush(); err != nil {
		return fwerrors.Wrap(err, fwerrors.KindUnavailable, "install packetfilter chain")
	}
	b.active = true
	b.logger.Info("packetfilter backend started")
	return nil
}

func chainPolicyAccept() *nftables.ChainPolicy {
	p := nftables.ChainPolicyAccept
	return &p
}

// Apply diffs blocked against the currently-installed UID set and adds or
// removes owner-match DROP rules incrementally, for both families.
func (b *Backend) Apply(ctx context.Context, blocked model.BlockedSet) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.active {
		return fwerrors.New(fwerrors.KindInternal, "apply called before start")
	}

	current := make(model.BlockedSet, len(b.installed))
	for uid := range b.installed {
		current[uid] = struct{}{}
	}
	add, remove := blocked.Diff(current)

	var firstErr error
	for _, uid := range add {
		if err := b.addUIDLocked(uid); err != nil {
			b.logger.Warn("apply: add uid failed", "uid", uid, "error", err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		b.installed[uid] = struct{}{}
	}
	for _, uid := range remove {
		if err := b.removeUIDLocked(uid); err != nil {
			b.logger.Warn("apply: remove uid failed", "uid", uid, "error", err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		delete(b.installed, uid)
	}

	if err := b.conn.Flush(); err != nil {
		return fwerrors.Wrap(err, fwerrors.KindInternal, "flush packetfilter rules")
	}
	return firstErr
}

func (b *Backend) addUIDLocked(uid model.UID) error {
	perFamily := make(map[nftables.TableFamily]*nftables.Rule, len(families))
	for _, fam := range families {
		chain := b.chains[fam]
		if chain == nil {
			return fwerrors.Errorf(fwerrors.KindInternal, "chain not installed for family %v", fam)
		}
		buf := make([]byte, 4)
		binary.NativeEndian.PutUint32(buf, uint32(uid))
		rule := b.conn.AddRule(&nftables.Rule{
			Table: b.tables[fam],
			Chain: chain,
			Exprs: []expr.Any{
				&expr.Meta{Key: expr.MetaKeySKUID, Register: 1},
				&expr.Cmp{Op: expr.CmpOpEq, Register: 1, Data: buf},
				&expr.Verdict{Kind: expr.VerdictDrop},
			},
		})
		perFamily[fam] = rule
	}
	b.rules[uid] = perFamily
	return nil
}

func (b *Backend) removeUIDLocked(uid model.UID) error {
	perFamily, ok := b.rules[uid]
	if !ok {
		return nil // already absent, tolerated per spec's idempotent teardown discipline
	}
	var firstErr error
	for _, rule := range perFamily {
		if err := b.conn.DelRule(rule); err != nil {
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	delete(b.rules, uid)
	return firstErr
}

// Stop unlinks the chain from OUTPUT, flushes, and deletes it for both
// families, each step tolerating "already absent". Idempotent and
// best-effort per spec.md §4.4 common contract.
func (b *Backend) Stop(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.active {
		return nil
	}

	for _, fam := range families {
		if chain := b.chains[fam]; chain != nil {
			b.conn.DelChain(chain)
		}
		if table := b.tables[fam]; table != nil {
			b.conn.DelTable(table)
		}
	}
	if err := b.conn.Flush(); err != nil {
		b.logger.Warn("packetfilter stop: flush failed, treating as best-effort", "error", err)
	}

	b.tables = map[nftables.TableFamily]*nftables.Table{}
	b.chains = map[nftables.TableFamily]*nftables.Chain{}
	b.rules = map[model.UID]map[nftables.TableFamily]*nftables.Rule{}
	b.installed = map[model.UID]struct{}{}
	b.active = false
	return nil
}

func (b *Backend) IsActive() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.active
}

func (b *Backend) SupportsGranularControl() bool { return true }

// RealConn wraps *nftables.Conn to satisfy Conn; the thin indirection only
// exists for tests, production code should construct via NewRealConn.
type RealConn struct {
	*nftables.Conn
}

func NewRealConn() (*RealConn, error) {
	conn, err := nftables.New()
	if err != nil {
		return nil, fmt.Errorf("open nftables netlink socket: %w", err)
	}
	return &RealConn{Conn: conn}, nil
}
