package reservation

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/aist-nrm/nrm/pkg/pathfinder"
	"github.com/aist-nrm/nrm/pkg/topo"
	"github.com/aist-nrm/nrm/pkg/util"
)

// ErrReservation is the sentinel wrapped by every ReservationError.
var ErrReservation = errors.New("reservation persistence failure")

// ReservationError reports a durable-store failure for one reservation
// (spec §7: ReservationError — persistence-layer failure, partial success
// is reported). Op is "write", "delete", "get", or "scan".
type ReservationError struct {
	Op       string
	GlobalID string
	Wrapped  error
}

func (e *ReservationError) Error() string {
	return fmt.Sprintf("reservation: %s %s: %v", e.Op, e.GlobalID, e.Wrapped)
}

func (e *ReservationError) Unwrap() error { return ErrReservation }

// Manager owns the in-memory globalid->Reservation map, the short-id
// bijection, and the durable store (spec §4.9).
type Manager struct {
	topo  *topo.Topology
	store Store
	idMgr *GlobalIDManager

	reserveMap map[string]*Reservation
}

// NewManager returns an empty Manager bound to store. If seedFromStore is
// true, every row in store is loaded into memory and given a short id
// (mirroring the teacher's db=True startup path), each logged for operator
// visibility.
func NewManager(ctx context.Context, top *topo.Topology, store Store, seedFromStore bool) (*Manager, error) {
	m := &Manager{
		topo:       top,
		store:      store,
		idMgr:      NewGlobalIDManager(),
		reserveMap: map[string]*Reservation{},
	}
	if !seedFromStore {
		return m, nil
	}
	rows, err := store.Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("reservation: seeding from store: %w", err)
	}
	for globalid, data := range rows {
		rsv, err := Unmarshal(data, top)
		if err != nil {
			util.WithField("globalid", globalid).Warn("reservation: skipping unreadable stored record")
			continue
		}
		m.reserveMap[globalid] = rsv
		id := m.idMgr.AddGlobalID(globalid)
		util.WithFields(map[string]any{"id": id, "globalid": globalid}).Info("reservation: loaded from store")
	}
	return m, nil
}

// Add inserts rsv into memory and assigns it a short id.
func (m *Manager) Add(rsv *Reservation) string {
	m.reserveMap[rsv.GlobalID] = rsv
	return m.idMgr.AddGlobalID(rsv.GlobalID)
}

// Resolve maps the -g argument (short id or globalid) to a globalid.
func (m *Manager) Resolve(idOrGlobal string) (string, bool) {
	return m.idMgr.GlobalIDByID(idOrGlobal)
}

// Delete removes globalid from memory; reports whether it was present.
func (m *Manager) Delete(globalid string) bool {
	if _, ok := m.reserveMap[globalid]; !ok {
		return false
	}
	delete(m.reserveMap, globalid)
	m.idMgr.DelGlobalID(globalid)
	return true
}

// DeleteAll clears memory and resets the short-id counter.
func (m *Manager) DeleteAll() {
	m.reserveMap = map[string]*Reservation{}
	m.idMgr.Clear()
}

// DeleteDB removes globalid from the durable store.
func (m *Manager) DeleteDB(ctx context.Context, globalid string) (bool, error) {
	return m.store.Delete(ctx, globalid)
}

// DeleteDBAll clears the durable store.
func (m *Manager) DeleteDBAll(ctx context.Context) error {
	return m.store.DeleteAll(ctx)
}

// Get retrieves a reservation by globalid, falling back to the durable
// store when withDB is true and it's not resident in memory.
func (m *Manager) Get(ctx context.Context, globalid string, withDB bool) (*Reservation, error) {
	if rsv, ok := m.reserveMap[globalid]; ok {
		return rsv, nil
	}
	if !withDB {
		return nil, nil
	}
	data, ok, err := m.store.Get(ctx, globalid)
	if err != nil || !ok {
		return nil, err
	}
	return Unmarshal(data, m.topo)
}

// GetAll returns every in-memory reservation, plus (when withDB is true)
// every store-only row not yet resident in memory.
func (m *Manager) GetAll(ctx context.Context, withDB bool) ([]*Reservation, error) {
	mem := make([]*Reservation, 0, len(m.reserveMap))
	for _, rsv := range m.reserveMap {
		mem = append(mem, rsv)
	}
	sort.Slice(mem, func(i, j int) bool { return mem[i].GlobalID < mem[j].GlobalID })
	if !withDB {
		return mem, nil
	}

	rows, err := m.store.Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("reservation: scanning store: %w", err)
	}
	dbList := make([]*Reservation, 0, len(rows))
	for globalid, data := range rows {
		rsv, err := Unmarshal(data, m.topo)
		if err != nil {
			util.WithField("globalid", globalid).Warn("reservation: skipping unreadable stored record")
			continue
		}
		dbList = append(dbList, rsv)
	}
	sort.Slice(dbList, func(i, j int) bool { return dbList[i].GlobalID < dbList[j].GlobalID })

	for _, rsv := range mem {
		if !rsv.WrittenDB {
			dbList = append(dbList, rsv)
		}
	}
	return dbList, nil
}

// WriteDB serializes every in-memory reservation not yet written, setting
// WrittenDB on success; it returns a human-readable summary combining any
// per-entry failures with the total written count (spec §4.9).
func (m *Manager) WriteDB(ctx context.Context) string {
	var msgs []string
	written := 0
	for _, rsv := range m.reserveMap {
		if rsv.WrittenDB {
			continue
		}
		data, err := rsv.MarshalJSON()
		if err != nil {
			msgs = append(msgs, (&ReservationError{Op: "write", GlobalID: rsv.GlobalID, Wrapped: err}).Error())
			continue
		}
		if err := m.store.Put(ctx, rsv.GlobalID, data); err != nil {
			msgs = append(msgs, (&ReservationError{Op: "write", GlobalID: rsv.GlobalID, Wrapped: err}).Error())
			continue
		}
		rsv.WrittenDB = true
		written++
	}
	msgs = append(msgs, fmt.Sprintf("%d entries written to the DB", written))
	return strings.Join(msgs, "\n")
}

// FindUsedPath returns every x=true RouteEntry across all in-memory
// reservations (the primary-path edges already claimed).
func (m *Manager) FindUsedPath() *pathfinder.Route {
	var entries []pathfinder.RouteEntry
	for _, rsv := range sortedReservations(m.reserveMap) {
		for _, e := range rsv.Route.Entries {
			if e.X {
				entries = append(entries, e)
			}
		}
	}
	return pathfinder.NewRoute(entries)
}

// MakeUseConnectionList returns every RouteEntry across all in-memory
// reservations (the channel-assignment edges already claimed).
func (m *Manager) MakeUseConnectionList() *pathfinder.Route {
	var entries []pathfinder.RouteEntry
	for _, rsv := range sortedReservations(m.reserveMap) {
		entries = append(entries, rsv.Route.Entries...)
	}
	return pathfinder.NewRoute(entries)
}

func sortedReservations(m map[string]*Reservation) []*Reservation {
	out := make([]*Reservation, 0, len(m))
	for _, rsv := range m {
		out = append(out, rsv)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GlobalID < out[j].GlobalID })
	return out
}
