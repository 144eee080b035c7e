// Package reservation implements the reservation manager (spec §4.9): the
// in-memory globalid->Reservation map, the short-id bijection, and the
// durable store abstraction used to persist reservations across restarts.
package reservation

import (
	"strconv"

	"github.com/google/uuid"
)

// UnknownID is returned when a short id has no known mapping.
const UnknownID = "-1"

// GlobalIDManager issues sequential short ids (starting at 1, reset on
// Clear) bound one-to-one to reservation globalids.
type GlobalIDManager struct {
	id2global map[string]string
	global2id map[string]string
	nextID    int
}

// NewGlobalIDManager returns a manager with its counter reset to 1.
func NewGlobalIDManager() *GlobalIDManager {
	return &GlobalIDManager{
		id2global: map[string]string{},
		global2id: map[string]string{},
		nextID:    1,
	}
}

// NewGlobalID mints a fresh globalid; short ids are assigned separately via
// AddGlobalID once the caller has actually stored the reservation.
func NewGlobalID() string {
	return "urn:uuid:" + uuid.New().String()
}

// AddGlobalID assigns the next sequential short id to globalid and returns it.
func (m *GlobalIDManager) AddGlobalID(globalid string) string {
	id := strconv.Itoa(m.nextID)
	m.id2global[id] = globalid
	m.global2id[globalid] = id
	m.nextID++
	return id
}

// GlobalIDByID resolves the -g option's argument: if it names a known short
// id, return the bound globalid; otherwise, if it names a known globalid
// directly, return it as-is; otherwise report not found.
func (m *GlobalIDManager) GlobalIDByID(id string) (string, bool) {
	if g, ok := m.id2global[id]; ok {
		return g, true
	}
	if _, ok := m.global2id[id]; ok {
		return id, true
	}
	return "", false
}

// DelGlobalID removes the short id bound to globalid, if any.
func (m *GlobalIDManager) DelGlobalID(globalid string) {
	if id, ok := m.global2id[globalid]; ok {
		delete(m.global2id, globalid)
		delete(m.id2global, id)
	}
}

// Clear drops every mapping and resets the sequential counter to 1.
func (m *GlobalIDManager) Clear() {
	m.id2global = map[string]string{}
	m.global2id = map[string]string{}
	m.nextID = 1
}
