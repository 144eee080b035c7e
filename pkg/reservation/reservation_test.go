package reservation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/aist-nrm/nrm/pkg/pathfinder"
	"github.com/aist-nrm/nrm/pkg/topo"
)

func fixturePortChannel(compName string, num int, tableID string, chNum int) topo.PortChannel {
	c := &topo.Component{Name: compName, Ports: map[int]*topo.Port{}}
	p := &topo.Port{Number: num, Component: c}
	ch := &topo.Channel{Number: chNum, ChannelTableID: tableID}
	c.Ports[num] = p
	return topo.PortChannel{Port: p, Channel: ch}
}

func TestGlobalIDManagerSequentialAndReset(t *testing.T) {
	m := NewGlobalIDManager()
	id1 := m.AddGlobalID("urn:uuid:aaa")
	id2 := m.AddGlobalID("urn:uuid:bbb")
	if id1 != "1" || id2 != "2" {
		t.Fatalf("expected sequential ids 1,2; got %s,%s", id1, id2)
	}
	if g, ok := m.GlobalIDByID("1"); !ok || g != "urn:uuid:aaa" {
		t.Fatalf("GlobalIDByID(1) = %q,%v", g, ok)
	}
	if g, ok := m.GlobalIDByID("urn:uuid:bbb"); !ok || g != "urn:uuid:bbb" {
		t.Fatalf("GlobalIDByID by globalid failed: %q,%v", g, ok)
	}
	if _, ok := m.GlobalIDByID("nope"); ok {
		t.Fatal("expected not found")
	}

	m.DelGlobalID("urn:uuid:aaa")
	if _, ok := m.GlobalIDByID("1"); ok {
		t.Fatal("expected id 1 to be gone after delete")
	}

	m.Clear()
	id3 := m.AddGlobalID("urn:uuid:ccc")
	if id3 != "1" {
		t.Fatalf("expected counter reset to 1 after Clear, got %s", id3)
	}
}

func TestReservationJSONRoundTrip(t *testing.T) {
	src := fixturePortChannel("N1", 1, "WDM32", 1)
	dst := fixturePortChannel("N2", 2, "WDM32", 1)
	entries := []pathfinder.RouteEntry{
		{Src: src, Dst: dst, X: true, C: true, IsGo: true},
	}
	rsv := New("urn:uuid:xyz", src, dst, pathfinder.NewRoute(entries))

	data, err := rsv.MarshalJSON()
	if err != nil {
		t.Fatalf("MarshalJSON: %v", err)
	}
	if !strings.Contains(string(data), "urn:uuid:xyz") {
		t.Fatalf("expected globalid in JSON: %s", data)
	}
}

func TestManagerAddDeleteWriteDB(t *testing.T) {
	store := NewMemoryStore()
	m, err := NewManager(context.Background(), nil, store, false)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	src := fixturePortChannel("N1", 1, "WDM32", 1)
	dst := fixturePortChannel("N2", 2, "WDM32", 1)
	route := pathfinder.NewRoute([]pathfinder.RouteEntry{{Src: src, Dst: dst, X: true, C: true, IsGo: true}})

	rsv1 := New(NewGlobalID(), src, dst, route)
	id1 := m.Add(rsv1)
	if id1 != "1" {
		t.Fatalf("expected id 1, got %s", id1)
	}

	rsv2 := New(NewGlobalID(), src, dst, route)
	id2 := m.Add(rsv2)
	if id2 != "2" {
		t.Fatalf("expected id 2, got %s", id2)
	}

	if !m.Delete(rsv1.GlobalID) {
		t.Fatal("expected delete to succeed")
	}
	if m.Delete(rsv1.GlobalID) {
		t.Fatal("expected second delete to fail")
	}

	rsv3 := New(NewGlobalID(), src, dst, route)
	id3 := m.Add(rsv3)
	if id3 != "3" {
		t.Fatalf("expected short ids not to be reused, got %s", id3)
	}

	summary := m.WriteDB(context.Background())
	if !strings.Contains(summary, "entries written to the DB") {
		t.Fatalf("unexpected summary: %s", summary)
	}
	if !rsv2.WrittenDB || !rsv3.WrittenDB {
		t.Fatal("expected reservations to be marked written")
	}

	used := m.FindUsedPath()
	if len(used.Entries) != 2 {
		t.Fatalf("expected 2 used-path entries, got %d", len(used.Entries))
	}

	conns := m.MakeUseConnectionList()
	if len(conns.Entries) != 2 {
		t.Fatalf("expected 2 connection entries, got %d", len(conns.Entries))
	}
}

func TestMemoryStorePutGetDeleteScan(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	if err := s.Put(ctx, "a", []byte("1")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	data, ok, err := s.Get(ctx, "a")
	if err != nil || !ok || string(data) != "1" {
		t.Fatalf("Get = %q,%v,%v", data, ok, err)
	}

	rows, err := s.Scan(ctx)
	if err != nil || len(rows) != 1 {
		t.Fatalf("Scan = %v,%v", rows, err)
	}

	deleted, err := s.Delete(ctx, "a")
	if err != nil || !deleted {
		t.Fatalf("Delete = %v,%v", deleted, err)
	}
	if _, ok, _ := s.Get(ctx, "a"); ok {
		t.Fatal("expected entry to be gone")
	}
}

// failingStore's Put always fails, for exercising WriteDB's per-entry
// ReservationError reporting.
type failingStore struct{ Store }

func (failingStore) Put(ctx context.Context, globalid string, data []byte) error {
	return fmt.Errorf("simulated store outage")
}

func TestWriteDBReportsReservationError(t *testing.T) {
	m, err := NewManager(context.Background(), nil, failingStore{NewMemoryStore()}, false)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	src := fixturePortChannel("N1", 1, "WDM32", 1)
	dst := fixturePortChannel("N2", 2, "WDM32", 1)
	route := pathfinder.NewRoute([]pathfinder.RouteEntry{{Src: src, Dst: dst, X: true, C: true, IsGo: true}})
	rsv := New(NewGlobalID(), src, dst, route)
	m.Add(rsv)

	summary := m.WriteDB(context.Background())
	if !strings.Contains(summary, "reservation: write") {
		t.Fatalf("expected ReservationError text in summary, got: %s", summary)
	}
	if !strings.Contains(summary, "0 entries written to the DB") {
		t.Fatalf("expected 0 written, got: %s", summary)
	}
	if rsv.WrittenDB {
		t.Fatal("expected WrittenDB to remain false on store failure")
	}

	reErr := &ReservationError{Op: "write", GlobalID: rsv.GlobalID, Wrapped: fmt.Errorf("x")}
	if !errors.Is(reErr, ErrReservation) {
		t.Error("expected errors.Is(reErr, ErrReservation) to hold")
	}
}
