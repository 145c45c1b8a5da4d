package dispatch

import (
	"errors"
	"sync"
	"testing"
	"time"

	"fleetnav/internal/geo"
	"fleetnav/internal/model"
	"fleetnav/internal/opt"
)

func testConfig() opt.Config {
	cfg := opt.DefaultConfig()
	cfg.Ants = 6
	cfg.Iterations = 12
	cfg.Seed = 7
	return cfg
}

func newTestEngine(t *testing.T, opts ...EngineOption) *Engine {
	t.Helper()
	e, err := NewEngine(NewRegistry(), testConfig(), opts...)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return e
}

func addVehicle(t *testing.T, e *Engine, id string, loc geo.Point, cap float64) {
	t.Helper()
	if _, err := e.Registry().AddVehicle(model.VehicleIn{ID: id, Location: loc, MaxCapacity: cap}); err != nil {
		t.Fatalf("AddVehicle %s: %v", id, err)
	}
}

func addTask(t *testing.T, e *Engine, id string, weight float64, pickup, dropoff geo.Point) {
	t.Helper()
	in := model.TaskIn{ID: id, Weight: weight, Pickup: pickup, Dropoff: dropoff}
	if _, err := e.Registry().AddTask(in); err != nil {
		t.Fatalf("AddTask %s: %v", id, err)
	}
}

func TestAssignPicksNearestVehicle(t *testing.T) {
	e := newTestEngine(t)
	addVehicle(t, e, "near", geo.Point{X: 1, Y: 1}, 100)
	addVehicle(t, e, "far", geo.Point{X: 50, Y: 50}, 100)
	addTask(t, e, "t1", 10, geo.Point{X: 0, Y: 0}, geo.Point{X: 5, Y: 5})

	res, err := e.Assign("t1")
	if err != nil {
		t.Fatalf("Assign: %v", err)
	}
	if !res.Assigned || res.VehicleID != "near" {
		t.Fatalf("got %+v, want assignment to near", res)
	}

	v, err := e.Registry().VehicleSnapshot("near")
	if err != nil {
		t.Fatalf("VehicleSnapshot: %v", err)
	}
	if v.RemainingCapacity != 90 || v.CommittedWeight != 10 {
		t.Fatalf("capacity not updated: remaining=%v committed=%v", v.RemainingCapacity, v.CommittedWeight)
	}
	if len(v.Route) == 0 {
		t.Fatal("route not computed")
	}
	tk, err := e.Registry().TaskSnapshot("t1")
	if err != nil {
		t.Fatalf("TaskSnapshot: %v", err)
	}
	if tk.Status != model.TaskInProgress || tk.VehicleID != "near" {
		t.Fatalf("task not bound: %+v", tk)
	}
}

func TestAssignUnknownTask(t *testing.T) {
	e := newTestEngine(t)
	if _, err := e.Assign("missing"); !errors.Is(err, ErrUnknownTask) {
		t.Fatalf("got %v, want ErrUnknownTask", err)
	}
}

func TestAssignRespectsCommittedWeight(t *testing.T) {
	e := newTestEngine(t)
	addVehicle(t, e, "v1", geo.Point{}, 1000)
	addTask(t, e, "big", 600, geo.Point{X: 1, Y: 1}, geo.Point{X: 2, Y: 2})
	addTask(t, e, "over", 500, geo.Point{X: 1, Y: 1}, geo.Point{X: 3, Y: 3})
	addTask(t, e, "fits", 300, geo.Point{X: 1, Y: 1}, geo.Point{X: 4, Y: 4})

	if res, err := e.Assign("big"); err != nil || !res.Assigned {
		t.Fatalf("big: res=%+v err=%v", res, err)
	}
	res, err := e.Assign("over")
	if err != nil {
		t.Fatalf("over: %v", err)
	}
	if res.Assigned {
		t.Fatal("500 on top of 600/1000 must be rejected")
	}
	if res, err = e.Assign("fits"); err != nil || !res.Assigned {
		t.Fatalf("fits: res=%+v err=%v", res, err)
	}

	v, _ := e.Registry().VehicleSnapshot("v1")
	if v.CommittedWeight != 900 {
		t.Fatalf("committed=%v, want 900", v.CommittedWeight)
	}
}

func TestAssignOverCapacityNeverBinds(t *testing.T) {
	e := newTestEngine(t)
	addVehicle(t, e, "v1", geo.Point{}, 50)
	addTask(t, e, "huge", 80, geo.Point{X: 1, Y: 1}, geo.Point{X: 2, Y: 2})

	res, err := e.Assign("huge")
	if err != nil {
		t.Fatalf("Assign: %v", err)
	}
	if res.Assigned {
		t.Fatal("task heavier than any vehicle must stay pending")
	}
	tk, _ := e.Registry().TaskSnapshot("huge")
	if tk.Status != model.TaskPending {
		t.Fatalf("status=%s, want pending", tk.Status)
	}
}

func TestAssignNotPending(t *testing.T) {
	e := newTestEngine(t)
	addVehicle(t, e, "v1", geo.Point{}, 100)
	addTask(t, e, "t1", 10, geo.Point{X: 1, Y: 0}, geo.Point{X: 2, Y: 0})
	if _, err := e.Assign("t1"); err != nil {
		t.Fatalf("first Assign: %v", err)
	}
	res, err := e.Assign("t1")
	if err != nil {
		t.Fatalf("second Assign: %v", err)
	}
	if res.Assigned {
		t.Fatal("re-assigning an in-progress task must be a no-op rejection")
	}
}

func TestTimeWindowReachability(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	e := newTestEngine(t, WithClock(func() time.Time { return now }))
	// 80 units away: exactly one hour at the assumed speed.
	addVehicle(t, e, "v1", geo.Point{}, 100)

	reg := e.Registry()
	reachable := &model.TimeWindow{Start: now, End: now.Add(time.Hour)}
	tight := &model.TimeWindow{Start: now, End: now.Add(30 * time.Minute)}

	if _, err := reg.AddTask(model.TaskIn{ID: "ok", Weight: 1, Pickup: geo.Point{X: 80}, Dropoff: geo.Point{X: 81}, TimeWindow: reachable}); err != nil {
		t.Fatal(err)
	}
	if _, err := reg.AddTask(model.TaskIn{ID: "late", Weight: 1, Pickup: geo.Point{X: 80}, Dropoff: geo.Point{X: 81}, TimeWindow: tight}); err != nil {
		t.Fatal(err)
	}

	if res, err := e.Assign("ok"); err != nil || !res.Assigned {
		t.Fatalf("one-hour window at 80 units must be reachable: res=%+v err=%v", res, err)
	}
	res, err := e.Assign("late")
	if err != nil {
		t.Fatal(err)
	}
	if res.Assigned {
		t.Fatal("80 units inside a 30-minute window must be rejected")
	}
}

func TestTimeWindowAlreadyClosed(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	e := newTestEngine(t, WithClock(func() time.Time { return now }))
	addVehicle(t, e, "v1", geo.Point{}, 100)
	closed := &model.TimeWindow{Start: now.Add(-2 * time.Hour), End: now.Add(-time.Hour)}
	if _, err := e.Registry().AddTask(model.TaskIn{ID: "t1", Weight: 1, Pickup: geo.Point{X: 1}, Dropoff: geo.Point{X: 2}, TimeWindow: closed}); err != nil {
		t.Fatal(err)
	}
	res, err := e.Assign("t1")
	if err != nil {
		t.Fatal(err)
	}
	if res.Assigned {
		t.Fatal("expired window must reject every vehicle")
	}
}

func TestAdvanceCompletesNearbyDropoffs(t *testing.T) {
	e := newTestEngine(t)
	addVehicle(t, e, "v1", geo.Point{}, 100)
	drop := geo.Point{X: 3, Y: 4}
	addTask(t, e, "t1", 20, geo.Point{X: 1, Y: 1}, drop)
	if _, err := e.Assign("t1"); err != nil {
		t.Fatal(err)
	}

	// Not close enough yet.
	done, err := e.Advance("v1", geo.Point{X: 3, Y: 3.9})
	if err != nil {
		t.Fatal(err)
	}
	if len(done) != 0 {
		t.Fatalf("completed early: %v", done)
	}

	done, err = e.Advance("v1", geo.Point{X: 3.005, Y: 4})
	if err != nil {
		t.Fatal(err)
	}
	if len(done) != 1 || done[0] != "t1" {
		t.Fatalf("completed=%v, want [t1]", done)
	}

	tk, _ := e.Registry().TaskSnapshot("t1")
	if tk.Status != model.TaskCompleted {
		t.Fatalf("status=%s, want completed", tk.Status)
	}
	if tk.VehicleID != "" {
		t.Fatalf("completed task still bound to %q", tk.VehicleID)
	}
	v, _ := e.Registry().VehicleSnapshot("v1")
	if v.RemainingCapacity != 100 || v.CommittedWeight != 0 || len(v.TaskIDs) != 0 {
		t.Fatalf("capacity not restored: %+v", v)
	}
}

func TestAdvanceUnknownVehicle(t *testing.T) {
	e := newTestEngine(t)
	if _, err := e.Advance("ghost", geo.Point{}); !errors.Is(err, ErrUnknownVehicle) {
		t.Fatalf("got %v, want ErrUnknownVehicle", err)
	}
}

func TestBreakdownReassignsAllTasks(t *testing.T) {
	e := newTestEngine(t)
	addVehicle(t, e, "failing", geo.Point{}, 200)
	addVehicle(t, e, "spare", geo.Point{X: 2, Y: 2}, 200)
	addTask(t, e, "a", 50, geo.Point{X: 1, Y: 0}, geo.Point{X: 5, Y: 0})
	addTask(t, e, "b", 30, geo.Point{X: 0, Y: 1}, geo.Point{X: 0, Y: 5})
	for _, id := range []string{"a", "b"} {
		if res, err := e.Assign(id); err != nil || res.VehicleID != "failing" {
			t.Fatalf("setup %s: res=%+v err=%v", id, res, err)
		}
	}

	res, err := e.ReassignOnBreakdown("failing")
	if err != nil {
		t.Fatal(err)
	}
	if !res.AllBound || len(res.Stranded) != 0 {
		t.Fatalf("tasks lost on breakdown: %+v", res)
	}
	for _, id := range []string{"a", "b"} {
		if res.Rebound[id] != "spare" {
			t.Fatalf("%s rebound to %q, want spare", id, res.Rebound[id])
		}
		tk, _ := e.Registry().TaskSnapshot(id)
		if tk.Status != model.TaskInProgress || tk.VehicleID != "spare" {
			t.Fatalf("%s: %+v", id, tk)
		}
	}
	if _, err := e.Registry().VehicleSnapshot("failing"); !errors.Is(err, ErrUnknownVehicle) {
		t.Fatalf("failed vehicle still registered: %v", err)
	}
}

func TestBreakdownLenientCapacity(t *testing.T) {
	e := newTestEngine(t)
	addVehicle(t, e, "failing", geo.Point{}, 100)
	addVehicle(t, e, "tight", geo.Point{X: 1, Y: 1}, 95)
	addTask(t, e, "t1", 100, geo.Point{X: 1, Y: 0}, geo.Point{X: 5, Y: 0})
	if res, err := e.Assign("t1"); err != nil || res.VehicleID != "failing" {
		t.Fatalf("setup: res=%+v err=%v", res, err)
	}

	// 95 < 100 would fail a strict check; the 90% rule accepts it.
	res, err := e.ReassignOnBreakdown("failing")
	if err != nil {
		t.Fatal(err)
	}
	if res.Rebound["t1"] != "tight" {
		t.Fatalf("got %+v, want t1 rebound to tight", res)
	}
}

func TestBreakdownStrandsWhenNoCapacity(t *testing.T) {
	e := newTestEngine(t)
	addVehicle(t, e, "failing", geo.Point{}, 100)
	addVehicle(t, e, "small", geo.Point{X: 1, Y: 1}, 40)
	addTask(t, e, "heavy", 100, geo.Point{X: 1, Y: 0}, geo.Point{X: 5, Y: 0})
	if _, err := e.Assign("heavy"); err != nil {
		t.Fatal(err)
	}

	res, err := e.ReassignOnBreakdown("failing")
	if err != nil {
		t.Fatal(err)
	}
	if res.AllBound || len(res.Stranded) != 1 || res.Stranded[0] != "heavy" {
		t.Fatalf("got %+v, want heavy stranded", res)
	}
	tk, _ := e.Registry().TaskSnapshot("heavy")
	if tk.Status != model.TaskPending || tk.VehicleID != "" {
		t.Fatalf("stranded task must return to pending: %+v", tk)
	}
}

func TestBreakdownHeaviestFirst(t *testing.T) {
	e := newTestEngine(t)
	addVehicle(t, e, "failing", geo.Point{}, 200)
	// One spare with room for exactly one of the two tasks.
	addVehicle(t, e, "spare", geo.Point{X: 1, Y: 1}, 100)
	addTask(t, e, "light", 60, geo.Point{X: 1, Y: 0}, geo.Point{X: 5, Y: 0})
	addTask(t, e, "heavy", 90, geo.Point{X: 0, Y: 1}, geo.Point{X: 0, Y: 5})
	for _, id := range []string{"light", "heavy"} {
		if _, err := e.Assign(id); err != nil {
			t.Fatal(err)
		}
	}

	res, err := e.ReassignOnBreakdown("failing")
	if err != nil {
		t.Fatal(err)
	}
	if res.Rebound["heavy"] != "spare" {
		t.Fatalf("heavy task must claim capacity first: %+v", res)
	}
	if len(res.Stranded) != 1 || res.Stranded[0] != "light" {
		t.Fatalf("got %+v, want light stranded", res)
	}
}

func TestAssignGatedSkipsCostlyDetours(t *testing.T) {
	e := newTestEngine(t)
	addVehicle(t, e, "busy", geo.Point{}, 1000)
	addVehicle(t, e, "idle", geo.Point{X: 30, Y: 0}, 1000)
	// Commit busy to a short local loop.
	addTask(t, e, "local", 10, geo.Point{X: 1, Y: 0}, geo.Point{X: 2, Y: 0})
	if res, err := e.Assign("local"); err != nil || res.VehicleID != "busy" {
		t.Fatalf("setup: res=%+v err=%v", res, err)
	}

	// The new task is right next to idle but a big detour for busy.
	addTask(t, e, "remote", 10, geo.Point{X: 31, Y: 0}, geo.Point{X: 32, Y: 0})
	res, err := e.AssignGated("remote")
	if err != nil {
		t.Fatal(err)
	}
	if !res.Assigned || res.VehicleID != "idle" {
		t.Fatalf("got %+v, want idle (busy fails the gate, idle has no committed route)", res)
	}
}

func TestAssignGatedIdleVehicleAlwaysPasses(t *testing.T) {
	e := newTestEngine(t)
	addVehicle(t, e, "v1", geo.Point{}, 100)
	addTask(t, e, "t1", 10, geo.Point{X: 10, Y: 10}, geo.Point{X: 20, Y: 20})
	res, err := e.AssignGated("t1")
	if err != nil {
		t.Fatal(err)
	}
	if !res.Assigned || res.VehicleID != "v1" {
		t.Fatalf("got %+v, want v1", res)
	}
}

func TestConcurrentAssignAtomicity(t *testing.T) {
	e := newTestEngine(t)
	addVehicle(t, e, "v1", geo.Point{}, 100)
	const n = 20
	for i := 0; i < n; i++ {
		addTask(t, e, string(rune('a'+i)), 10, geo.Point{X: 1, Y: 1}, geo.Point{X: 2, Y: 2})
	}

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			if _, err := e.Assign(id); err != nil {
				t.Errorf("Assign %s: %v", id, err)
			}
		}(string(rune('a' + i)))
	}
	wg.Wait()

	v, err := e.Registry().VehicleSnapshot("v1")
	if err != nil {
		t.Fatal(err)
	}
	if v.CommittedWeight > v.MaxCapacity {
		t.Fatalf("committed %v exceeds capacity %v", v.CommittedWeight, v.MaxCapacity)
	}
	if len(v.TaskIDs) != 10 {
		t.Fatalf("bound %d tasks, want exactly 10 under a 100/10 budget", len(v.TaskIDs))
	}
}
