// Command simulate runs a seeded fleet scenario against the dispatch
// engine without the HTTP layer: spawn vehicles and tasks, assign,
// drive dropoffs, then break a vehicle and report the recovery.
package main

import (
	"flag"
	"fmt"
	"log"
	"math/rand"
	"sort"

	"fleetnav/internal/dispatch"
	"fleetnav/internal/geo"
	"fleetnav/internal/model"
	"fleetnav/internal/opt"
)

func main() {
	seed := flag.Int64("seed", 42, "rng seed for the scenario")
	vehicles := flag.Int("vehicles", 4, "number of vehicles")
	tasks := flag.Int("tasks", 12, "number of tasks")
	gated := flag.Bool("gated", false, "use the route-length acceptance gate")
	flag.Parse()

	rng := rand.New(rand.NewSource(*seed))

	reg := dispatch.NewRegistry()
	cfg := opt.DefaultConfig()
	cfg.Seed = *seed
	eng, err := dispatch.NewEngine(reg, cfg)
	if err != nil {
		log.Fatalf("engine: %v", err)
	}

	for i := 0; i < *vehicles; i++ {
		id := fmt.Sprintf("v%d", i+1)
		_, err := reg.AddVehicle(model.VehicleIn{
			ID:          id,
			Location:    geo.Point{X: rng.Float64() * 100, Y: rng.Float64() * 100},
			MaxCapacity: 50 + rng.Float64()*100,
		})
		if err != nil {
			log.Fatalf("vehicle %s: %v", id, err)
		}
	}
	for i := 0; i < *tasks; i++ {
		id := fmt.Sprintf("t%d", i+1)
		_, err := reg.AddTask(model.TaskIn{
			ID:      id,
			Weight:  5 + rng.Float64()*25,
			Pickup:  geo.Point{X: rng.Float64() * 100, Y: rng.Float64() * 100},
			Dropoff: geo.Point{X: rng.Float64() * 100, Y: rng.Float64() * 100},
		})
		if err != nil {
			log.Fatalf("task %s: %v", id, err)
		}
	}

	assigned, rejected := 0, 0
	for i := 0; i < *tasks; i++ {
		id := fmt.Sprintf("t%d", i+1)
		var res model.AssignResult
		if *gated {
			res, err = eng.AssignGated(id)
		} else {
			res, err = eng.Assign(id)
		}
		if err != nil {
			log.Fatalf("assign %s: %v", id, err)
		}
		if res.Assigned {
			assigned++
			fmt.Printf("assign  %-4s -> %s\n", id, res.VehicleID)
		} else {
			rejected++
			fmt.Printf("reject  %-4s    %s\n", id, res.Reason)
		}
	}
	fmt.Printf("\n%d assigned, %d rejected\n\n", assigned, rejected)

	// Drive each vehicle through its route; dropoffs complete on arrival.
	completed := 0
	for _, v := range reg.ListVehicles() {
		for _, stop := range v.Route {
			done, err := eng.Advance(v.ID, stop)
			if err != nil {
				log.Fatalf("advance %s: %v", v.ID, err)
			}
			completed += len(done)
		}
	}
	fmt.Printf("%d tasks completed by driving routes\n\n", completed)

	// Break the busiest remaining vehicle and reassign its load.
	var victim string
	busiest := -1
	for _, v := range reg.ListVehicles() {
		if len(v.TaskIDs) > busiest {
			busiest = len(v.TaskIDs)
			victim = v.ID
		}
	}
	if victim != "" && busiest > 0 {
		res, err := eng.ReassignOnBreakdown(victim)
		if err != nil {
			log.Fatalf("breakdown %s: %v", victim, err)
		}
		fmt.Printf("breakdown %s: %d rebound, %d stranded (allBound=%v)\n",
			victim, len(res.Rebound), len(res.Stranded), res.AllBound)
		ids := make([]string, 0, len(res.Rebound))
		for tid := range res.Rebound {
			ids = append(ids, tid)
		}
		sort.Strings(ids)
		for _, tid := range ids {
			fmt.Printf("  %s -> %s\n", tid, res.Rebound[tid])
		}
		for _, tid := range res.Stranded {
			fmt.Printf("  %s stranded\n", tid)
		}
	} else {
		fmt.Println("no loaded vehicle left to break")
	}
}
