package scheduler

import (
	"testing"

	"github.com/renderfarm/farmd/internal/scene"
)

func TestAssignRoundRobinLocalOnly(t *testing.T) {
	chunks := []scene.FrameRange{{Start: 1, End: 2}, {Start: 3, End: 4}, {Start: 5, End: 5}}
	jobs := assignRoundRobin("scene", "/a/scene.blend", chunks, nil)
	if len(jobs) != 3 {
		t.Fatalf("got %d jobs, want 3 (no remote workers, one job per chunk)", len(jobs))
	}
	for _, j := range jobs {
		if j.Target != "local" {
			t.Fatalf("expected all-local target, got %s", j.Target)
		}
	}
}

func TestAssignRoundRobinTwoWorkersCoalesce(t *testing.T) {
	var chunks []scene.FrameRange
	for i := 0; i < 10; i++ {
		a := i*10 + 1
		chunks = append(chunks, scene.FrameRange{Start: a, End: a + 9})
	}
	workers := []scene.WorkerRecord{{ID: "remote_A", IP: "10.0.0.5", JobPort: 50010}}

	jobs := assignRoundRobin("scene", "/a/scene.blend", chunks, workers)

	var localJobs, remoteJobs []*scene.Job
	for _, j := range jobs {
		if j.Target == "local" {
			localJobs = append(localJobs, j)
		} else {
			remoteJobs = append(remoteJobs, j)
		}
	}
	if len(localJobs) != 5 {
		t.Fatalf("got %d local jobs, want 5", len(localJobs))
	}
	if len(remoteJobs) != 1 {
		t.Fatalf("got %d remote jobs, want 1 coalesced job", len(remoteJobs))
	}
	span := remoteJobs[0].SpanningRange()
	if span.Start != 11 || span.End != 100 {
		t.Fatalf("got remote span %v, want (11,100)", span)
	}

	wantLocalStarts := []int{1, 21, 41, 61, 81}
	for i, j := range localJobs {
		if j.Chunks[0].Start != wantLocalStarts[i] {
			t.Fatalf("local job %d starts at %d, want %d", i, j.Chunks[0].Start, wantLocalStarts[i])
		}
	}
}

func TestAssignRoundRobinFairness(t *testing.T) {
	var chunks []scene.FrameRange
	for i := 0; i < 17; i++ {
		chunks = append(chunks, scene.FrameRange{Start: i, End: i})
	}
	workers := []scene.WorkerRecord{{ID: "w1"}, {ID: "w2"}, {ID: "w3"}}

	jobs := assignRoundRobin("scene", "/a/s.blend", chunks, workers)

	counts := map[string]int{}
	for _, j := range jobs {
		if j.Target == "local" {
			counts["local"] += len(j.Chunks)
		} else {
			counts[j.Target] += len(j.Chunks)
		}
	}
	k := 4 // local + 3 workers
	n := 17
	floor, ceil := n/k, (n+k-1)/k
	for target, c := range counts {
		if c != floor && c != ceil {
			t.Fatalf("target %s got %d chunks, want %d or %d", target, c, floor, ceil)
		}
	}
}
