package sim

import (
	"math"
	"strings"
	"testing"
)

func spatialSpawn(t *testing.T, seq uint64, id string, pos, vel Vec3) Delta {
	t.Helper()
	return Delta{Seq: seq, Type: DeltaSpatialSpawn, Payload: mustJSON(t, map[string]any{
		"id": id, "position": pos, "velocity": vel,
	})}
}

func TestSpatialIntegratesVelocityOverTicks(t *testing.T) {
	adapter := NewAdapter(SpatialKernel{}, spatialTranslator{})
	if err := adapter.Enqueue(spatialSpawn(t, 1, "rover", Vec3{0, 0, 0}, Vec3{2, 0, -1})); err != nil {
		t.Fatalf("enqueue spawn: %v", err)
	}
	adapter.Tick(nil, 0.05)
	for i := 0; i < 10; i++ {
		adapter.Tick(nil, 0.05)
	}

	rover := adapter.ExportState().(*SpatialState).Entities["rover"]
	if math.Abs(rover.Pos[0]-1.0) > 1e-9 || math.Abs(rover.Pos[2]+0.5) > 1e-9 {
		t.Fatalf("position after 10 ticks at dt=0.05: %+v", rover.Pos)
	}
}

func TestSpatialDespawnRemovesEntity(t *testing.T) {
	adapter := NewAdapter(SpatialKernel{}, spatialTranslator{})
	if err := adapter.Enqueue(spatialSpawn(t, 1, "rover", Vec3{}, Vec3{})); err != nil {
		t.Fatalf("enqueue spawn: %v", err)
	}
	adapter.Tick(nil, 0.05)

	despawn := Delta{Seq: 2, Type: DeltaSpatialDespawn, Payload: mustJSON(t, map[string]any{"id": "rover"})}
	if err := adapter.Enqueue(despawn); err != nil {
		t.Fatalf("enqueue despawn: %v", err)
	}
	_, alerts := adapter.Tick(nil, 0.05)

	state := adapter.ExportState().(*SpatialState)
	if _, exists := state.Entities["rover"]; exists {
		t.Fatalf("despawned entity still present: %+v", state.Entities)
	}
	found := false
	for _, alert := range alerts {
		if alert.Type == AlertSpatialDespawned {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected despawned alert, got %+v", alerts)
	}
}

func TestSpatialTranslatorRequiresWireNames(t *testing.T) {
	adapter := NewAdapter(SpatialKernel{}, spatialTranslator{})

	// Kernel field names on the wire must fail translation outright.
	kernelShaped := Delta{Seq: 1, Type: DeltaSpatialSpawn, Payload: mustJSON(t, map[string]any{
		"id": "rover", "pos": Vec3{1, 2, 3}, "vel": Vec3{},
	})}
	err := adapter.Enqueue(kernelShaped)
	if err == nil {
		t.Fatal("spawn without wire-named position must fail translation")
	}
	if !strings.Contains(err.Error(), "missing position") {
		t.Fatalf("unexpected translation error: %v", err)
	}

	noVelocity := Delta{Seq: 2, Type: DeltaSpatialSetVelocity, Payload: mustJSON(t, map[string]any{
		"id": "rover",
	})}
	if err := adapter.Enqueue(noVelocity); err == nil {
		t.Fatal("set_velocity without velocity must fail translation")
	}
}

func TestSpatialTranslatorRecodesToKernelNames(t *testing.T) {
	var tr spatialTranslator
	wire := spatialSpawn(t, 1, "rover", Vec3{1, 2, 3}, Vec3{4, 5, 6})
	canonical, err := tr.ToKernel(wire)
	if err != nil {
		t.Fatalf("translate spawn: %v", err)
	}
	body := string(canonical.Payload)
	if !strings.Contains(body, `"pos"`) || !strings.Contains(body, `"vel"`) {
		t.Fatalf("canonical payload must use kernel names, got %s", body)
	}
	if strings.Contains(body, `"position"`) || strings.Contains(body, `"velocity"`) {
		t.Fatalf("canonical payload must not carry wire names, got %s", body)
	}
	if canonical.Seq != 1 {
		t.Fatalf("translation must preserve seq, got %d", canonical.Seq)
	}
}

func TestSpatialWireViewSpeaksWireNames(t *testing.T) {
	adapter := NewAdapter(SpatialKernel{}, spatialTranslator{})
	if err := adapter.Enqueue(spatialSpawn(t, 1, "rover", Vec3{1, 2, 3}, Vec3{4, 5, 6})); err != nil {
		t.Fatalf("enqueue spawn: %v", err)
	}
	adapter.Tick(nil, 0)

	view, ok := adapter.ExportState().(*SpatialState).WireView().(map[string]WireEntity)
	if !ok {
		t.Fatalf("unexpected wire view shape")
	}
	rover, exists := view["rover"]
	if !exists {
		t.Fatalf("rover missing from wire view: %+v", view)
	}
	if rover.Position != (Vec3{1, 2, 3}) || rover.Velocity != (Vec3{4, 5, 6}) {
		t.Fatalf("wire view mismatch: %+v", rover)
	}
}

func TestSpatialDuplicateSpawnRejected(t *testing.T) {
	adapter := NewAdapter(SpatialKernel{}, spatialTranslator{})
	if err := adapter.Enqueue(spatialSpawn(t, 1, "rover", Vec3{}, Vec3{})); err != nil {
		t.Fatalf("enqueue spawn: %v", err)
	}
	adapter.Tick(nil, 0.05)

	if err := adapter.Enqueue(spatialSpawn(t, 2, "rover", Vec3{9, 9, 9}, Vec3{})); err != nil {
		t.Fatalf("enqueue duplicate spawn: %v", err)
	}
	accepted, alerts := adapter.Tick(nil, 0.05)
	if len(accepted) != 0 {
		t.Fatalf("duplicate spawn must be rejected, got %+v", accepted)
	}
	found := false
	for _, alert := range alerts {
		if alert.Type == AlertSpatialRejected && alert.Payload["reason"] == "duplicate_entity" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected duplicate_entity rejection, got %+v", alerts)
	}
	rover := adapter.ExportState().(*SpatialState).Entities["rover"]
	if rover.Pos == (Vec3{9, 9, 9}) {
		t.Fatalf("rejected spawn overwrote existing entity: %+v", rover)
	}
}
