package sim

import (
	"reflect"
	"testing"
)

// Every kernel must be a pure function of its inputs: identical calls yield
// identical outputs, and the input state is never written through.
func TestKernelsAreDeterministicAndPure(t *testing.T) {
	entities := Entities{
		"alpha": {ID: "alpha", Pos: Vec3{0, 0, 0}, Vel: Vec3{1, 0, 0}},
		"beta":  {ID: "beta", Pos: Vec3{4, 0, 0}},
	}

	cases := []struct {
		kernel Kernel
		deltas []Delta
	}{
		{SpatialKernel{}, []Delta{
			{Seq: 1, Type: DeltaSpatialSpawn, Payload: mustJSON(t, map[string]any{"id": "alpha", "pos": Vec3{}, "vel": Vec3{1, 0, 0}})},
			{Seq: 2, Type: DeltaSpatialSpawn, Payload: mustJSON(t, map[string]any{"id": "beta", "pos": Vec3{4, 0, 0}})},
		}},
		{PerceptionKernel{}, []Delta{
			{Seq: 1, Type: DeltaPerceptionAttune, Payload: mustJSON(t, map[string]any{"id": "alpha", "range": 10})},
			{Seq: 2, Type: DeltaPerceptionAttune, Payload: mustJSON(t, map[string]any{"id": "beta", "range": 2})},
		}},
		{BehaviorKernel{}, []Delta{
			{Seq: 1, Type: DeltaBehaviorAssign, Payload: mustJSON(t, map[string]any{"id": "alpha", "mode": BehaviorModeWander, "speed": 2})},
			{Seq: 2, Type: DeltaBehaviorAssign, Payload: mustJSON(t, map[string]any{"id": "beta", "mode": BehaviorModeWander, "speed": 1})},
		}},
		{CombatKernel{}, []Delta{
			{Seq: 1, Type: DeltaCombatEnlist, Payload: mustJSON(t, map[string]any{"id": "alpha", "health": 100, "maxHealth": 100})},
			{Seq: 2, Type: DeltaCombatAttack, Payload: mustJSON(t, map[string]any{"source": "beta", "target": "alpha", "amount": 30})},
		}},
		{InventoryKernel{}, []Delta{
			{Seq: 1, Type: DeltaInventoryGrant, Payload: mustJSON(t, map[string]any{"entity": "alpha", "capacity": 50})},
			{Seq: 2, Type: DeltaInventoryTake, Payload: mustJSON(t, map[string]any{"entity": "alpha", "item": "rope", "weight": 10})},
		}},
		{QuestKernel{}, []Delta{
			{Seq: 1, Type: DeltaQuestActivate, Payload: mustJSON(t, map[string]any{"entity": "alpha", "quest": "scout", "goal": 2})},
			{Seq: 2, Type: DeltaQuestProgress, Payload: mustJSON(t, map[string]any{"entity": "alpha", "quest": "scout", "amount": 2})},
		}},
		{FactionKernel{}, []Delta{
			{Seq: 1, Type: DeltaFactionFound, Payload: mustJSON(t, map[string]any{"faction": "miners"})},
			{Seq: 2, Type: DeltaFactionJoin, Payload: mustJSON(t, map[string]any{"entity": "alpha", "faction": "miners"})},
		}},
	}

	for _, tc := range cases {
		t.Run(tc.kernel.Name(), func(t *testing.T) {
			// Warm a non-empty starting state, then step it twice with
			// identical inputs.
			base, _, _ := tc.kernel.Step(entities, tc.kernel.EmptyState(), tc.deltas, 0.05)
			frozen := base.CloneState()

			stateA, acceptedA, alertsA := tc.kernel.Step(entities, base, nil, 0.05)
			stateB, acceptedB, alertsB := tc.kernel.Step(entities, base, nil, 0.05)

			if !reflect.DeepEqual(stateA, stateB) {
				t.Fatalf("states diverged:\n%+v\n%+v", stateA, stateB)
			}
			if !reflect.DeepEqual(acceptedA, acceptedB) {
				t.Fatalf("accepted sets diverged: %+v vs %+v", acceptedA, acceptedB)
			}
			if !reflect.DeepEqual(alertsA, alertsB) {
				t.Fatalf("alerts diverged: %+v vs %+v", alertsA, alertsB)
			}
			if !reflect.DeepEqual(base, frozen) {
				t.Fatalf("step mutated its input state:\n%+v\n%+v", base, frozen)
			}
		})
	}
}
