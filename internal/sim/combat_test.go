package sim

import "testing"

func combatSetup(t *testing.T) *Adapter {
	t.Helper()
	adapter := NewAdapter(CombatKernel{}, nil)
	enlist := Delta{Seq: 1, Type: DeltaCombatEnlist, Payload: mustJSON(t, map[string]any{
		"id": "guard", "health": 100, "maxHealth": 100,
	})}
	if err := adapter.Enqueue(enlist); err != nil {
		t.Fatalf("enqueue enlist: %v", err)
	}
	if accepted, _ := adapter.Tick(nil, 0.05); len(accepted) != 1 {
		t.Fatalf("enlist not accepted: %+v", accepted)
	}
	return adapter
}

func attackDelta(t *testing.T, seq uint64) Delta {
	t.Helper()
	return Delta{Seq: seq, Type: DeltaCombatAttack, Payload: mustJSON(t, map[string]any{
		"source": "enemy", "target": "guard", "amount": 25,
	})}
}

func TestRepeatedAttacksKillExactlyOnce(t *testing.T) {
	adapter := combatSetup(t)

	var woundedAlerts, diedAlerts int
	var acceptedAttacks int
	for seq := uint64(2); seq <= 6; seq++ {
		if err := adapter.Enqueue(attackDelta(t, seq)); err != nil {
			t.Fatalf("enqueue attack %d: %v", seq, err)
		}
		accepted, alerts := adapter.Tick(nil, 0.05)
		acceptedAttacks += len(accepted)
		for _, alert := range alerts {
			switch alert.Type {
			case AlertCombatWounded:
				woundedAlerts++
			case AlertCombatEntityDied:
				diedAlerts++
			}
		}

		state := adapter.ExportState().(*CombatState)
		guard := state.Entities["guard"]
		switch seq {
		case 2:
			if guard.Health != 75 || guard.Status != CombatStatusWounded {
				t.Fatalf("after first attack: %+v", guard)
			}
		case 5:
			if guard.Health != 0 || guard.Status != CombatStatusDead {
				t.Fatalf("after fourth attack: %+v", guard)
			}
		}
	}

	if acceptedAttacks != 4 {
		t.Fatalf("expected exactly 4 attacks accepted (fifth hits a corpse), got %d", acceptedAttacks)
	}
	if woundedAlerts != 1 {
		t.Fatalf("wounded transition alert fired %d times, want 1", woundedAlerts)
	}
	if diedAlerts != 1 {
		t.Fatalf("entity_died alert fired %d times, want 1", diedAlerts)
	}
}

func TestAttackOnDeadTargetIsRejected(t *testing.T) {
	adapter := combatSetup(t)
	kill := Delta{Seq: 2, Type: DeltaCombatAttack, Payload: mustJSON(t, map[string]any{
		"source": "enemy", "target": "guard", "amount": 150,
	})}
	if err := adapter.Enqueue(kill); err != nil {
		t.Fatalf("enqueue kill: %v", err)
	}
	adapter.Tick(nil, 0.05)

	if err := adapter.Enqueue(attackDelta(t, 3)); err != nil {
		t.Fatalf("enqueue post-mortem attack: %v", err)
	}
	accepted, alerts := adapter.Tick(nil, 0.05)
	if len(accepted) != 0 {
		t.Fatalf("attack on dead target must be rejected, got %+v", accepted)
	}
	found := false
	for _, alert := range alerts {
		if alert.Type == AlertCombatRejected && alert.Payload["reason"] == "target_dead" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected target_dead rejection alert, got %+v", alerts)
	}
}

func TestHealClampsAtMaxAndRestoresStatus(t *testing.T) {
	adapter := combatSetup(t)
	if err := adapter.Enqueue(attackDelta(t, 2)); err != nil {
		t.Fatalf("enqueue attack: %v", err)
	}
	adapter.Tick(nil, 0.05)

	heal := Delta{Seq: 3, Type: DeltaCombatHeal, Payload: mustJSON(t, map[string]any{
		"target": "guard", "amount": 500,
	})}
	if err := adapter.Enqueue(heal); err != nil {
		t.Fatalf("enqueue heal: %v", err)
	}
	accepted, _ := adapter.Tick(nil, 0.05)
	if len(accepted) != 1 {
		t.Fatalf("heal not accepted: %+v", accepted)
	}
	guard := adapter.ExportState().(*CombatState).Entities["guard"]
	if guard.Health != 100 || guard.Status != CombatStatusHealthy {
		t.Fatalf("heal should clamp to max and restore status, got %+v", guard)
	}
}

func TestMalformedAttackDoesNotAbortBatch(t *testing.T) {
	adapter := combatSetup(t)
	malformed := Delta{Seq: 2, Type: DeltaCombatAttack, Payload: []byte(`{"target":`)}
	if err := adapter.Enqueue(malformed); err != nil {
		t.Fatalf("structural enqueue should still succeed: %v", err)
	}
	if err := adapter.Enqueue(attackDelta(t, 3)); err != nil {
		t.Fatalf("enqueue follow-up attack: %v", err)
	}

	accepted, _ := adapter.Tick(nil, 0.05)
	if len(accepted) != 1 || accepted[0].Seq != 3 {
		t.Fatalf("valid delta after malformed one must still apply, got %+v", accepted)
	}
}
