package eventbus

import "testing"

func TestCheckCompatibility(t *testing.T) {
	prev := VersionedSchema{
		SchemaVersion: "v1",
		Fields: []FieldSchema{
			{Name: "saga_id", Type: "string", Required: true},
			{Name: "status", Type: "string", Required: true},
		},
	}
	nextAdditive := VersionedSchema{
		SchemaVersion: "v2",
		Fields: []FieldSchema{
			{Name: "saga_id", Type: "string", Required: true},
			{Name: "status", Type: "string", Required: true},
			{Name: "correlation_id", Type: "string", Required: false},
		},
	}
	nextBreaking := VersionedSchema{
		SchemaVersion: "v3",
		Fields: []FieldSchema{
			{Name: "saga_id", Type: "string", Required: true},
			{Name: "status", Type: "int", Required: true},
		},
	}

	additive := CheckCompatibility(prev, nextAdditive)
	if !additive.Compatible || !additive.Additive {
		t.Fatalf("expected additive compatibility, got %+v", additive)
	}
	if len(additive.AddedOptional) != 1 || additive.AddedOptional[0] != "correlation_id" {
		t.Fatalf("unexpected additive report: %+v", additive)
	}

	breaking := CheckCompatibility(prev, nextBreaking)
	if breaking.Compatible || breaking.Additive {
		t.Fatalf("expected breaking schema report, got %+v", breaking)
	}
	if len(breaking.TypeChanged) == 0 {
		t.Fatalf("expected type change details, got %+v", breaking)
	}
}

func TestSchemaRouterValidatesRequiredPayloadFields(t *testing.T) {
	router := NewSchemaRouter()
	if err := router.RegisterPayloadSchema(PayloadSchema{
		SchemaVersion: SchemaVersionV1,
		EventType:     "saga_completed",
		Required:      []string{"saga_id", "status"},
	}); err != nil {
		t.Fatalf("RegisterPayloadSchema() error = %v", err)
	}

	valid, err := BuildEnvelope(BuildEnvelopeInput{
		EventType:   "saga_completed",
		NodeID:      "node-1",
		TenantID:    "tenant-a",
		SagaID:      "saga-1",
		OrderingKey: "saga-1",
		Sequence:    1,
		Payload:     map[string]any{"saga_id": "saga-1", "status": "COMPLETED"},
	})
	if err != nil {
		t.Fatalf("BuildEnvelope() error = %v", err)
	}
	if err := router.ValidateIncoming(valid); err != nil {
		t.Fatalf("ValidateIncoming() error = %v", err)
	}

	missing, err := BuildEnvelope(BuildEnvelopeInput{
		EventType:   "saga_completed",
		NodeID:      "node-1",
		TenantID:    "tenant-a",
		SagaID:      "saga-1",
		OrderingKey: "saga-1",
		Sequence:    2,
		Payload:     map[string]any{"saga_id": "saga-1"},
	})
	if err != nil {
		t.Fatalf("BuildEnvelope() error = %v", err)
	}
	if err := router.ValidateIncoming(missing); err == nil {
		t.Fatal("expected validation failure for missing required field")
	}
}
