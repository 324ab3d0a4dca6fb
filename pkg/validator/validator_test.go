package validator

import (
	"testing"
)

type ackRequest struct {
	Type string `json:"type" validate:"required"`
	ID   string `json:"id" validate:"required,min=1"`
}

func TestValidateStructPasses(t *testing.T) {
	if err := ValidateStruct(ackRequest{Type: "contact", ID: "abc123"}); err != nil {
		t.Fatalf("expected valid struct, got %v", err)
	}
}

func TestValidateStructReportsJSONFieldNames(t *testing.T) {
	err := ValidateStruct(ackRequest{})
	if err == nil {
		t.Fatal("expected validation failure")
	}

	failures, ok := err.(ValidationErrors)
	if !ok {
		t.Fatalf("expected ValidationErrors, got %T", err)
	}

	if len(failures) != 2 {
		t.Fatalf("expected 2 failures, got %d", len(failures))
	}
	if failures[0].Field != "type" {
		t.Fatalf("expected json field name, got %s", failures[0].Field)
	}
}
