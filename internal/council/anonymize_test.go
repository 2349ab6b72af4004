package council

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestAssignLabels(t *testing.T) {
	results := []Stage1Result{
		{Model: "model/a", Response: "First answer"},
		{Model: "model/b", Response: "Second answer"},
		{Model: "model/c", Response: "Third answer"},
	}

	labels, labelToModel, err := AssignLabels(results)
	if err != nil {
		t.Fatalf("AssignLabels failed: %v", err)
	}

	expectedLabels := []string{"A", "B", "C"}
	if len(labels) != len(expectedLabels) {
		t.Fatalf("Labels length: got %d, want %d", len(labels), len(expectedLabels))
	}
	for i, label := range labels {
		if label != expectedLabels[i] {
			t.Errorf("Label %d: got %q, want %q", i, label, expectedLabels[i])
		}
	}

	expectedMapping := map[string]string{
		"Response A": "model/a",
		"Response B": "model/b",
		"Response C": "model/c",
	}
	if len(labelToModel) != len(expectedMapping) {
		t.Fatalf("Mapping size: got %d, want %d", len(labelToModel), len(expectedMapping))
	}
	for label, model := range expectedMapping {
		if labelToModel[label] != model {
			t.Errorf("Mapping[%q]: got %q, want %q", label, labelToModel[label], model)
		}
	}
}

func TestAssignLabelsEmpty(t *testing.T) {
	labels, labelToModel, err := AssignLabels(nil)
	if err != nil {
		t.Fatalf("AssignLabels failed: %v", err)
	}
	if len(labels) != 0 {
		t.Errorf("Expected no labels, got %v", labels)
	}
	if len(labelToModel) != 0 {
		t.Errorf("Expected empty mapping, got %v", labelToModel)
	}
}

func TestAssignLabelsTooMany(t *testing.T) {
	results := make([]Stage1Result, MaxCouncilSize+1)
	for i := range results {
		results[i] = Stage1Result{
			Model:    fmt.Sprintf("model/%d", i),
			Response: "answer",
		}
	}

	_, _, err := AssignLabels(results)
	if !errors.Is(err, ErrCouncilTooLarge) {
		t.Errorf("Expected ErrCouncilTooLarge, got %v", err)
	}
}

func TestAssignLabelsAtLimit(t *testing.T) {
	results := make([]Stage1Result, MaxCouncilSize)
	for i := range results {
		results[i] = Stage1Result{
			Model:    fmt.Sprintf("model/%d", i),
			Response: "answer",
		}
	}

	labels, labelToModel, err := AssignLabels(results)
	if err != nil {
		t.Fatalf("AssignLabels failed at limit: %v", err)
	}
	if labels[0] != "A" || labels[MaxCouncilSize-1] != "Z" {
		t.Errorf("Label range: got %q..%q, want A..Z", labels[0], labels[MaxCouncilSize-1])
	}
	if labelToModel["Response Z"] != fmt.Sprintf("model/%d", MaxCouncilSize-1) {
		t.Errorf("Last mapping wrong: %q", labelToModel["Response Z"])
	}
}

func TestLabeledResponsesBlock(t *testing.T) {
	results := []Stage1Result{
		{Model: "model/a", Response: "Go is a language."},
		{Model: "model/b", Response: "Go was made at Google."},
	}
	labels := []string{"A", "B"}

	block := labeledResponsesBlock(results, labels)

	if !strings.Contains(block, "Response A:\nGo is a language.") {
		t.Errorf("Block missing first labeled response:\n%s", block)
	}
	if !strings.Contains(block, "Response B:\nGo was made at Google.") {
		t.Errorf("Block missing second labeled response:\n%s", block)
	}
	if strings.Contains(block, "model/a") || strings.Contains(block, "model/b") {
		t.Errorf("Block leaks model identities:\n%s", block)
	}
	if strings.Index(block, "Response A:") > strings.Index(block, "Response B:") {
		t.Errorf("Labeled responses out of order:\n%s", block)
	}
}
