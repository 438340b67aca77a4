package pipeline

import "testing"

func TestDefaultWorkflow_ExecutionOrder(t *testing.T) {
	order := DefaultWorkflow().ExecutionOrder()
	if len(order) != 7 {
		t.Fatalf("ExecutionOrder() returned %d steps, want 7", len(order))
	}

	position := make(map[string]int, len(order))
	for i, s := range order {
		position[s.Name] = i
	}
	for _, s := range order {
		for _, dep := range s.DependsOn {
			if position[dep] >= position[s.Name] {
				t.Errorf("step %q (pos %d) scheduled before its dependency %q (pos %d)",
					s.Name, position[s.Name], dep, position[dep])
			}
		}
	}
}

func TestExecutionOrder_Idempotent(t *testing.T) {
	wf := DefaultWorkflow()
	first := wf.ExecutionOrder()

	reordered := WorkflowDefinition{Name: wf.Name, Steps: first}
	second := reordered.ExecutionOrder()

	if len(first) != len(second) {
		t.Fatalf("len mismatch: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].Name != second[i].Name {
			t.Errorf("position %d: first=%q second=%q, want idempotent ordering", i, first[i].Name, second[i].Name)
		}
	}
}

func TestExecutionOrder_CycleIsBestEffort(t *testing.T) {
	wf := WorkflowDefinition{
		Name: "cyclic",
		Steps: []PhaseStep{
			{Name: "a", DependsOn: []string{"b"}},
			{Name: "b", DependsOn: []string{"a"}},
		},
	}
	order := wf.ExecutionOrder()
	if len(order) != 2 {
		t.Fatalf("ExecutionOrder() on a cycle returned %d steps, want 2 (best-effort passthrough)", len(order))
	}
}
