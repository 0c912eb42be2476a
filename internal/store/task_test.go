package store

import (
	"testing"

	"github.com/dukerupert/tally/internal/model"
)

func taskFixture(name, typ string, score float64) model.Task {
	return model.Task{Name: name, Unit: "times", Score: score, Type: typ}
}

func TestTaskCRUD(t *testing.T) {
	db := setupNamespaceTestDB(t)
	ts := NewTaskStore(db)

	// Create
	task, err := ts.Create(testPrefix, model.Task{Name: "Read", Unit: "pages", Score: 5, Type: "chore"})
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	if task.ID == 0 {
		t.Error("expected backend-assigned id")
	}
	if task.Name != "Read" {
		t.Errorf("name = %q, want %q", task.Name, "Read")
	}
	if !task.IsEnabled() || task.Enabled == nil {
		t.Error("expected enabled to default to true")
	}

	// Update
	newName := "Read aloud"
	disabled := false
	updated, err := ts.Update(testPrefix, task.ID, TaskPatch{Name: &newName, Enabled: &disabled})
	if err != nil {
		t.Fatalf("update task: %v", err)
	}
	if updated.Name != "Read aloud" {
		t.Errorf("name = %q, want %q", updated.Name, "Read aloud")
	}
	if updated.Unit != "pages" {
		t.Errorf("unit = %q, want unchanged %q", updated.Unit, "pages")
	}
	if updated.IsEnabled() {
		t.Error("expected disabled")
	}

	// Delete
	deleted, err := ts.Delete(testPrefix, task.ID)
	if err != nil {
		t.Fatalf("delete task: %v", err)
	}
	if deleted == nil || deleted.ID != task.ID {
		t.Fatalf("deleted = %+v, want id %d", deleted, task.ID)
	}
	got, err := ts.GetByID(testPrefix, task.ID)
	if err != nil {
		t.Fatalf("get deleted task: %v", err)
	}
	if got != nil {
		t.Error("expected nil after delete")
	}

	again, err := ts.Delete(testPrefix, task.ID)
	if err != nil {
		t.Fatalf("delete missing task: %v", err)
	}
	if again != nil {
		t.Error("expected nil for second delete")
	}
}

func TestTaskUpdateMissing(t *testing.T) {
	db := setupNamespaceTestDB(t)
	name := "x"

	got, err := NewTaskStore(db).Update(testPrefix, 999, TaskPatch{Name: &name})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if got != nil {
		t.Error("expected nil for missing task")
	}
}

func TestTaskListOrdering(t *testing.T) {
	db := setupNamespaceTestDB(t)
	ts := NewTaskStore(db)

	ts.Create(testPrefix, taskFixture("Dishes", "chore", 3))
	ts.Create(testPrefix, taskFixture("Piano", "study", 2))
	ts.Create(testPrefix, taskFixture("Laundry", "chore", 8))
	ts.Create(testPrefix, taskFixture("Math", "study", 10))

	tasks, err := ts.List(testPrefix, []Order{{Column: "type", Desc: true}, {Column: "score", Desc: true}})
	if err != nil {
		t.Fatalf("list tasks: %v", err)
	}
	want := []string{"Math", "Piano", "Laundry", "Dishes"}
	if len(tasks) != len(want) {
		t.Fatalf("expected %d tasks, got %d", len(want), len(tasks))
	}
	for i, name := range want {
		if tasks[i].Name != name {
			t.Errorf("tasks[%d].Name = %q, want %q", i, tasks[i].Name, name)
		}
	}
}

func TestTaskFractionalScore(t *testing.T) {
	db := setupNamespaceTestDB(t)
	ts := NewTaskStore(db)

	task, err := ts.Create(testPrefix, taskFixture("Stretch", "health", 2.5))
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	got, err := ts.GetByID(testPrefix, task.ID)
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	if got.Score != 2.5 {
		t.Errorf("score = %v, want 2.5", got.Score)
	}
}
