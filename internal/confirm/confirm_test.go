package confirm

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/amartel/anota/internal/action"
	"github.com/amartel/anota/internal/storage"
)

func openTestService(t *testing.T) (*Service, *storage.Store) {
	t.Helper()
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return NewService(store), store
}

var testBase = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func savePending(t *testing.T, store *storage.Store, userID string, createdAt time.Time, interp action.Interpretation) string {
	t.Helper()
	payload, err := json.Marshal(interp)
	if err != nil {
		t.Fatalf("marshaling interpretation: %v", err)
	}
	id := uuid.New().String()
	err = store.SaveInteraction(storage.Interaction{
		ID:                id,
		UserID:            userID,
		UserInput:         "criar tarefa",
		Interpretation:    string(payload),
		NeedsConfirmation: true,
		ConfirmationState: storage.StateUndetermined,
		CreatedAt:         createdAt,
	})
	if err != nil {
		t.Fatalf("saving interaction: %v", err)
	}
	return id
}

func pendingTask(title string) action.Interpretation {
	return action.Interpretation{
		NeedsConfirmation:   true,
		Type:                action.TypeTask,
		Task:                &action.TaskPayload{Title: title, Priority: action.PriorityMedium},
		ConfirmationMessage: "Confirma?",
	}
}

func TestConfirmCreatesEntity(t *testing.T) {
	svc, store := openTestService(t)
	id := savePending(t, store, "user-1", testBase, pendingTask("Comprar pão"))

	ent, err := svc.Confirm(id, "user-1")
	if err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if ent.Type != action.TypeTask || ent.ID == "" {
		t.Errorf("entity = %+v", ent)
	}

	rec, err := store.GetInteraction(id)
	if err != nil {
		t.Fatalf("GetInteraction: %v", err)
	}
	if rec.ConfirmationState != storage.StateConfirmed {
		t.Errorf("state = %q, want confirmed", rec.ConfirmationState)
	}
}

func TestConfirmErrorContract(t *testing.T) {
	svc, store := openTestService(t)
	id := savePending(t, store, "user-1", testBase, pendingTask("Comprar pão"))

	if _, err := svc.Confirm(uuid.New().String(), "user-1"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("unknown id error = %v, want ErrNotFound", err)
	}
	if _, err := svc.Confirm(id, "user-2"); !errors.Is(err, ErrForbidden) {
		t.Errorf("foreign user error = %v, want ErrForbidden", err)
	}

	if _, err := svc.Confirm(id, "user-1"); err != nil {
		t.Fatalf("first confirm: %v", err)
	}
	if _, err := svc.Confirm(id, "user-1"); !errors.Is(err, storage.ErrInvalidState) {
		t.Errorf("second confirm error = %v, want ErrInvalidState", err)
	}
}

func TestRejectLifecycle(t *testing.T) {
	svc, store := openTestService(t)
	id := savePending(t, store, "user-1", testBase, pendingTask("Comprar pão"))

	if err := svc.Reject(id, "user-2"); !errors.Is(err, ErrForbidden) {
		t.Errorf("foreign reject error = %v, want ErrForbidden", err)
	}
	if err := svc.Reject(id, "user-1"); err != nil {
		t.Fatalf("Reject: %v", err)
	}
	if err := svc.Reject(id, "user-1"); !errors.Is(err, storage.ErrInvalidState) {
		t.Errorf("second reject error = %v, want ErrInvalidState", err)
	}
	// A rejected interaction cannot be confirmed afterwards.
	if _, err := svc.Confirm(id, "user-1"); !errors.Is(err, storage.ErrInvalidState) {
		t.Errorf("confirm after reject error = %v, want ErrInvalidState", err)
	}
}

// TestConcurrentConfirms races two confirms for the same interaction
// against the real store. Exactly one wins.
func TestConcurrentConfirms(t *testing.T) {
	svc, store := openTestService(t)
	id := savePending(t, store, "user-1", testBase, pendingTask("Comprar pão"))

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = svc.Confirm(id, "user-1")
		}()
	}
	wg.Wait()

	var wins, losses int
	for _, err := range errs {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, storage.ErrInvalidState):
			losses++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if wins != 1 || losses != 1 {
		t.Errorf("wins = %d, losses = %d, want exactly one of each", wins, losses)
	}
}

func TestConfirmCorruptPayload(t *testing.T) {
	svc, store := openTestService(t)
	id := uuid.New().String()
	err := store.SaveInteraction(storage.Interaction{
		ID:                id,
		UserID:            "user-1",
		UserInput:         "algo",
		Interpretation:    "{not json",
		NeedsConfirmation: true,
		ConfirmationState: storage.StateUndetermined,
		CreatedAt:         time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("saving interaction: %v", err)
	}

	if _, err := svc.Confirm(id, "user-1"); err == nil {
		t.Error("confirming corrupt payload succeeded")
	}
	// The interaction is still pending and can be rejected.
	if err := svc.Reject(id, "user-1"); err != nil {
		t.Errorf("rejecting corrupt interaction: %v", err)
	}
}

func TestListPending(t *testing.T) {
	svc, store := openTestService(t)
	first := savePending(t, store, "user-1", testBase, pendingTask("Primeira"))
	second := savePending(t, store, "user-1", testBase.Add(time.Second), pendingTask("Segunda"))
	savePending(t, store, "user-2", testBase, pendingTask("De outro usuário"))

	// Corrupt record stays listed with a generic unknown.
	corruptID := uuid.New().String()
	err := store.SaveInteraction(storage.Interaction{
		ID:                corruptID,
		UserID:            "user-1",
		UserInput:         "algo",
		Interpretation:    "{not json",
		NeedsConfirmation: true,
		ConfirmationState: storage.StateUndetermined,
		CreatedAt:         testBase.Add(2 * time.Second),
	})
	if err != nil {
		t.Fatalf("saving interaction: %v", err)
	}

	pending, err := svc.ListPending("user-1")
	if err != nil {
		t.Fatalf("ListPending: %v", err)
	}
	if len(pending) != 3 {
		t.Fatalf("len = %d, want 3", len(pending))
	}
	if pending[0].ID != first || pending[1].ID != second {
		t.Errorf("order = %s, %s", pending[0].ID, pending[1].ID)
	}
	last := pending[2]
	if last.ID != corruptID || last.Interpretation.Type != action.TypeUnknown {
		t.Errorf("corrupt entry = %+v, want generic unknown", last)
	}
	if last.Interpretation.ConfirmationMessage != CorruptMessage {
		t.Errorf("message = %q", last.Interpretation.ConfirmationMessage)
	}

	// Settled interactions drop out of the list.
	if _, err := svc.Confirm(first, "user-1"); err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	pending, err = svc.ListPending("user-1")
	if err != nil {
		t.Fatalf("ListPending: %v", err)
	}
	if len(pending) != 2 {
		t.Errorf("len after confirm = %d, want 2", len(pending))
	}
}
