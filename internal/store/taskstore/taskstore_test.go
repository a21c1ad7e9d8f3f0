package taskstore

import (
	"fmt"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/idilsaglam/tasks/internal/model"
)

func pending(id, title string) model.Task {
	return model.Task{ID: id, Title: title, Status: model.StatusPending}
}

func completed(id, title string) model.Task {
	return model.Task{ID: id, Title: title, Status: model.StatusCompleted}
}

func ids(tasks []model.Task) []string {
	out := make([]string, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, t.ID)
	}
	return out
}

func TestReplaceAll(t *testing.T) {
	s := New()
	s.ApplyCreated(pending("old", "old"))

	s.ReplaceAll([]model.Task{pending("1", "a"), pending("2", "b"), completed("1", "a2")})

	assert.Equal(t, []string{"1", "2"}, ids(s.Tasks()))
	got, ok := s.Get("1")
	require.True(t, ok)
	assert.Equal(t, "a2", got.Title)
}

func TestApplyCreated_DuplicateIsNoop(t *testing.T) {
	once := New()
	once.ApplyCreated(pending("42", "Buy milk"))

	twice := New()
	assert.True(t, twice.ApplyCreated(pending("42", "Buy milk")))
	assert.False(t, twice.ApplyCreated(pending("42", "Buy milk")))

	assert.Equal(t, once.Tasks(), twice.Tasks())
}

func TestApplyUpdated_MissingIsNoop(t *testing.T) {
	s := New()
	s.ApplyCreated(pending("1", "a"))

	assert.False(t, s.ApplyUpdated(pending("2", "b")))
	assert.Equal(t, []string{"1"}, ids(s.Tasks()))

	assert.True(t, s.ApplyUpdated(pending("1", "a2")))
	got, _ := s.Get("1")
	assert.Equal(t, "a2", got.Title)
}

func TestApplyCompleted_ReplacesStatus(t *testing.T) {
	s := New()
	s.ApplyCreated(pending("1", "a"))
	s.ApplyCompleted(completed("1", "a"))

	got, _ := s.Get("1")
	assert.True(t, got.Done())
	assert.Equal(t, Counts{Pending: 0, Completed: 1}, s.Counts())
}

func TestApplyDeleted(t *testing.T) {
	s := New()
	s.ReplaceAll([]model.Task{pending("1", "a"), pending("2", "b"), pending("3", "c")})

	assert.True(t, s.ApplyDeleted("2"))
	assert.False(t, s.ApplyDeleted("2"))
	assert.False(t, s.ApplyDeleted("nope"))
	assert.Equal(t, []string{"1", "3"}, ids(s.Tasks()))

	// index must follow the shifted entries
	assert.True(t, s.ApplyUpdated(pending("3", "c2")))
	got, _ := s.Get("3")
	assert.Equal(t, "c2", got.Title)
}

func TestDeleteThenStaleUpdate_NoResurrection(t *testing.T) {
	s := New()
	s.ApplyCreated(pending("42", "Buy milk"))
	s.ApplyDeleted("42")
	before := s.Tasks()

	s.ApplyUpdated(pending("42", "Buy milk!"))

	assert.Equal(t, before, s.Tasks())
	_, ok := s.Get("42")
	assert.False(t, ok)
}

func TestDeleteThenLateCreate_NoResurrection(t *testing.T) {
	s := New()
	s.ApplyDeleted("42")
	assert.False(t, s.ApplyCreated(pending("42", "Buy milk")))
	assert.Zero(t, s.Len())

	// a full fetch is authoritative again
	s.ReplaceAll([]model.Task{pending("42", "Buy milk")})
	assert.Equal(t, 1, s.Len())
}

func TestReplaceSince_DeleteDuringFetchWins(t *testing.T) {
	s := New()
	s.ReplaceAll([]model.Task{pending("42", "Buy milk"), pending("7", "Walk dog")})

	mark := s.Mark()
	s.ApplyDeleted("42") // pushed while the list request is in flight
	s.ReplaceSince(mark, []model.Task{pending("42", "Buy milk"), pending("7", "Walk dog")})

	assert.Equal(t, []string{"7"}, ids(s.Tasks()))
	// the tombstone survives, so a late create echo is still ignored
	assert.False(t, s.ApplyCreated(pending("42", "Buy milk")))
}

func TestReplaceSince_KeepsChangesAfterMark(t *testing.T) {
	s := New()
	s.ReplaceAll([]model.Task{pending("1", "a")})
	s.ApplyDeleted("old")

	mark := s.Mark()
	s.ApplyCompleted(completed("1", "a"))
	s.ApplyCreated(pending("2", "b"))
	s.ApplyCreated(pending("3", "c"))
	// the fetched list predates all three changes
	s.ReplaceSince(mark, []model.Task{pending("1", "a"), pending("old", "x")})

	assert.Equal(t, []string{"1", "old", "2", "3"}, ids(s.Tasks()))
	got, _ := s.Get("1")
	assert.True(t, got.Done())
}

func TestReplaceSince_ListAlreadyHasChange(t *testing.T) {
	s := New()
	mark := s.Mark()
	s.ApplyCreated(pending("1", "a"))
	s.ReplaceSince(mark, []model.Task{pending("1", "a"), pending("2", "b")})

	assert.Equal(t, []string{"1", "2"}, ids(s.Tasks()))
	assert.Equal(t, Counts{Pending: 2}, s.Counts())
}

func TestCreateEchoBeforeResponse_SingleEntry(t *testing.T) {
	s := New()
	// live echo wins the race
	s.ApplyCreated(pending("42", "Buy milk"))
	// then the API success response lands
	s.ApplyCreated(pending("42", "Buy milk"))

	require.Equal(t, 1, s.Len())
	assert.Equal(t, []string{"42"}, ids(s.Tasks()))
}

type event struct {
	kind string
	task model.Task
}

func (e event) apply(s *Store) {
	switch e.kind {
	case "created":
		s.ApplyCreated(e.task)
	case "updated":
		s.ApplyUpdated(e.task)
	case "completed":
		s.ApplyCompleted(e.task)
	case "deleted":
		s.ApplyDeleted(e.task.ID)
	}
}

func permutations(events []event) [][]event {
	var out [][]event
	var heap func(k int, a []event)
	heap = func(k int, a []event) {
		if k == 1 {
			cp := make([]event, len(a))
			copy(cp, a)
			out = append(out, cp)
			return
		}
		heap(k-1, a)
		for i := 0; i < k-1; i++ {
			if k%2 == 0 {
				a[i], a[k-1] = a[k-1], a[i]
			} else {
				a[0], a[k-1] = a[k-1], a[0]
			}
			heap(k-1, a)
		}
	}
	a := make([]event, len(events))
	copy(a, events)
	heap(len(a), a)
	return out
}

func TestAnyOrder_OneEntryPerSurvivingID(t *testing.T) {
	events := []event{
		{"created", pending("a", "A")},
		{"created", pending("b", "B")},
		{"deleted", pending("a", "")},
		{"updated", pending("b", "B2")},
		{"completed", completed("c", "C")},
		{"created", pending("c", "C")},
		{"created", pending("a", "A")},
	}

	for i, order := range permutations(events) {
		s := New()
		for _, e := range order {
			e.apply(s)
		}
		got := ids(s.Tasks())
		sort.Strings(got)
		require.Equal(t, []string{"b", "c"}, got, "permutation %d: %v", i, order)

		c := s.Counts()
		require.Equal(t, s.Len(), c.Total(), fmt.Sprintf("permutation %d", i))
	}
}

func TestCountsSumToTotal(t *testing.T) {
	s := New()
	assert.Equal(t, Counts{}, s.Counts())

	s.ReplaceAll([]model.Task{pending("1", "a"), completed("2", "b"), pending("3", "c")})
	c := s.Counts()
	assert.Equal(t, Counts{Pending: 2, Completed: 1}, c)
	assert.Equal(t, s.Len(), c.Total())
}

func TestSubscribe(t *testing.T) {
	s := New()
	var order []string
	unsubA := s.Subscribe(func() { order = append(order, "a") })
	s.Subscribe(func() { order = append(order, "b") })

	s.ApplyCreated(pending("1", "x"))
	assert.Equal(t, []string{"a", "b"}, order)

	// no-ops do not notify
	order = nil
	s.ApplyCreated(pending("1", "x"))
	s.ApplyUpdated(pending("missing", "x"))
	assert.Empty(t, order)

	unsubA()
	s.ApplyDeleted("1")
	assert.Equal(t, []string{"b"}, order)
}
