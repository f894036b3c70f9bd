package graph

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
)

type counterState struct {
	count int
	log   []string
}

func appendStep(name string) NodeFunc[*counterState] {
	return func(ctx context.Context, s *counterState) error {
		s.log = append(s.log, name)
		return nil
	}
}

func TestAddNodeEmptyName(t *testing.T) {
	g := NewGraph[*counterState]()

	defer func() {
		if r := recover(); r != "node name cannot be empty" {
			t.Errorf("panic = %v", r)
		}
	}()
	g.AddNode(&Node[*counterState]{Type: NodeTypeTask})
}

func TestAddNodeDuplicate(t *testing.T) {
	g := NewGraph[*counterState]()
	g.AddNode(&Node[*counterState]{Name: "dup", Type: NodeTypeTask})

	defer func() {
		if r := recover(); r != "node dup already exists" {
			t.Errorf("panic = %v", r)
		}
	}()
	g.AddNode(&Node[*counterState]{Name: "dup", Type: NodeTypeTask})
}

func TestConditionNodeRequiresBranches(t *testing.T) {
	g := NewGraph[*counterState]()
	defer func() {
		if r := recover(); r == nil {
			t.Error("expected panic for condition without branches")
		}
	}()
	g.AddNode(&Node[*counterState]{
		Name:      "cond",
		Type:      NodeTypeCondition,
		Condition: func(context.Context, *counterState) (string, error) { return "", nil },
	})
}

func TestAutoSetStartNode(t *testing.T) {
	g := NewGraph[*counterState]()
	g.AddNode(&Node[*counterState]{Name: "begin", Type: NodeTypeStart})
	if g.startNode != "begin" {
		t.Errorf("startNode = %q", g.startNode)
	}
}

func TestExecuteLinear(t *testing.T) {
	g := NewBuilder[*counterState]().
		AddNode("start", NodeTypeStart, appendStep("start")).
		AddNode("work", NodeTypeTask, appendStep("work")).
		AddNode("end", NodeTypeEnd, appendStep("end")).
		AddEdge("start", "work").
		AddEdge("work", "end").
		Build()

	state := &counterState{}
	path, err := g.Execute(context.Background(), state)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	want := []string{"start", "work", "end"}
	if !reflect.DeepEqual(path, want) || !reflect.DeepEqual(state.log, want) {
		t.Errorf("path = %v, log = %v", path, state.log)
	}
}

func TestExecuteLoopWithCondition(t *testing.T) {
	var transitions []string
	g := NewBuilder[*counterState]().
		AddNode("start", NodeTypeStart, nil).
		AddConditionNode("step",
			func(ctx context.Context, s *counterState) error { s.count++; return nil },
			func(ctx context.Context, s *counterState) (string, error) {
				if s.count < 3 {
					return "again", nil
				}
				return "done", nil
			},
			map[string]string{"again": "step", "done": "end"}).
		AddNode("end", NodeTypeEnd, nil).
		AddEdge("start", "step").
		OnTransition(func(ctx context.Context, from, to string) {
			transitions = append(transitions, from+">"+to)
		}).
		Build()

	state := &counterState{}
	path, err := g.Execute(context.Background(), state)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if state.count != 3 {
		t.Errorf("count = %d, want 3", state.count)
	}
	if want := []string{"start", "step", "step", "step", "end"}; !reflect.DeepEqual(path, want) {
		t.Errorf("path = %v, want %v", path, want)
	}
	if len(transitions) != 4 || transitions[3] != "step>end" {
		t.Errorf("transitions = %v", transitions)
	}
}

func TestExecuteNoStartNode(t *testing.T) {
	g := NewGraph[*counterState]()
	if _, err := g.Execute(context.Background(), &counterState{}); err == nil {
		t.Error("expected error without a start node")
	}
}

func TestExecuteUnknownBranch(t *testing.T) {
	g := NewBuilder[*counterState]().
		AddConditionNode("start", nil,
			func(context.Context, *counterState) (string, error) { return "missing", nil },
			map[string]string{"ok": "start"}).
		SetStart("start").
		Build()

	_, err := g.Execute(context.Background(), &counterState{})
	if err == nil || !strings.Contains(err.Error(), `no branch for "missing"`) {
		t.Errorf("err = %v", err)
	}
}

func TestExecuteInfiniteLoop(t *testing.T) {
	g := NewBuilder[*counterState]().
		AddNode("a", NodeTypeStart, nil).
		AddNode("b", NodeTypeTask, nil).
		AddEdge("a", "b").
		AddEdge("b", "a").
		SetMaxVisits(3).
		Build()

	path, err := g.Execute(context.Background(), &counterState{})
	if err == nil || !strings.Contains(err.Error(), "infinite loop detected at node a") {
		t.Fatalf("err = %v", err)
	}
	if len(path) != 7 {
		t.Errorf("path length = %d, want 7", len(path))
	}
}

func TestExecuteNodeError(t *testing.T) {
	boom := errors.New("boom")
	g := NewBuilder[*counterState]().
		AddNode("start", NodeTypeStart, func(context.Context, *counterState) error { return boom }).
		Build()

	path, err := g.Execute(context.Background(), &counterState{})
	if !errors.Is(err, boom) {
		t.Errorf("err = %v, want wrapped boom", err)
	}
	if len(path) != 1 || path[0] != "start" {
		t.Errorf("path = %v", path)
	}
}

func TestExecuteStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	g := NewBuilder[*counterState]().
		AddNode("start", NodeTypeStart, func(context.Context, *counterState) error { cancel(); return nil }).
		AddNode("end", NodeTypeEnd, nil).
		AddEdge("start", "end").
		Build()

	path, err := g.Execute(ctx, &counterState{})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if len(path) != 1 {
		t.Errorf("path = %v", path)
	}
}
