package cartsession

import (
	"testing"
)

func TestMutationStateMachine(t *testing.T) {
	var m Mutation
	if m.State().Status != StatusIdle {
		t.Fatalf("expected idle, got %s", m.State().Status)
	}

	release := make(chan struct{})
	started := make(chan struct{})
	done := make(chan Result)
	go func() {
		done <- m.Run(func() Result {
			close(started)
			<-release
			return success()
		})
	}()
	<-started

	if m.State().Status != StatusPending {
		t.Fatalf("expected pending, got %s", m.State().Status)
	}
	called := false
	res := m.Run(func() Result {
		called = true
		return success()
	})
	if called || res.Status != StatusPending {
		t.Fatalf("expected second run to be refused, got %+v called=%v", res, called)
	}

	close(release)
	if res := <-done; res.Status != StatusSuccess {
		t.Fatalf("expected success, got %+v", res)
	}
	if m.State().Status != StatusSuccess {
		t.Fatalf("expected success state, got %s", m.State().Status)
	}

	res = m.Run(func() Result { return failure("Error adding item to cart", nil) })
	if res.Status != StatusError || m.State().Message != "Error adding item to cart" {
		t.Fatalf("expected error state, got %+v", m.State())
	}
}
