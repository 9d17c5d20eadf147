package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	gokeyring "github.com/zalando/go-keyring"
)

func TestLoginStoresTokenAndPublishes(t *testing.T) {
	gokeyring.MockInit()
	ctx := context.Background()

	m := NewManager(nil)
	var got []Event
	m.Broker().Listen(func(_ context.Context, ev Event) { got = append(got, ev) })

	if _, err := m.Token(); !errors.Is(err, ErrNotLoggedIn) {
		t.Fatalf("expected ErrNotLoggedIn before login, got %v", err)
	}

	if err := m.Login(ctx, "tok-1"); err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	token, err := m.Token()
	if err != nil {
		t.Fatalf("Token failed: %v", err)
	}
	if token != "tok-1" {
		t.Errorf("Token() = %q, want %q", token, "tok-1")
	}
	if !m.LoggedIn() {
		t.Error("expected LoggedIn after Login")
	}

	if err := m.Logout(ctx); err != nil {
		t.Fatalf("Logout failed: %v", err)
	}
	if m.LoggedIn() {
		t.Error("expected logged out after Logout")
	}

	m.RequestRefresh(ctx)

	want := []Event{LoggedIn, LoggedOut, RefreshRequested}
	if len(got) != len(want) {
		t.Fatalf("got events %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event %d = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestLoginRejectsEmptyToken(t *testing.T) {
	gokeyring.MockInit()
	m := NewManager(nil)
	if err := m.Login(context.Background(), ""); err == nil {
		t.Fatal("expected error for empty token")
	}
}

func TestLogoutWithoutTokenSucceeds(t *testing.T) {
	gokeyring.MockInit()
	m := NewManager(nil)
	if err := m.Logout(context.Background()); err != nil {
		t.Fatalf("Logout without token failed: %v", err)
	}
}

func TestKeyringUnavailable(t *testing.T) {
	gokeyring.MockInitWithError(errors.New("dbus missing"))
	defer gokeyring.MockInit()

	m := NewManager(nil)
	if _, err := m.Token(); !errors.Is(err, ErrKeyringUnavailable) {
		t.Fatalf("expected ErrKeyringUnavailable, got %v", err)
	}
	if KeyringAvailable("habitpilot-test") {
		t.Error("expected keyring to be reported unavailable")
	}
}

func TestWithKeyringUserIsolatesTokens(t *testing.T) {
	gokeyring.MockInit()
	ctx := context.Background()

	a := NewManager(nil)
	b := NewManager(nil, WithKeyringUser("work"))
	if err := a.Login(ctx, "personal"); err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if b.LoggedIn() {
		t.Fatal("second profile should not see the first profile's token")
	}
}

func TestSubscribeDeliversInOrder(t *testing.T) {
	b := NewBroker()
	ch, cancel := b.Subscribe()
	defer cancel()

	ctx := context.Background()
	events := []Event{LoggedIn, RefreshRequested, RefreshRequested, LoggedOut}
	for _, ev := range events {
		b.Publish(ctx, ev)
	}

	for i, want := range events {
		select {
		case got := <-ch:
			if got != want {
				t.Fatalf("event %d = %s, want %s", i, got, want)
			}
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for event %d", i)
		}
	}
}

func TestPublishDoesNotBlockOnIdleSubscriber(t *testing.T) {
	b := NewBroker()
	_, cancel := b.Subscribe()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			b.Publish(context.Background(), RefreshRequested)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a subscriber that never reads")
	}
	cancel()
}

func TestCancelClosesChannel(t *testing.T) {
	b := NewBroker()
	ch, cancel := b.Subscribe()
	cancel()
	cancel()

	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("expected closed channel")
		}
	case <-time.After(time.Second):
		t.Fatal("channel not closed after cancel")
	}

	b.Publish(context.Background(), LoggedIn)
}

func TestListenersRunConcurrentlySafe(t *testing.T) {
	b := NewBroker()
	var mu sync.Mutex
	count := 0
	b.Listen(func(context.Context, Event) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b.Publish(context.Background(), RefreshRequested)
		}()
	}
	wg.Wait()

	if count != 20 {
		t.Fatalf("listener ran %d times, want 20", count)
	}
}

func TestEventString(t *testing.T) {
	if LoggedIn.String() != "logged_in" || Event(99).String() != "unknown" {
		t.Fatal("unexpected event names")
	}
}
