package eventbus_test

import (
	"context"
	"errors"
	"testing"

	"github.com/m-mizutani/gt"

	"github.com/framekit/memoria/pkg/eventbus"
)

func TestPublishDeliversToMatchingSubscribers(t *testing.T) {
	ctx := context.Background()
	bus := eventbus.NewInProc()

	var exact, wildcard, all, other []string
	bus.Subscribe("session.message.sent", func(ctx context.Context, ev *eventbus.Event) error {
		exact = append(exact, ev.Type)
		return nil
	})
	bus.Subscribe("session.*", func(ctx context.Context, ev *eventbus.Event) error {
		wildcard = append(wildcard, ev.Type)
		return nil
	})
	bus.Subscribe("*", func(ctx context.Context, ev *eventbus.Event) error {
		all = append(all, ev.Type)
		return nil
	})
	bus.Subscribe("memory.*", func(ctx context.Context, ev *eventbus.Event) error {
		other = append(other, ev.Type)
		return nil
	})

	gt.NoError(t, bus.Publish(ctx, "session.message.sent", "chat", nil))
	gt.NoError(t, bus.Publish(ctx, "session.ended", "chat", nil))

	gt.A(t, exact).Length(1)
	gt.A(t, wildcard).Length(2)
	gt.A(t, all).Length(2)
	gt.A(t, other).Length(0)
}

func TestPublishPreservesOrder(t *testing.T) {
	ctx := context.Background()
	bus := eventbus.NewInProc()

	var seen []string
	bus.Subscribe("*", func(ctx context.Context, ev *eventbus.Event) error {
		seen = append(seen, ev.Data["n"].(string))
		return nil
	})

	for _, n := range []string{"1", "2", "3"} {
		gt.NoError(t, bus.Publish(ctx, "tick", "test", map[string]any{"n": n}))
	}

	gt.Equal(t, seen, []string{"1", "2", "3"})
}

func TestHandlerErrorDoesNotStopDelivery(t *testing.T) {
	ctx := context.Background()
	bus := eventbus.NewInProc()

	var delivered int
	bus.Subscribe("*", func(ctx context.Context, ev *eventbus.Event) error {
		return errors.New("handler broke")
	})
	bus.Subscribe("*", func(ctx context.Context, ev *eventbus.Event) error {
		delivered++
		return nil
	})

	gt.NoError(t, bus.Publish(ctx, "tick", "test", nil))
	gt.Equal(t, delivered, 1)
}

func TestEventCarriesMetadata(t *testing.T) {
	ctx := context.Background()
	bus := eventbus.NewInProc()

	var got *eventbus.Event
	bus.Subscribe("tick", func(ctx context.Context, ev *eventbus.Event) error {
		got = ev
		return nil
	})

	gt.NoError(t, bus.Publish(ctx, "tick", "scheduler", map[string]any{"k": "v"}))

	gt.V(t, got).NotNil()
	gt.NotEqual(t, got.ID, "")
	gt.Equal(t, got.Source, "scheduler")
	gt.True(t, !got.Timestamp.IsZero())
}
