package startup

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStartup(maxAttempts int) *Startup {
	s := New(ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {}), maxAttempts)
	s.unit = time.Millisecond
	return s
}

func TestStartup_StartsInDependencyOrderAndStopsInReverse(t *testing.T) {
	s := newTestStartup(1)
	var events []string
	record := func(name string) Func {
		return Func{
			Name:    name,
			OnStart: func(context.Context) error { events = append(events, "start:"+name); return nil },
			OnStop:  func(context.Context) error { events = append(events, "stop:"+name); return nil },
		}
	}

	api := record("api")
	api.Requires = []string{"db", "redis"}
	s.AddDependency(api)
	s.AddDependency(record("db"))
	s.AddDependency(record("redis"))

	require.NoError(t, s.Start(context.Background()))
	assert.Equal(t, []string{"start:db", "start:redis", "start:api"}, events)
	assert.Equal(t, StatusStarted, s.Status("api"))

	events = nil
	require.NoError(t, s.Stop(context.Background()))
	assert.Equal(t, []string{"stop:api", "stop:redis", "stop:db"}, events)
	assert.Equal(t, StatusStopped, s.Status("db"))
}

func TestStartup_RetriesUntilSuccess(t *testing.T) {
	s := newTestStartup(3)
	calls := 0
	s.AddDependency(Func{Name: "flaky", OnStart: func(context.Context) error {
		calls++
		if calls < 2 {
			return errors.New("not ready")
		}
		return nil
	}})

	require.NoError(t, s.Start(context.Background()))
	assert.Equal(t, 2, calls)
}

func TestStartup_GivesUp(t *testing.T) {
	s := newTestStartup(2)
	s.AddDependency(Func{Name: "down", OnStart: func(context.Context) error { return errors.New("refused") }})

	err := s.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 2 attempts")
	assert.Equal(t, StatusFailed, s.Status("down"))
}

func TestStartup_UnknownAndCyclicDependencies(t *testing.T) {
	s := newTestStartup(1)
	s.AddDependency(Func{Name: "a", Requires: []string{"missing"}})
	assert.ErrorContains(t, s.Start(context.Background()), "unknown startup dependency")

	s = newTestStartup(1)
	s.AddDependency(Func{Name: "a", Requires: []string{"b"}})
	s.AddDependency(Func{Name: "b", Requires: []string{"a"}})
	assert.ErrorContains(t, s.Start(context.Background()), "cycle")
}
