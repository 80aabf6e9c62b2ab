package provider

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tunefetch/pkg/logger"
)

func TestMultiObserver_分发给所有观测者(t *testing.T) {
	a, b := &recorder{}, &recorder{}
	var count int
	m := MultiObserver{a, nil, b, ObserverFunc(func(Event) { count++ })}

	m.OnEvent(Event{Type: EventAttemptStarted})
	m.OnEvent(Event{Type: EventAttemptFailed})

	assert.Len(t, a.events, 2)
	assert.Len(t, b.events, 2)
	assert.Equal(t, 2, count)

	NopObserver.OnEvent(Event{})
}

func TestLogObserver_输出结构化字段(t *testing.T) {
	var buf bytes.Buffer
	logger.Init(logger.Config{Level: "debug", Format: "json"})
	logger.SetOutput(&buf)
	defer logger.Init(logger.Config{Level: "info", Format: "text"})

	o := NewLogObserver()
	o.OnEvent(Event{
		Type:        EventCircuitOpened,
		ProviderKey: "spotify:primary:h",
		ChainID:     "c1",
		StatusCode:  503,
		Err:         errors.New("boom"),
	})

	var fields map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &fields))
	assert.Equal(t, "circuit_opened", fields["event"])
	assert.Equal(t, "spotify:primary:h", fields["provider"])
	assert.Equal(t, "c1", fields["chain_id"])
	assert.Equal(t, "warning", fields["level"])
	assert.Equal(t, "boom", fields["error"])
}
