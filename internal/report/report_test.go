package report

import (
	"encoding/json"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/statewire/internal/compiler"
	"github.com/roach88/statewire/internal/ir"
)

func doorModel(t *testing.T) *compiler.Model {
	t.Helper()

	lock := ir.NewConnection("lock", "Closed", "Locked", "Lock")
	lock.Guard = "hasKey"
	autoLock := ir.NewAutoConnection("autoLock", "Open", "Locked")
	autoLock.RunOnMainThread = true

	res := compiler.Build(ir.MachineSpec{
		Name:     "Door",
		Dispatch: ir.DispatchMode{Affinity: ir.SharedQueue, QueueID: 1},
		States:   []string{"Closed", "Open", "Locked"},
		Signals:  []string{"Push", "Pull", "Lock"},
		Connections: []ir.Connection{
			ir.NewConnection("open", "Closed", "Open", "Push"),
			ir.NewConnection("close", "Open", "Closed", "Pull"),
			lock,
			ir.NewConnection("slam", "*", "Closed", "Pull"),
			ir.NewConnection("logAll", "*", "*", "*"),
			ir.NewConnection("watchOpen", "Open", "*", "Push"),
			autoLock,
		},
		Callbacks: []ir.Callback{
			{Kind: ir.OnEnter, Name: "greetOpen", State: "Open"},
			{Kind: ir.OnExit, Name: "byeOpen", State: "Open", RunOnMainThread: true},
		},
		StatesDeclared:  true,
		SignalsDeclared: true,
	})
	require.True(t, res.OK(), "%v", res.Err())
	return res.Model
}

func newGoldie(t *testing.T) *goldie.Goldie {
	return goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
}

func TestDescribe_Golden(t *testing.T) {
	newGoldie(t).Assert(t, "describe_door", []byte(Describe(doorModel(t))))
}

func TestMermaid_Golden(t *testing.T) {
	g := newGoldie(t)
	m := doorModel(t)

	g.Assert(t, "mermaid_door", []byte(Mermaid(m, nil)))
	g.Assert(t, "mermaid_door_overlay", []byte(Mermaid(m, &Overlay{
		Visited: []string{"Closed", "Open"},
		Current: "Open",
	})))
}

func TestSanitizeMermaidID(t *testing.T) {
	assert.Equal(t, "s_Half_Open", sanitizeMermaidID("Half Open"))
	assert.Equal(t, "s_a_b", sanitizeMermaidID("a-b"))
	assert.Equal(t, "s_end", sanitizeMermaidID("end"))
}

func TestVisualizerJSON(t *testing.T) {
	m := doorModel(t)
	data, err := VisualizerJSON(m)
	require.NoError(t, err)

	var v struct {
		Machine     string `json:"machine"`
		Fingerprint string `json:"fingerprint"`
		Dispatch    struct {
			Mode  string `json:"mode"`
			Queue int    `json:"queue"`
		} `json:"dispatch"`
		States []struct {
			Name    string `json:"name"`
			OnEnter string `json:"on_enter"`
			OnExit  string `json:"on_exit"`
		} `json:"states"`
		Connections []struct {
			Name       string `json:"name"`
			Category   string `json:"category"`
			Guard      string `json:"guard"`
			MainThread bool   `json:"main_thread"`
		} `json:"connections"`
	}
	require.NoError(t, json.Unmarshal(data, &v))

	fp, err := m.Fingerprint()
	require.NoError(t, err)
	assert.Equal(t, "Door", v.Machine)
	assert.Equal(t, fp, v.Fingerprint)
	assert.Equal(t, "shared-queue", v.Dispatch.Mode)
	assert.Equal(t, 1, v.Dispatch.Queue)

	require.Len(t, v.States, 3)
	assert.Equal(t, "greetOpen", v.States[1].OnEnter)
	assert.Equal(t, "byeOpen", v.States[1].OnExit)

	categories := map[string]string{}
	for _, c := range v.Connections {
		categories[c.Name] = c.Category
	}
	assert.Equal(t, map[string]string{
		"open":      "LOCAL_TRANSITION_SPECIFIC",
		"close":     "LOCAL_TRANSITION_SPECIFIC",
		"lock":      "LOCAL_TRANSITION_SPECIFIC",
		"slam":      "GLOBAL_TRANSITION_SPECIFIC",
		"logAll":    "GLOBAL_SPY_ANY",
		"watchOpen": "LOCAL_SPY_SPECIFIC",
		"autoLock":  "AUTO",
	}, categories)
	assert.Equal(t, "hasKey", v.Connections[2].Guard)
	assert.Equal(t, "open", v.Connections[0].Guard, "guard defaults to the connection name")
	assert.True(t, v.Connections[6].MainThread)
}
