package tool

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/invopop/jsonschema"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nameOnlyTool struct{ name string }

func (t nameOnlyTool) Name() string                  { return t.name }
func (t nameOnlyTool) Description() string            { return "test" }
func (t nameOnlyTool) SideEffect() SideEffect         { return Pure }
func (t nameOnlyTool) InputSchema() *jsonschema.Schema { return nil }
func (t nameOnlyTool) Execute(ctx context.Context, raw json.RawMessage) Result {
	return Ok(nil)
}

func TestRegistry_RegisterAndGet(t *testing.T) {
	reg := NewRegistry(zerolog.Nop())
	reg.Register(nameOnlyTool{name: "a"})

	got, ok := reg.Get("a")
	require.True(t, ok)
	assert.Equal(t, "a", got.Name())

	_, ok = reg.Get("missing")
	assert.False(t, ok)
}

func TestRegistry_ListIsSortedByName(t *testing.T) {
	reg := NewRegistry(zerolog.Nop())
	reg.Register(nameOnlyTool{name: "zebra"})
	reg.Register(nameOnlyTool{name: "alpha"})
	reg.Register(nameOnlyTool{name: "mid"})

	list := reg.List()
	require.Len(t, list, 3)
	assert.Equal(t, []string{"alpha", "mid", "zebra"}, []string{list[0].Name(), list[1].Name(), list[2].Name()})
}

func TestRegistry_WithSubsetOnlyRestricts(t *testing.T) {
	reg := NewRegistry(zerolog.Nop())
	reg.Register(nameOnlyTool{name: "a"})
	reg.Register(nameOnlyTool{name: "b"})
	reg.Register(nameOnlyTool{name: "c"})

	view := reg.WithSubset(map[string]bool{"a": true, "c": true})
	list := view.List()
	require.Len(t, list, 2)
	names := map[string]bool{list[0].Name(): true, list[1].Name(): true}
	assert.True(t, names["a"])
	assert.True(t, names["c"])
	assert.False(t, names["b"])

	_, ok := view.Get("b")
	assert.False(t, ok)
}

func TestRegistry_WithSubsetNeverAddsUnknownNames(t *testing.T) {
	reg := NewRegistry(zerolog.Nop())
	reg.Register(nameOnlyTool{name: "a"})

	view := reg.WithSubset(map[string]bool{"a": true, "nonexistent": true})
	list := view.List()
	require.Len(t, list, 1)
	assert.Equal(t, "a", list[0].Name())
}

func TestRegistry_DescriptorsMirrorRegisteredTools(t *testing.T) {
	reg := NewRegistry(zerolog.Nop())
	reg.Register(nameOnlyTool{name: "a"})

	descs := reg.Descriptors()
	require.Len(t, descs, 1)
	assert.Equal(t, "a", descs[0].Name)
	assert.Equal(t, Pure, descs[0].SideEffect)
}
