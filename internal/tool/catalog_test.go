package tool

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultCatalog(t *testing.T) {
	c := Default()

	assert.Equal(t, []string{FetchSharePointData, PerformSharePointAction, ManageSharePointItem}, c.Names())

	for _, d := range c.All() {
		var schema map[string]any
		require.NoError(t, json.Unmarshal(d.Parameters, &schema), d.Name)
		assert.Equal(t, "object", schema["type"])
		assert.Equal(t, false, schema["additionalProperties"])
	}

	action, ok := c.Lookup(PerformSharePointAction)
	require.True(t, ok)
	assert.Equal(t, CategoryAction, action.Category)
	var schema struct {
		Required   []string                   `json:"required"`
		Properties map[string]json.RawMessage `json:"properties"`
	}
	require.NoError(t, json.Unmarshal(action.Parameters, &schema))
	assert.Len(t, schema.Properties, 14)
	assert.Len(t, schema.Required, 13)
	assert.NotContains(t, schema.Required, "body_event")
}

func TestNewCatalogRejectsInvalid(t *testing.T) {
	_, err := NewCatalog(Definition{Name: "", Category: CategoryQuery})
	assert.Error(t, err)

	_, err = NewCatalog(
		Definition{Name: "a", Category: CategoryQuery},
		Definition{Name: "a", Category: CategoryAction},
	)
	assert.Error(t, err)

	_, err = NewCatalog(Definition{Name: "b"})
	assert.Error(t, err)
}

func TestLookupUnknown(t *testing.T) {
	_, ok := Default().Lookup("sendFax")
	assert.False(t, ok)
}

func TestDefinitionsPreserveOrder(t *testing.T) {
	defs := Default().Definitions()
	require.Len(t, defs, 3)
	assert.Equal(t, FetchSharePointData, defs[0].Name)
	assert.Equal(t, ManageSharePointItem, defs[2].Name)
	assert.NotEmpty(t, defs[1].Description)
}

func TestWithOverrides(t *testing.T) {
	base := Default()
	custom := json.RawMessage(`{"type":"object","properties":{"filter":{"type":"string"}}}`)

	c := base.WithOverrides(map[Category]Override{
		CategoryQuery:  {Description: "Look up client records.", Schema: custom},
		CategoryManage: {Schema: json.RawMessage(`[1,2]`)},
	})

	fetch, _ := c.Lookup(FetchSharePointData)
	assert.Equal(t, "Look up client records.", fetch.Description)
	assert.JSONEq(t, string(custom), string(fetch.Parameters))

	manage, _ := c.Lookup(ManageSharePointItem)
	origManage, _ := base.Lookup(ManageSharePointItem)
	assert.Equal(t, origManage, manage)

	origFetch, _ := base.Lookup(FetchSharePointData)
	assert.NotEqual(t, "Look up client records.", origFetch.Description)
	assert.Equal(t, base.Names(), c.Names())
}

func TestParseArguments(t *testing.T) {
	p := ParseArguments(json.RawMessage(`{"flow_type":1,"sharepoint_id":12345678901234567}`))
	require.True(t, p.OK())
	assert.Equal(t, json.Number("1"), p.Args["flow_type"])
	out, err := json.Marshal(p.Args)
	require.NoError(t, err)
	assert.JSONEq(t, `{"flow_type":1,"sharepoint_id":12345678901234567}`, string(out))

	for _, raw := range []string{"", "  ", "null"} {
		p := ParseArguments(json.RawMessage(raw))
		require.True(t, p.OK(), raw)
		assert.Empty(t, p.Args)
	}

	for _, raw := range []string{`{"query":`, `[1]`, `"text"`, `{} {}`} {
		p := ParseArguments(json.RawMessage(raw))
		assert.False(t, p.OK(), raw)
		assert.Nil(t, p.Args)
	}
}
