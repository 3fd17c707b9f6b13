package api

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestServiceRegistration_Validate(t *testing.T) {
	valid := ServiceRegistration{
		Name:     "echo",
		Kind:     KindLocalProcess,
		Location: "http://127.0.0.1:9000",
		Protocol: ProtocolHTTP,
	}
	assert.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(r *ServiceRegistration)
	}{
		{"empty name", func(r *ServiceRegistration) { r.Name = "" }},
		{"empty location", func(r *ServiceRegistration) { r.Location = "" }},
		{"bad kind", func(r *ServiceRegistration) { r.Kind = "vm" }},
		{"bad protocol", func(r *ServiceRegistration) { r.Protocol = "grpc" }},
		{"bad priority", func(r *ServiceRegistration) { r.Priority = "urgent" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := valid
			tt.mutate(&r)
			assert.Error(t, r.Validate())
		})
	}
}

func TestServiceRegistration_SameSpecIgnoresTimestampsAndTagOrder(t *testing.T) {
	a := ServiceRegistration{
		Name:     "echo",
		Kind:     KindLocalProcess,
		Location: "http://127.0.0.1:9000",
		Protocol: ProtocolHTTP,
		Tags:     []string{"b", "a"},
		Config:   map[string]interface{}{"k": "v"},
		Source:   "manifest",
	}
	b := a.Clone()
	b.Tags = []string{"a", "b", "a"}
	b.Priority = PriorityMedium
	b.Source = "static"

	assert.True(t, a.SameSpec(b))

	b.Location = "http://127.0.0.1:9001"
	assert.False(t, a.SameSpec(b))

	c := a.Clone()
	c.Config["k"] = "other"
	assert.False(t, a.SameSpec(c))
	assert.Equal(t, "v", a.Config["k"], "Clone must not share the config map")
}

func TestPriorityRank(t *testing.T) {
	assert.Less(t, PriorityHigh.Rank(), PriorityMedium.Rank())
	assert.Less(t, PriorityMedium.Rank(), PriorityLow.Rank())
	assert.Equal(t, PriorityMedium.Rank(), Priority("").Rank())
}

func TestListFilter_Matches(t *testing.T) {
	reg := ServiceRegistration{
		Name:     "search",
		Kind:     KindExternal,
		Required: true,
		Tags:     []string{"web", "search"},
	}

	assert.True(t, ListFilter{}.Matches(reg))
	assert.True(t, ListFilter{Tags: []string{"web"}}.Matches(reg))
	assert.True(t, ListFilter{Tags: []string{"web", "search"}, Kind: KindExternal, RequiredOnly: true}.Matches(reg))
	assert.False(t, ListFilter{Tags: []string{"web", "files"}}.Matches(reg))
	assert.False(t, ListFilter{Kind: KindContainerized}.Matches(reg))

	reg.Required = false
	assert.False(t, ListFilter{RequiredOnly: true}.Matches(reg))
}

func TestConfigStringMap(t *testing.T) {
	reg := ServiceRegistration{Config: map[string]interface{}{
		"headers": map[string]interface{}{"X-Token": "abc", "X-Retry": 3},
		"env":     map[string]string{"A": "1"},
	}}
	assert.Equal(t, map[string]string{"X-Token": "abc", "X-Retry": "3"}, reg.ConfigStringMap("headers"))
	assert.Equal(t, map[string]string{"A": "1"}, reg.ConfigStringMap("env"))
	assert.Nil(t, reg.ConfigStringMap("missing"))
}

func TestSuccessWrapsEmptyResultAsNull(t *testing.T) {
	resp := Success(Result{})
	assert.True(t, resp.OK)
	assert.JSONEq(t, "null", string(resp.Result))
}
