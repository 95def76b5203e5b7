package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanTransition(t *testing.T) {
	all := []Status{StatusBuilding, StatusGenerating, StatusDeploying, StatusLive, StatusFailed}
	allowed := map[[2]Status]bool{
		{StatusBuilding, StatusGenerating}:  true,
		{StatusGenerating, StatusDeploying}: true,
		{StatusDeploying, StatusLive}:       true,
		{StatusBuilding, StatusFailed}:      true,
		{StatusGenerating, StatusFailed}:    true,
		{StatusDeploying, StatusFailed}:     true,
	}

	for _, from := range all {
		for _, to := range all {
			assert.Equal(t, allowed[[2]Status{from, to}], CanTransition(from, to), "%s -> %s", from, to)
		}
	}
	assert.False(t, CanTransition("queued", StatusFailed))
}

func TestStatusPredicates(t *testing.T) {
	assert.True(t, StatusLive.Terminal())
	assert.True(t, StatusFailed.Terminal())
	assert.False(t, StatusDeploying.Terminal())
	assert.True(t, StatusBuilding.Valid())
	assert.False(t, Status("done").Valid())
}

func TestPreviewJSONShape(t *testing.T) {
	p := Preview{ID: "preview-1", Prompt: "a todo app", UserID: AnonymousUser, Status: StatusBuilding}
	raw, err := json.Marshal(p)
	require.NoError(t, err)

	var m map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &m))
	for _, k := range []string{"id", "prompt", "userId", "status", "liveUrl", "error", "createdAt", "updatedAt"} {
		assert.Contains(t, m, k)
	}
	assert.Nil(t, m["liveUrl"])
	assert.Nil(t, m["error"])
}

func TestCloneIsDeep(t *testing.T) {
	url := "https://p123.netlify.app"
	p := &Preview{ID: "preview-1", LiveURL: &url}
	c := p.Clone()
	*c.LiveURL = "changed"
	assert.Equal(t, "https://p123.netlify.app", *p.LiveURL)
	assert.Nil(t, (*Preview)(nil).Clone())
}
