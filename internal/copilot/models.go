// Copyright Envoy AI Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package copilot

// Model identifies one Copilot chat model.
type Model struct {
	ID   string
	Name string
}

// FallbackModel is used when no model is selected and the catalog cannot be
// consulted.
var FallbackModel = Model{ID: "gpt-4o-2024-11-20", Name: "GPT-4o"}

// chatModels is the static catalog of Copilot chat models surfaced on
// /api/tags. The upstream accepts ids beyond this list; the catalog exists
// so Ollama clients can enumerate something sensible.
var chatModels = []Model{
	{ID: "gpt-4o-2024-11-20", Name: "GPT-4o"},
	{ID: "gpt-4o-mini", Name: "GPT-4o mini"},
	{ID: "gpt-4.1", Name: "GPT-4.1"},
	{ID: "o3-mini", Name: "o3-mini"},
	{ID: "claude-3.5-sonnet", Name: "Claude 3.5 Sonnet"},
	{ID: "claude-3.7-sonnet", Name: "Claude 3.7 Sonnet"},
	{ID: "gemini-2.0-flash-001", Name: "Gemini 2.0 Flash"},
}

// ModelCatalog implements the model provider consulted by the pipeline and
// by /api/tags.
type ModelCatalog struct {
	selected *Model
}

// NewModelCatalog returns a catalog with no active selection.
func NewModelCatalog() *ModelCatalog {
	return &ModelCatalog{}
}

// CurrentModel returns the active selection, falling back to FallbackModel.
func (c *ModelCatalog) CurrentModel() Model {
	if c.selected != nil {
		return *c.selected
	}
	return FallbackModel
}

// Select sets the active model by id. Unknown ids are accepted as-is since
// the upstream catalog moves faster than this binary.
func (c *ModelCatalog) Select(id string) {
	for i := range chatModels {
		if chatModels[i].ID == id {
			c.selected = &chatModels[i]
			return
		}
	}
	c.selected = &Model{ID: id, Name: id}
}

// Models lists the catalog.
func (c *ModelCatalog) Models() []Model {
	return chatModels
}
