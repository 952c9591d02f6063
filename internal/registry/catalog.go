package registry

import (
	"context"
)

// rendererAliases maps legacy renderer names to their canonical form.
// Unknown names pass through untouched.
var rendererAliases = map[string]string{
	"md":   "markdown",
	"text": "plaintext",
	"txt":  "plaintext",
}

// NormalizeRenderer resolves legacy renderer aliases to canonical
// renderer names.
func NormalizeRenderer(name string) string {
	if canonical, ok := rendererAliases[name]; ok {
		return canonical
	}
	return name
}

// ServerTools derives the externally visible tool list for one server.
// Empty unless the server is connected. Overrides are fetched fresh on
// every call so edits to override records are reflected immediately;
// disabled tools are dropped, and name/description/confirmation/
// renderer overrides applied. Tool ids are globally unique:
// "toolset/server:rawName".
func (r *Registry) ServerTools(ctx context.Context, key ServerKey) ([]ToolDescriptor, error) {
	st, err := r.lookup(key)
	if err != nil {
		return nil, err
	}

	st.mu.Lock()
	status := st.status
	rawTools := st.rawTools
	defaultConfirm := st.config.RequiresConfirmation
	st.mu.Unlock()

	if status != StatusConnected {
		return nil, nil
	}

	overrides, err := r.toolOverrides(ctx, key.Toolset)
	if err != nil {
		return nil, err
	}

	out := make([]ToolDescriptor, 0, len(rawTools))
	for _, raw := range rawTools {
		desc, ok := r.applyOverride(key, raw.Name, raw.Description, raw.InputSchema, defaultConfirm, overrides)
		if !ok {
			continue
		}
		out = append(out, desc)
	}
	return out, nil
}

// toolOverrides loads the override table for a toolset; no override
// store means no overrides.
func (r *Registry) toolOverrides(ctx context.Context, toolsetID string) (map[string]Override, error) {
	if r.overrides == nil {
		return nil, nil
	}
	return r.overrides.Overrides(ctx, toolsetID)
}

// applyOverride merges one raw tool with its override record. Returns
// ok=false when the override disables the tool.
func (r *Registry) applyOverride(key ServerKey, rawName, description string, schema any, defaultConfirm bool, overrides map[string]Override) (ToolDescriptor, bool) {
	desc := ToolDescriptor{
		ID:                   key.ToolID(rawName),
		RawName:              rawName,
		DisplayName:          rawName,
		Description:          description,
		InputSchema:          schema,
		RequiresConfirmation: defaultConfirm,
	}

	ov, ok := overrides[OverrideKey(key.Server, rawName)]
	if !ok {
		return desc, true
	}
	if ov.Disabled {
		return ToolDescriptor{}, false
	}
	if ov.DisplayName != "" {
		desc.DisplayName = ov.DisplayName
	}
	if ov.Description != "" {
		desc.Description = ov.Description
	}
	if ov.Renderer != "" {
		desc.Renderer = NormalizeRenderer(ov.Renderer)
	}
	if ov.RequiresConfirmation != nil {
		desc.RequiresConfirmation = *ov.RequiresConfirmation
	}
	return desc, true
}

// toolDescriptor derives the descriptor for a single tool on a server,
// or ok=false when the server is not connected, the tool is unknown,
// or an override disables it.
func (r *Registry) toolDescriptor(ctx context.Context, key ServerKey, toolName string) (ToolDescriptor, bool) {
	st, err := r.lookup(key)
	if err != nil {
		return ToolDescriptor{}, false
	}

	st.mu.Lock()
	status := st.status
	rawTools := st.rawTools
	defaultConfirm := st.config.RequiresConfirmation
	st.mu.Unlock()

	if status != StatusConnected {
		return ToolDescriptor{}, false
	}

	overrides, err := r.toolOverrides(ctx, key.Toolset)
	if err != nil {
		r.log.Warn("loading tool overrides failed", "toolset", key.Toolset, "error", err)
		overrides = nil
	}

	for _, raw := range rawTools {
		if raw.Name == toolName {
			return r.applyOverride(key, raw.Name, raw.Description, raw.InputSchema, defaultConfirm, overrides)
		}
	}
	return ToolDescriptor{}, false
}
