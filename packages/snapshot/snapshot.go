// Package snapshot ships a builtin plugin that records response
// snapshots per named request and flags drift on later runs. Snapshots
// live under the project root, written through the plugin filesystem
// capability.
package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path"
	"regexp"
	"sync"

	"github.com/abdul-hamid-achik/treq/packages/plugin"
)

const DefaultDir = ".treq/snapshots"

// entry is what gets persisted for one request.
type entry struct {
	Status int `json:"status"`
	Body   any `json:"body"`
}

type snapshotPlugin struct {
	mu     sync.Mutex
	pctx   *plugin.PluginContext
	dir    string
	update bool
}

// New returns the snapshot plugin definition. Plugin config keys:
// "dir" (string, default .treq/snapshots) and "update" (bool, rewrite
// snapshots that no longer match instead of failing).
func New() *plugin.Definition {
	p := &snapshotPlugin{dir: DefaultDir}

	return &plugin.Definition{
		Name:        "snapshot",
		Version:     "1.0.0",
		Permissions: []plugin.Permission{plugin.PermissionFilesystem},
		Setup:       p.setup,
		Hooks: map[plugin.HookName]any{
			plugin.HookResponseAfter: plugin.ResponseAfterHook(p.afterResponse),
		},
	}
}

func (p *snapshotPlugin) setup(_ context.Context, pctx *plugin.PluginContext) error {
	p.pctx = pctx
	if dir, ok := pctx.Config["dir"].(string); ok && dir != "" {
		p.dir = dir
	}
	if update, ok := pctx.Config["update"].(bool); ok {
		p.update = update
	}
	return nil
}

// afterResponse records a snapshot on first sight of a named request
// and reports a mismatch error when a later response drifts.
func (p *snapshotPlugin) afterResponse(ctx context.Context, in *plugin.ResponseInput, out *plugin.ResponseOutput) error {
	name := in.Ctx.RequestName
	if name == "" {
		return nil
	}

	fs, err := p.pctx.RequireFS()
	if err != nil {
		return err
	}

	current := &entry{Status: in.Response.StatusCode, Body: normalizeBody(in.Response.Body)}

	p.mu.Lock()
	defer p.mu.Unlock()

	file := path.Join(p.dir, sanitize(name)+".snap.json")
	data, err := fs.ReadFile(file)
	if os.IsNotExist(err) {
		if err := p.write(fs, file, current); err != nil {
			return err
		}
		return in.Ctx.Report(map[string]any{"snapshot": name, "created": true})
	}
	if err != nil {
		return fmt.Errorf("reading snapshot %s: %w", file, err)
	}

	var stored entry
	if err := json.Unmarshal(data, &stored); err != nil {
		return fmt.Errorf("decoding snapshot %s: %w", file, err)
	}

	if equalJSON(&stored, current) {
		return nil
	}

	if p.update {
		if err := p.write(fs, file, current); err != nil {
			return err
		}
		return in.Ctx.Report(map[string]any{"snapshot": name, "updated": true})
	}

	_ = in.Ctx.Report(map[string]any{
		"snapshot":       name,
		"mismatch":       true,
		"expectedStatus": stored.Status,
		"actualStatus":   current.Status,
	})
	return fmt.Errorf("snapshot mismatch for %q (set snapshot.update to rewrite)", name)
}

func (p *snapshotPlugin) write(fs plugin.FSAPI, file string, e *entry) error {
	data, err := json.MarshalIndent(e, "", "  ")
	if err != nil {
		return err
	}
	return fs.WriteFile(file, data)
}

// normalizeBody decodes JSON bodies so formatting differences do not
// count as drift; anything else is compared as a string.
func normalizeBody(body []byte) any {
	var decoded any
	if err := json.Unmarshal(body, &decoded); err == nil {
		return decoded
	}
	return string(body)
}

func equalJSON(a, b *entry) bool {
	aj, err := json.Marshal(a)
	if err != nil {
		return false
	}
	bj, err := json.Marshal(b)
	if err != nil {
		return false
	}
	return string(aj) == string(bj)
}

var unsafeName = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

func sanitize(name string) string {
	return unsafeName.ReplaceAllString(name, "_")
}
