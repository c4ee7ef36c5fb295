package harness

import (
	"encoding/json"
	"os"
	"path/filepath"
)

// browserJSON is the subset of a browser.json file the harness understands.
type browserJSON struct {
	RequireRemap []struct {
		From string `json:"from"`
		To   string `json:"to"`
	} `json:"requireRemap"`
}

// remap applies the browser.json requireRemap entries declared in dir to a
// resolved path.
func (h *Harness) remap(dir, path string) string {
	remaps, ok := h.remaps[dir]
	if !ok {
		remaps = h.loadRemaps(dir)
		h.remaps[dir] = remaps
	}
	if to, ok := remaps[path]; ok {
		return to
	}
	return path
}

// loadRemaps reads dir/browser.json. Both sides of each entry are resolved
// from dir, so entries may omit extensions; entries that do not resolve are
// skipped.
func (h *Harness) loadRemaps(dir string) map[string]string {
	file := filepath.Join(dir, "browser.json")
	data, err := os.ReadFile(file)
	if err != nil {
		return nil
	}
	var cfg browserJSON
	if err := json.Unmarshal(data, &cfg); err != nil {
		h.logger.Debug("ignoring browser.json", "file", file, "err", err)
		return nil
	}

	remaps := make(map[string]string, len(cfg.RequireRemap))
	for _, r := range cfg.RequireRemap {
		from, err := h.resolver.Resolve(r.From, dir)
		if err != nil || from.Noop {
			h.logger.Debug("skipping requireRemap", "file", file, "from", r.From, "err", err)
			continue
		}
		to, err := h.resolver.Resolve(r.To, dir)
		if err != nil || to.Noop {
			h.logger.Debug("skipping requireRemap", "file", file, "to", r.To, "err", err)
			continue
		}
		remaps[from.Path] = to.Path
	}
	return remaps
}
