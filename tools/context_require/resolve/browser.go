package resolve

import (
	"strings"

	"github.com/mlrawlings/jsdom-context-require/tools/context_require/common"
)

// remapBrowser looks up id ("." or "./sub") in a legacy browser field. Keys
// may be written with or without a leading "./", an extension or a trailing
// "/index", so each spelling is tried from the most literal to the most
// speculative. ok is false when nothing matches.
func remapBrowser(browser *common.BrowserField, id string, extensions []string) (entry common.BrowserEntry, ok bool) {
	if browser == nil {
		return common.BrowserEntry{}, false
	}

	if browser.IsRootRemap() {
		if id == "." || id == "./" {
			return common.BrowserEntry{Target: browser.Root}, true
		}
		return common.BrowserEntry{}, false
	}

	cur := id
	if entry, ok = browser.Lookup(cur); ok {
		return entry, true
	}

	if cur == "." {
		cur = "./"
		if entry, ok = browser.Lookup(cur); ok {
			return entry, true
		}
	}

	if !strings.HasPrefix(cur, ".") {
		if entry, ok = browser.Lookup("./" + cur); ok {
			return entry, true
		}
	}

	isFolder := strings.HasSuffix(cur, "/")
	if isFolder {
		cur += "index"
		if entry, ok = browser.Lookup(cur); ok {
			return entry, true
		}
	}

	for _, ext := range extensions {
		if entry, ok = browser.Lookup(cur + ext); ok {
			return entry, true
		}
	}

	if !isFolder {
		cur += "/index"
		if entry, ok = browser.Lookup(cur); ok {
			return entry, true
		}
		for _, ext := range extensions {
			if entry, ok = browser.Lookup(cur + ext); ok {
				return entry, true
			}
		}
	}

	return common.BrowserEntry{}, false
}
