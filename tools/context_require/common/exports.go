package common

import "strings"

// DefaultConditions is the condition list used when the caller supplies none.
var DefaultConditions = []string{"default", "require", "browser"}

// conditionSet is the set of active condition names. "default" is always
// active.
type conditionSet map[string]bool

func newConditionSet(conditions []string) conditionSet {
	set := conditionSet{"default": true}
	for _, c := range conditions {
		set[c] = true
	}
	return set
}

// ResolveExports matches subpath ("." or "./x") against the package's exports
// field and returns the target path relative to the package directory.
func (p *Package) ResolveExports(subpath string, conditions []string) (string, bool) {
	if !p.HasExports() {
		return "", false
	}
	return walkExports(exportsMapping(p.Exports), toEntry(subpath), newConditionSet(conditions))
}

// ResolveImports matches an internal "#name" specifier against the package's
// imports field.
func (p *Package) ResolveImports(specifier string, conditions []string) (string, bool) {
	if p.Imports == nil {
		return "", false
	}
	return walkExports(p.Imports, specifier, newConditionSet(conditions))
}

// exportsMapping normalizes the exports field into a subpath map. A string,
// an array or an object whose first key is a condition name all describe the
// "." entry.
func exportsMapping(exports *exportValue) *exportValue {
	if exports.Map != nil && (len(exports.Keys) == 0 || strings.HasPrefix(exports.Keys[0], ".")) {
		return exports
	}
	return &exportValue{Keys: []string{"."}, Map: map[string]*exportValue{".": exports}}
}

// toEntry normalizes a requested subpath to the "./x" form used as a map key.
func toEntry(subpath string) string {
	switch {
	case subpath == "" || subpath == ".":
		return "."
	case strings.HasPrefix(subpath, "#"), strings.HasPrefix(subpath, "./"):
		return subpath
	default:
		return "./" + subpath
	}
}

// walkExports finds the mapping entry for entry and evaluates its conditions.
// Without an exact key, the longest folder ("./dir/") or pattern ("./x/*")
// key that matches wins. A pattern matches when the entry starts with the
// text before the "*" and ends with the text after it.
func walkExports(mapping *exportValue, entry string, conds conditionSet) (string, bool) {
	if mapping.Map == nil {
		return "", false
	}

	value, ok := mapping.Map[entry]
	replace := ""
	if !ok {
		longest := ""
		for _, key := range mapping.Keys {
			if longest != "" && len(key) < len(longest) {
				continue
			}
			if strings.HasSuffix(key, "/") && strings.HasPrefix(entry, key) {
				replace = entry[len(key):]
				longest = key
				continue
			}
			if len(key) < 2 {
				continue
			}
			star := strings.IndexByte(key[1:], '*')
			if star < 0 {
				continue
			}
			star++
			if capture, ok := matchPattern(entry, key[:star], key[star+1:]); ok {
				replace = capture
				longest = key
			}
		}
		if longest == "" {
			return "", false
		}
		value = mapping.Map[longest]
	}

	target, ok := value.match(conds)
	if !ok {
		return "", false
	}
	if replace != "" {
		target = inject(target, replace)
	}
	return target, true
}

// matchPattern captures the text between prefix and suffix, which must
// start and end entry. The capture must not be empty.
func matchPattern(entry, prefix, suffix string) (string, bool) {
	if len(entry) <= len(prefix)+len(suffix) {
		return "", false
	}
	if !strings.HasPrefix(entry, prefix) || !strings.HasSuffix(entry, suffix) {
		return "", false
	}
	return entry[len(prefix) : len(entry)-len(suffix)], true
}

// match evaluates a target value depth-first. Condition objects follow the
// first key, in document order, that is an active condition; there is no
// backtracking to later keys once one is chosen. Arrays yield their first
// element that produces a target.
func (v *exportValue) match(conds conditionSet) (string, bool) {
	switch {
	case v == nil:
		return "", false
	case v.Path != "":
		return v.Path, true
	case v.Array != nil:
		for _, item := range v.Array {
			if target, ok := item.match(conds); ok {
				return target, true
			}
		}
	case v.Map != nil:
		for _, key := range v.Keys {
			if conds[key] {
				return v.Map[key].match(conds)
			}
		}
	}
	return "", false
}

// inject substitutes the captured part of a pattern or folder match into a
// target.
func inject(target, replace string) string {
	if strings.Contains(target, "*") {
		return strings.ReplaceAll(target, "*", replace)
	}
	if strings.HasSuffix(target, "/") {
		return target + replace
	}
	return target
}
