package resolve

import "strings"

// NodeModulesPaths returns the node_modules directories searched for bare
// specifiers requested from fromDir, nearest first. Paths starting with "/"
// are treated as POSIX paths; anything else (C:\x, \\server\share) uses
// backslashes.
//
//	NodeModulesPaths("/a/b")  // /a/b/node_modules, /a/node_modules, /node_modules
//	NodeModulesPaths(`C:\a`)  // C:\a\node_modules, C:\node_modules
func NodeModulesPaths(fromDir string) []string {
	if fromDir == "" {
		return nil
	}
	sep := byte('\\')
	if fromDir[0] == '/' {
		sep = '/'
	}

	curDir := fromDir
	sepIndex := len(curDir) - 1
	if curDir[sepIndex] != sep {
		curDir += string(sep)
		sepIndex++
	}
	paths := []string{curDir + "node_modules"}

	for {
		sepIndex--
		if sepIndex <= 0 {
			break
		}
		sepIndex = strings.LastIndexByte(curDir[:sepIndex+1], sep)
		if sepIndex < 0 {
			break
		}
		curDir = curDir[:sepIndex+1]
		paths = append(paths, curDir+"node_modules")
	}
	return paths
}
