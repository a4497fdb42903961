package stacktrace

import "strings"

// InternalPaths returns the "internal/<pkg>/<file>.go:<line>" frames of a raw
// debug.Stack() dump, dropping runtime and third-party frames.
func InternalPaths(stack []byte) []string {
	lines := strings.Split(string(stack), "\n")
	paths := make([]string, 0, len(lines)/2)
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if !strings.Contains(line, ".go:") {
			continue
		}

		// drop the " +0x1f" program counter suffix
		frame, _, _ := strings.Cut(line, " ")

		_, rel, found := strings.Cut(frame, "/internal/")
		if !found {
			continue
		}
		paths = append(paths, "internal/"+rel)
	}
	return paths
}
