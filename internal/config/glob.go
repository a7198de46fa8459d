package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ExpandReports resolves explain's arguments to report files. Each argument
// is a file, a glob, or a run's output directory; a directory stands for the
// report named reportName inside it. The result is sorted and unique.
func ExpandReports(args []string, reportName string) ([]string, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("no report paths provided")
	}

	var candidates []string
	for _, arg := range args {
		if !strings.ContainsAny(arg, "*?[") {
			candidates = append(candidates, arg)
			continue
		}
		matches, err := filepath.Glob(arg)
		if err != nil {
			return nil, fmt.Errorf("bad pattern %q: %w", arg, err)
		}
		if len(matches) == 0 {
			return nil, fmt.Errorf("no matches for pattern %q", arg)
		}
		candidates = append(candidates, matches...)
	}

	seen := make(map[string]struct{}, len(candidates))
	files := make([]string, 0, len(candidates))
	for _, path := range candidates {
		info, err := os.Stat(path)
		if err != nil {
			return nil, err
		}
		if info.IsDir() {
			path = filepath.Join(path, reportName)
			if _, err := os.Stat(path); err != nil {
				return nil, fmt.Errorf("no report in %s: %w", filepath.Dir(path), err)
			}
		}
		path = filepath.Clean(path)
		if _, ok := seen[path]; ok {
			continue
		}
		seen[path] = struct{}{}
		files = append(files, path)
	}

	sort.Strings(files)
	return files, nil
}
