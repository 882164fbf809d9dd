// Package sourcemap reads the repository map that drives an index run.
// The map lives in the config checkout as a plain text file named
// "sourcemap": one "name vcs url" triple per line, with # comments and
// blank lines ignored. Order is preserved.
package sourcemap

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// Entry is one repository to keep checked out under the sources root.
type Entry struct {
	Name string
	VCS  string
	URL  string
}

// SupportedVCS lists the version control kinds the updater knows how to
// drive. Git is the only one the deployment has ever needed.
var SupportedVCS = map[string]bool{
	"git": true,
}

// Load parses the sourcemap file at path.
func Load(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("sourcemap: %w", err)
	}
	defer func() { _ = f.Close() }()
	return parse(f.Name(), bufio.NewScanner(f))
}

func parse(name string, s *bufio.Scanner) ([]Entry, error) {
	var entries []Entry
	seen := make(map[string]bool)
	lineNo := 0
	for s.Scan() {
		lineNo++
		line := s.Text()
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		fields := strings.SplitN(line, " ", 3)
		if len(fields) != 3 {
			return nil, fmt.Errorf("sourcemap: %s:%d: want \"name vcs url\", got %q", name, lineNo, line)
		}
		e := Entry{
			Name: fields[0],
			VCS:  fields[1],
			URL:  strings.TrimSpace(fields[2]),
		}
		if !SupportedVCS[e.VCS] {
			return nil, fmt.Errorf("sourcemap: %s:%d: unsupported vcs %q for repository %s", name, lineNo, e.VCS, e.Name)
		}
		if strings.Contains(e.Name, "/") || strings.Contains(e.Name, "..") {
			return nil, fmt.Errorf("sourcemap: %s:%d: repository name %q must not contain path separators", name, lineNo, e.Name)
		}
		if seen[e.Name] {
			return nil, fmt.Errorf("sourcemap: %s:%d: duplicate repository %s", name, lineNo, e.Name)
		}
		seen[e.Name] = true
		entries = append(entries, e)
	}
	if err := s.Err(); err != nil {
		return nil, fmt.Errorf("sourcemap: read %s: %w", name, err)
	}
	return entries, nil
}
