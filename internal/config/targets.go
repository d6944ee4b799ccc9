package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// LoadTargetList reads a file with one host per line. Blank lines and lines
// starting with '#' are skipped.
func LoadTargetList(path string) ([]string, error) {
	f, err := os.Open(path) //nolint:gosec // User-provided list path is intentional
	if err != nil {
		return nil, fmt.Errorf("open target list: %w", err)
	}
	defer f.Close()
	return ParseTargetList(f)
}

// ParseTargetList parses a target list from r.
func ParseTargetList(r io.Reader) ([]string, error) {
	var targets []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		targets = append(targets, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read target list: %w", err)
	}
	return targets, nil
}
