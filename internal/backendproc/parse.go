package backendproc

import (
	"strings"
)

// parseCommitID scans output word by word for the first hex token of
// length 7..40, trimming leading/trailing non-alphanumeric punctuation
// (backends commonly wrap hashes as "[abc123]" or "abc123 created").
func parseCommitID(output string) (string, bool) {
	for _, line := range strings.Split(output, "\n") {
		for _, word := range strings.Fields(line) {
			cleaned := strings.TrimFunc(word, func(r rune) bool {
				return !isAlphanumeric(r)
			})

			if len(cleaned) >= 7 && len(cleaned) <= 40 && isHex(cleaned) {
				return cleaned, true
			}
		}
	}

	return "", false
}

func isAlphanumeric(r rune) bool {
	return (r >= '0' && r <= '9') || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

func isHex(s string) bool {
	for _, r := range s {
		isHexDigit := (r >= '0' && r <= '9') || (r >= 'a' && r <= 'f') || (r >= 'A' && r <= 'F')
		if !isHexDigit {
			return false
		}
	}
	return len(s) > 0
}

// parseLogOutput parses `log` output into commit records, newest first. A
// line starting with "commit " opens a new record; subsequent non-empty
// lines that don't start with "Author:" or "Date:" are appended to the
// record's message (newline-joined, trimmed). The record closes at the
// next "commit " line or end of input.
func parseLogOutput(output string) []CommitRecord {
	var commits []CommitRecord
	var currentID string
	var haveCurrent bool
	var messageLines []string

	flush := func() {
		if haveCurrent {
			commits = append(commits, CommitRecord{
				ID:      currentID,
				Message: strings.TrimSpace(strings.Join(messageLines, "\n")),
			})
		}
		messageLines = nil
	}

	for _, line := range strings.Split(output, "\n") {
		trimmed := strings.TrimSpace(line)

		if hash, ok := strings.CutPrefix(trimmed, "commit "); ok {
			flush()
			currentID = strings.TrimSpace(hash)
			haveCurrent = true
			continue
		}

		if trimmed == "" || strings.HasPrefix(trimmed, "Author:") || strings.HasPrefix(trimmed, "Date:") {
			continue
		}

		messageLines = append(messageLines, trimmed)
	}

	flush()

	return commits
}

// parseStatusOutput parses `status` output into staged/modified/untracked
// buckets. Section headers switch a cursor; both the modern section-header
// format and legacy per-line prefixes (M /?  /A /modified:/new file:) are
// recognized. Paths wrapped in " (n items)" are stripped to the bare path.
func parseStatusOutput(output string) StatusResult {
	var result StatusResult

	const (
		sectionNone = iota
		sectionUntracked
		sectionModified
		sectionStaged
	)

	section := sectionNone

	for _, line := range strings.Split(output, "\n") {
		trimmed := strings.TrimSpace(line)

		switch {
		case strings.HasPrefix(trimmed, "Untracked Files"), strings.HasPrefix(trimmed, "Untracked Directories"):
			section = sectionUntracked
			continue
		case strings.HasPrefix(trimmed, "Modified Files"), strings.HasPrefix(trimmed, "Changes not staged"):
			section = sectionModified
			continue
		case strings.HasPrefix(trimmed, "Staged Files"), strings.HasPrefix(trimmed, "Changes to be committed"):
			section = sectionStaged
			continue
		}

		if trimmed == "" || strings.HasPrefix(trimmed, "(use") || strings.HasPrefix(trimmed, "On branch") {
			continue
		}

		switch {
		case strings.HasPrefix(trimmed, "M "), strings.HasPrefix(trimmed, "modified:"):
			result.Modified = append(result.Modified, extractStatusPath(trimmed))
			continue
		case strings.HasPrefix(trimmed, "? "), strings.HasPrefix(trimmed, "untracked:"):
			result.Untracked = append(result.Untracked, extractStatusPath(trimmed))
			continue
		case strings.HasPrefix(trimmed, "A "), strings.HasPrefix(trimmed, "new file:"):
			result.Staged = append(result.Staged, extractStatusPath(trimmed))
			continue
		}

		if section == sectionNone {
			continue
		}

		path := trimmed
		if idx := strings.Index(trimmed, " ("); idx >= 0 {
			path = trimmed[:idx]
		}

		switch section {
		case sectionUntracked:
			result.Untracked = append(result.Untracked, path)
		case sectionModified:
			result.Modified = append(result.Modified, path)
		case sectionStaged:
			result.Staged = append(result.Staged, path)
		}
	}

	return result
}

func extractStatusPath(line string) string {
	if idx := strings.Index(line, ":"); idx >= 0 {
		return strings.TrimSpace(line[idx+1:])
	}

	parts := strings.SplitN(line, " ", 2)
	if len(parts) == 2 {
		return strings.TrimSpace(parts[1])
	}

	return strings.TrimSpace(line)
}

// parseBranchesOutput parses `branch` output: "* name" marks the current
// branch, any other non-blank line is a non-current branch name.
func parseBranchesOutput(output string) []Branch {
	var branches []Branch

	for _, line := range strings.Split(output, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}

		isCurrent := strings.HasPrefix(trimmed, "*")
		name := trimmed
		if isCurrent {
			name = strings.TrimSpace(strings.TrimPrefix(trimmed, "*"))
		}

		branches = append(branches, Branch{Name: name, IsCurrent: isCurrent})
	}

	return branches
}
