package backendproc

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseCommitID_FromVariousFormats(t *testing.T) {
	cases := []struct {
		output string
		want   string
	}{
		{"Commit abc1234 created", "abc1234"},
		{"[abc1234]", "abc1234"},
		{"abc1234def5678", "abc1234def5678"},
	}

	for _, c := range cases {
		got, ok := parseCommitID(c.output)
		require.True(t, ok, c.output)
		require.Equal(t, c.want, got)
	}
}

func TestParseCommitID_RejectsTooShortOrNonHex(t *testing.T) {
	_, ok := parseCommitID("abc123") // 6 chars, too short
	require.False(t, ok)

	_, ok = parseCommitID("not-hex-words-here")
	require.False(t, ok)
}

func TestParseLogOutput_MultipleCommits(t *testing.T) {
	output := `commit abc1234
Author: peteA
Date: 2024-01-01

First commit message

commit def5678
Author: louisB
Date: 2024-01-02

Second commit
spanning two lines
`

	commits := parseLogOutput(output)
	require.Len(t, commits, 2)
	require.Equal(t, "abc1234", commits[0].ID)
	require.Equal(t, "First commit message", commits[0].Message)
	require.Equal(t, "def5678", commits[1].ID)
	require.Equal(t, "Second commit\nspanning two lines", commits[1].Message)
}

func TestParseStatusOutput_SectionHeaders(t *testing.T) {
	output := `On branch main

Staged Files
  file1.txt

Modified Files
  file2.txt

Untracked Files
  file3.txt (1 item)
`

	status := parseStatusOutput(output)
	require.Equal(t, []string{"file1.txt"}, status.Staged)
	require.Equal(t, []string{"file2.txt"}, status.Modified)
	require.Equal(t, []string{"file3.txt"}, status.Untracked)
}

func TestParseStatusOutput_LegacyPrefixes(t *testing.T) {
	output := `M  file1.txt
?  file2.txt
A  file3.txt
modified: file4.txt
new file: file5.txt
`

	status := parseStatusOutput(output)
	require.Contains(t, status.Modified, "file1.txt")
	require.Contains(t, status.Untracked, "file2.txt")
	require.Contains(t, status.Staged, "file3.txt")
	require.Contains(t, status.Modified, "file4.txt")
	require.Contains(t, status.Staged, "file5.txt")
}

func TestParseBranchesOutput_MarksCurrent(t *testing.T) {
	output := `* main
  draft
  feature-x
`

	branches := parseBranchesOutput(output)
	require.Len(t, branches, 3)
	require.Equal(t, Branch{Name: "main", IsCurrent: true}, branches[0])
	require.Equal(t, Branch{Name: "draft", IsCurrent: false}, branches[1])
}
