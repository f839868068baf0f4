// Package main is a secret-leak scanner for mcstatus-bot.
//
// TestNoSecretsInRepo walks the repository and fails on lines that look like
// a Discord bot token or another credential. Run it before pushing:
//
//	go test ./scripts/ -v -run TestNoSecretsInRepo
//
// Hidden directories, vendor/ and directories starting with "_" are skipped,
// as are files whose extension is not listed in scannedExtensions.
package main

import (
	"bufio"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
)

type secretPattern struct {
	label string
	re    *regexp.Regexp
}

var secretPatterns = []secretPattern{
	{"Discord bot token", regexp.MustCompile(`[MNO][A-Za-z0-9_-]{23,27}\.[A-Za-z0-9_-]{6}\.[A-Za-z0-9_-]{27,40}`)},
	{"Discord bot token assignment", regexp.MustCompile(`(?i)DISCORD_BOT_TOKEN\s*[=:]\s*['"]?[A-Za-z0-9._-]{20,}`)},
	{"generic token assignment", regexp.MustCompile(`(?i)(api[_-]?key|token|secret|password|passwd|auth)\s*=\s*['"]?[A-Za-z0-9+/\-_]{32,}['"]?`)},
	{"GitHub personal access token", regexp.MustCompile(`gh[pousr]_[A-Za-z0-9]{36,}`)},
	{"PEM private key block", regexp.MustCompile(`-----BEGIN (RSA |EC |OPENSSH )?PRIVATE KEY-----`)},
}

// allowlist holds line patterns that are known false positives.
var allowlist = []*regexp.Regexp{
	regexp.MustCompile(`^\s*#`),
	regexp.MustCompile(`(?i)test-token|test-bot-token|"test`),
	regexp.MustCompile(`abcdefghijklmnopqrstuv`), // fixture alphabet
	regexp.MustCompile(`(?i)your[-_]token|placeholder|redacted|changeme|example`),
	regexp.MustCompile(`\$\{[^}]+\}|\$[A-Z_]+`), // shell expansion
	regexp.MustCompile(`secrets\.[A-Z_]+`),      // GitHub Actions
	regexp.MustCompile(`[xX]{8,}|0{8,}`),
}

var scannedExtensions = map[string]bool{
	".go": true, ".yaml": true, ".yml": true, ".toml": true, ".json": true,
	".env": true, ".sh": true, ".md": true, ".txt": true,
	"": true, // Dockerfile, Makefile
}

type violation struct {
	path  string
	line  int
	label string
	text  string
}

func (v violation) String() string {
	text := v.text
	if len(text) > 120 {
		text = text[:120] + "…"
	}
	return fmt.Sprintf("  %s:%d [%s]\n    %s", v.path, v.line, v.label, text)
}

// scan reports every non-allowlisted line of r that matches a secret pattern.
func scan(r io.Reader, path string) []violation {
	var found []violation
	sc := bufio.NewScanner(r)
	for n := 1; sc.Scan(); n++ {
		line := sc.Text()
		if allowlisted(line) {
			continue
		}
		for _, p := range secretPatterns {
			if p.re.MatchString(line) {
				found = append(found, violation{path: path, line: n, label: p.label, text: line})
			}
		}
	}
	return found
}

func allowlisted(line string) bool {
	for _, re := range allowlist {
		if re.MatchString(line) {
			return true
		}
	}
	return false
}

func skipDir(name string) bool {
	return name == "vendor" || strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_")
}

// findRepoRoot walks up from start until it finds .git or go.mod.
func findRepoRoot(start string) string {
	for dir := start; ; dir = filepath.Dir(dir) {
		for _, marker := range []string{".git", "go.mod"} {
			if _, err := os.Stat(filepath.Join(dir, marker)); err == nil {
				return dir
			}
		}
		if filepath.Dir(dir) == dir {
			return ""
		}
	}
}

func TestNoSecretsInRepo(t *testing.T) {
	cwd, err := os.Getwd()
	if err != nil {
		t.Fatalf("cannot determine working directory: %v", err)
	}
	root := findRepoRoot(cwd)
	if root == "" {
		t.Fatal("could not find repository root (no .git or go.mod)")
	}
	t.Logf("scanning repository root: %s", root)

	var violations []string
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if path != root && skipDir(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if !scannedExtensions[strings.ToLower(filepath.Ext(path))] {
			return nil
		}

		f, err := os.Open(path)
		if err != nil {
			return nil
		}
		defer f.Close()

		rel, _ := filepath.Rel(root, path)
		for _, v := range scan(f, rel) {
			violations = append(violations, v.String())
		}
		return nil
	})
	if err != nil {
		t.Fatalf("walk error: %v", err)
	}

	if len(violations) > 0 {
		t.Errorf("found %d potential secret leak(s):\n\n%s\n\n"+
			"Fix: remove the secret, reset the bot token in the Discord developer portal, and use a placeholder.",
			len(violations), strings.Join(violations, "\n"))
	}
}

func TestScan_DetectsAndAllowlists(t *testing.T) {
	// Built at runtime so this file does not trip the scanner itself.
	token := "N" + strings.Repeat("q", 25) + "." + strings.Repeat("Z", 6) + "." + strings.Repeat("k", 30)

	tests := []struct {
		name  string
		input string
		want  int
	}{
		{"raw token", "const tok = \"" + token + "\"", 1},
		{"env assignment", "DISCORD_BOT_TOKEN=" + token, 2},
		{"comment line", "# DISCORD_BOT_TOKEN=" + token, 0},
		{"placeholder", "DISCORD_BOT_TOKEN=your-token-placeholder-value", 0},
		{"shell expansion", "DISCORD_BOT_TOKEN=${DISCORD_BOT_TOKEN}", 0},
		{"clean", "MINECRAFT_SERVER_DOMAIN_OR_IP=play.example.com", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := scan(strings.NewReader(tt.input), "fixture.env")
			if len(got) != tt.want {
				t.Errorf("want %d violation(s), got %d: %v", tt.want, len(got), got)
			}
		})
	}
}
