package main

import (
	"os"
	"strings"

	"mdpreview/internal/cli"
)

func isDocumentID(s string) bool {
	s = strings.TrimSpace(s)
	// Keep it permissive; ids are generated but users may paste variants.
	return strings.HasPrefix(s, "doc-") && len(s) > len("doc-")
}

func rewriteDirectEditArgs(argv []string) []string {
	// Convenience: `mdpreview <document-id>` works like `mdpreview edit <document-id>`.
	//
	// Cobra treats the first non-flag token as a subcommand, so we rewrite argv before parsing.
	// Persistent flags may come first (`mdpreview --data-dir x <id>`), so look for the
	// first positional token, not just argv[1].
	if len(argv) < 2 {
		return argv
	}

	valueFlags := map[string]bool{
		"--config":    true,
		"--data-dir":  true,
		"--log-level": true,
		"--format":    true,
	}
	boolFlags := map[string]bool{
		"--pretty": true,
	}

	insertEdit := func(at int) []string {
		out := make([]string, 0, len(argv)+1)
		out = append(out, argv[:at]...)
		out = append(out, "edit")
		out = append(out, argv[at:]...)
		return out
	}

	for i := 1; i < len(argv); i++ {
		a := strings.TrimSpace(argv[i])
		if a == "" {
			continue
		}
		if a == "--" {
			if i+1 < len(argv) && isDocumentID(argv[i+1]) {
				// `edit` must precede `--` for cobra to see it as the subcommand.
				return insertEdit(i)
			}
			return argv
		}
		if strings.HasPrefix(a, "-") {
			switch {
			case strings.Contains(a, "="), boolFlags[a]:
			case valueFlags[a]:
				i++
			}
			continue
		}
		if isDocumentID(a) {
			return insertEdit(i)
		}
		return argv
	}
	return argv
}

func main() {
	os.Args = rewriteDirectEditArgs(os.Args)

	cmd := cli.NewRootCmd()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
