// Package version carries build metadata injected with -ldflags, for example
//
//	-X shotwatch/internal/version.Version=1.4.0 -X shotwatch/internal/version.GitCommit=abc123
package version

import (
	"fmt"
	"strings"
)

var (
	Version   = "dev"
	Built     = ""
	GitCommit = ""
)

type Info struct {
	Version   string `json:"version"`
	Built     string `json:"built,omitempty"`
	GitCommit string `json:"git_commit,omitempty"`
}

func Get() Info {
	return Info{
		Version:   strings.TrimSpace(Version),
		Built:     strings.TrimSpace(Built),
		GitCommit: strings.TrimSpace(GitCommit),
	}
}

// IsDev reports whether the binary was built without a release version.
func (i Info) IsDev() bool {
	return i.Version == "" || i.Version == "dev"
}

// Line renders the one-line --version output for program.
func (i Info) Line(program string) string {
	if i.IsDev() {
		return program + " dev"
	}
	line := fmt.Sprintf("%s version %s", program, i.Version)
	var extra []string
	if i.GitCommit != "" {
		extra = append(extra, "commit "+i.GitCommit)
	}
	if i.Built != "" {
		extra = append(extra, "built "+i.Built)
	}
	if len(extra) > 0 {
		line += " (" + strings.Join(extra, ", ") + ")"
	}
	return line
}
