package git

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Status describes how git sees the vault file
type Status struct {
	IsRepo       bool
	VaultFile    string
	VaultTracked bool // committed or staged (bad)
	VaultIgnored bool // matched by a .gitignore rule (good)
}

// IsGitRepo checks if the working directory is inside a git repository
func IsGitRepo(ctx context.Context, workDir string) bool {
	cmd := exec.CommandContext(ctx, "git", "rev-parse", "--is-inside-work-tree")
	cmd.Dir = workDir
	return cmd.Run() == nil
}

// IsTracked checks if a file is tracked by git
func IsTracked(ctx context.Context, workDir, path string) bool {
	cmd := exec.CommandContext(ctx, "git", "ls-files", "--", path)
	cmd.Dir = workDir
	output, err := cmd.Output()
	if err != nil {
		return false
	}
	return len(strings.TrimSpace(string(output))) > 0
}

// IsIgnored checks if a file is ignored by git (handles all .gitignore files)
func IsIgnored(ctx context.Context, workDir, path string) bool {
	cmd := exec.CommandContext(ctx, "git", "check-ignore", "-q", "--", path)
	cmd.Dir = workDir
	// exit code 0 means ignored
	return cmd.Run() == nil
}

// CheckVault reports the git status of vaultFile, relative to workDir.
// Outside a repository, or without git installed, IsRepo is false.
func CheckVault(ctx context.Context, workDir, vaultFile string) *Status {
	status := &Status{VaultFile: vaultFile}
	if _, err := exec.LookPath("git"); err != nil {
		return status
	}
	if !IsGitRepo(ctx, workDir) {
		return status
	}
	status.IsRepo = true
	status.VaultTracked = IsTracked(ctx, workDir, vaultFile)
	status.VaultIgnored = IsIgnored(ctx, workDir, vaultFile)
	return status
}

// Format renders status for display. It returns "" outside a repository.
// The vault holds password hashes, so publishing it invites offline guessing.
func Format(status *Status) string {
	if status == nil || !status.IsRepo {
		return ""
	}

	var result strings.Builder
	result.WriteString("\nGit Integration:\n")

	if status.VaultTracked {
		result.WriteString(fmt.Sprintf("   error: %s is tracked by git (run: git rm --cached %s)\n", status.VaultFile, status.VaultFile))
	} else {
		result.WriteString(fmt.Sprintf("   ok: %s is not tracked by git\n", status.VaultFile))
	}

	if status.VaultIgnored {
		result.WriteString(fmt.Sprintf("   ok: %s is in .gitignore\n", status.VaultFile))
	} else {
		result.WriteString(fmt.Sprintf("   warning: %s not in .gitignore (add it to .gitignore)\n", status.VaultFile))
	}

	return result.String()
}
