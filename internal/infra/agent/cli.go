package agent

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"research-pipeline/internal/config"
	"research-pipeline/internal/domain/entity"
)

// Note path extraction patterns, in priority order. Skills report the
// created note in a handful of phrasings; each pattern captures the path.
var (
	boldPathPattern     = regexp.MustCompile(`\*\*([^*]+\.md)\*\*`)
	backtickPathPattern = regexp.MustCompile("`([^`]+\\.md)`")
	actionVerbPattern   = regexp.MustCompile(`(?i)(?:wrote|written|saved|created)[^\n]*?(?:to|at|in)\s+([A-Za-z][^\n]+?\.md)`)
)

// commandOutput is what one claude invocation produced.
type commandOutput struct {
	stdout string
	stderr string
}

// runCommandFunc abstracts the claude subprocess for testing.
type runCommandFunc func(ctx context.Context, args []string) (commandOutput, error)

// CLIProcessor processes entries by invoking the claude CLI with a
// per-category skill. The skill fetches the content, writes the note into
// the vault, and prints the created path; the processor extracts and
// verifies that path.
type CLIProcessor struct {
	cfg           *config.Config
	vaultPath     string
	skillsPath    string
	mcpConfigPath string
	logger        *slog.Logger
	run           runCommandFunc
}

// NewCLIProcessor creates a CLIProcessor. vaultPath must already be
// expanded; skillsPath and mcpConfigPath may be empty to use the defaults
// under the user's home directory and the project config directory.
func NewCLIProcessor(cfg *config.Config, vaultPath string, logger *slog.Logger) *CLIProcessor {
	skillsPath := ""
	if home, err := os.UserHomeDir(); err == nil {
		skillsPath = filepath.Join(home, ".claude", "skills")
	}

	p := &CLIProcessor{
		cfg:           cfg,
		vaultPath:     vaultPath,
		skillsPath:    skillsPath,
		mcpConfigPath: filepath.Join("config", "mcp-minimal.json"),
		logger:        logger,
	}
	p.run = p.runClaude
	return p
}

// Validate checks that the claude binary and every per-category skill are
// installed. Returns the missing capability names.
func (p *CLIProcessor) Validate() []string {
	var missing []string

	if _, err := exec.LookPath("claude"); err != nil {
		missing = append(missing, "claude")
	}

	for _, category := range entity.Categories() {
		spec, err := p.cfg.SkillFor(category)
		if err != nil {
			continue
		}
		skillDir := filepath.Join(p.skillsPath, spec.Skill)
		if _, err := os.Stat(skillDir); err != nil {
			missing = append(missing, spec.Skill)
		}
	}

	return missing
}

// Process invokes the skill for the entry's category and verifies that the
// reported note file exists.
func (p *CLIProcessor) Process(ctx context.Context, entry *entity.Entry) Outcome {
	spec, err := p.cfg.SkillFor(entry.Category)
	if err != nil {
		return FailPermanent(err.Error())
	}

	runCtx, cancel := context.WithTimeout(ctx, spec.Timeout)
	defer cancel()

	args := []string{
		"--mcp-config", p.mcpConfigPath,
		"--print",
		"--dangerously-skip-permissions",
		fmt.Sprintf("/%s %s", spec.Skill, entry.URL),
	}

	p.logger.Debug("invoking skill",
		slog.String("skill", spec.Skill),
		slog.String("url", entry.URL),
		slog.Duration("timeout", spec.Timeout))

	out, err := p.run(runCtx, args)
	if err != nil {
		return p.classifyRunError(runCtx, err, out, spec.Timeout)
	}

	notePath := extractNotePath(out.stdout, p.vaultPath, spec.OutputFolder)
	if notePath == "" {
		return Fail("skill completed but no note path found in output")
	}

	if _, err := os.Stat(notePath); err != nil {
		return Fail(fmt.Sprintf("skill reported creating note but file not found: %s", notePath))
	}

	return Succeed(notePath)
}

// EvaluateBatch runs /evaluate-knowledge over one batch of note paths.
// Paths are passed relative to the vault when possible.
func (p *CLIProcessor) EvaluateBatch(ctx context.Context, notePaths []string) error {
	if len(notePaths) == 0 {
		return nil
	}

	quoted := make([]string, 0, len(notePaths))
	for _, notePath := range notePaths {
		rel := notePath
		if r, err := filepath.Rel(p.vaultPath, notePath); err == nil && !strings.HasPrefix(r, "..") {
			rel = r
		}
		quoted = append(quoted, fmt.Sprintf("%q", rel))
	}

	batchCtx, cancel := context.WithTimeout(ctx, p.cfg.Processing.EvaluateBatchTimeout)
	defer cancel()

	args := []string{
		"--print",
		"--dangerously-skip-permissions",
		fmt.Sprintf("/evaluate-knowledge %s", strings.Join(quoted, " ")),
	}

	if _, err := p.run(batchCtx, args); err != nil {
		if errors.Is(batchCtx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("EvaluateBatch: timed out after %v", p.cfg.Processing.EvaluateBatchTimeout)
		}
		return fmt.Errorf("EvaluateBatch: %w", err)
	}

	return nil
}

// runClaude is the production runCommandFunc.
func (p *CLIProcessor) runClaude(ctx context.Context, args []string) (commandOutput, error) {
	cmd := exec.CommandContext(ctx, "claude", args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	return commandOutput{stdout: stdout.String(), stderr: stderr.String()}, err
}

// classifyRunError maps subprocess failures to outcomes matching how each
// failure mode should be handled downstream.
func (p *CLIProcessor) classifyRunError(ctx context.Context, err error, out commandOutput, timeout time.Duration) Outcome {
	if errors.Is(err, exec.ErrNotFound) {
		return FailPermanent("claude CLI not found, ensure 'claude' is in PATH")
	}

	// On timeout the subprocess is killed and err reports the signal, so the
	// context is the reliable signal.
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return Fail(fmt.Sprintf("skill timed out after %v", timeout))
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		// The CLI writes errors to stdout or stderr depending on the failure
		errOutput := strings.TrimSpace(out.stderr)
		if errOutput == "" {
			errOutput = strings.TrimSpace(out.stdout)
		}
		return Fail(fmt.Sprintf("skill exited with code %d: %s", exitErr.ExitCode(), truncateMessage(errOutput, 200)))
	}

	return Fail(fmt.Sprintf("skill invocation failed: %v", err))
}

// extractNotePath finds the created note path in skill output. Bare relative
// paths resolve against the vault; bare filenames resolve against the
// category's output folder.
func extractNotePath(stdout, vaultPath, folder string) string {
	outputDir := filepath.Join(vaultPath, folder)

	if m := boldPathPattern.FindStringSubmatch(stdout); m != nil {
		return resolveNotePath(m[1], vaultPath, outputDir)
	}

	if m := backtickPathPattern.FindStringSubmatch(stdout); m != nil {
		return resolveNotePath(m[1], vaultPath, outputDir)
	}

	folderPattern := regexp.MustCompile(regexp.QuoteMeta(folder) + `/[^\n]+?\.md`)
	if m := folderPattern.FindString(stdout); m != "" {
		return filepath.Join(vaultPath, m)
	}

	if m := actionVerbPattern.FindStringSubmatch(stdout); m != nil {
		return resolveNotePath(strings.TrimSpace(m[1]), vaultPath, outputDir)
	}

	return ""
}

func resolveNotePath(relative, vaultPath, outputDir string) string {
	if strings.Contains(relative, "/") {
		return filepath.Join(vaultPath, relative)
	}
	return filepath.Join(outputDir, relative)
}

func truncateMessage(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
