package agent

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"research-pipeline/internal/config"
	"research-pipeline/internal/domain/entity"
)

func newTestCLIProcessor(t *testing.T, run runCommandFunc) (*CLIProcessor, string) {
	t.Helper()
	vault := t.TempDir()

	p := NewCLIProcessor(config.Default(), vault, slog.New(slog.DiscardHandler))
	p.skillsPath = t.TempDir()
	if run != nil {
		p.run = run
	}
	return p, vault
}

func TestExtractNotePath(t *testing.T) {
	vault := "/vault"
	folder := "Clippings/Article extractions"

	tests := []struct {
		name   string
		stdout string
		want   string
	}{
		{
			name:   "bold with folder",
			stdout: "Done. I've saved the article analysis to **Clippings/Title.md**.",
			want:   "/vault/Clippings/Title.md",
		},
		{
			name:   "bold bare filename",
			stdout: "Created **Title.md** for you.",
			want:   "/vault/Clippings/Article extractions/Title.md",
		},
		{
			name:   "backtick with folder",
			stdout: "Done. I've created the note at `Clippings/Title.md`.",
			want:   "/vault/Clippings/Title.md",
		},
		{
			name:   "folder prefixed with spaces in filename",
			stdout: "Note saved to Clippings/Article extractions/My Long Title.md",
			want:   "/vault/Clippings/Article extractions/My Long Title.md",
		},
		{
			name:   "action verb",
			stdout: "Successfully wrote note to Notes/Some Title.md",
			want:   "/vault/Notes/Some Title.md",
		},
		{
			name:   "no path",
			stdout: "All done, nothing written.",
			want:   "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := extractNotePath(tt.stdout, vault, folder)
			if got != tt.want {
				t.Errorf("extractNotePath() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCLIProcess_Success(t *testing.T) {
	var gotArgs []string
	p, vault := newTestCLIProcessor(t, func(ctx context.Context, args []string) (commandOutput, error) {
		gotArgs = args
		return commandOutput{stdout: "Saved to **Clippings/Note.md**"}, nil
	})

	noteDir := filepath.Join(vault, "Clippings")
	if err := os.MkdirAll(noteDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(noteDir, "Note.md"), []byte("# note"), 0o644); err != nil {
		t.Fatal(err)
	}

	entry := &entity.Entry{GUID: "g1", URL: "https://example.com/post", Category: entity.CategoryArticles}

	outcome := p.Process(context.Background(), entry)
	if !outcome.Success {
		t.Fatalf("outcome = %+v, want success", outcome)
	}
	if outcome.ArtifactPath != filepath.Join(noteDir, "Note.md") {
		t.Errorf("ArtifactPath = %q", outcome.ArtifactPath)
	}

	last := gotArgs[len(gotArgs)-1]
	if last != "/article https://example.com/post" {
		t.Errorf("skill invocation = %q", last)
	}
}

func TestCLIProcess_MissingNoteFile(t *testing.T) {
	p, _ := newTestCLIProcessor(t, func(ctx context.Context, args []string) (commandOutput, error) {
		return commandOutput{stdout: "Saved to **Clippings/Missing.md**"}, nil
	})

	entry := &entity.Entry{GUID: "g1", URL: "https://example.com", Category: entity.CategoryArticles}

	outcome := p.Process(context.Background(), entry)
	if outcome.Success || outcome.Permanent {
		t.Fatalf("outcome = %+v, want transient failure", outcome)
	}
	if !strings.Contains(outcome.Message, "file not found") {
		t.Errorf("Message = %q", outcome.Message)
	}
}

func TestCLIProcess_NoPathInOutput(t *testing.T) {
	p, _ := newTestCLIProcessor(t, func(ctx context.Context, args []string) (commandOutput, error) {
		return commandOutput{stdout: "I could not process this URL."}, nil
	})

	entry := &entity.Entry{GUID: "g1", URL: "https://example.com", Category: entity.CategoryArticles}

	outcome := p.Process(context.Background(), entry)
	if outcome.Success || outcome.Permanent {
		t.Fatalf("outcome = %+v, want transient failure", outcome)
	}
	if !strings.Contains(outcome.Message, "no note path") {
		t.Errorf("Message = %q", outcome.Message)
	}
}

func TestCLIProcess_BinaryMissingIsPermanent(t *testing.T) {
	p, _ := newTestCLIProcessor(t, func(ctx context.Context, args []string) (commandOutput, error) {
		return commandOutput{}, exec.ErrNotFound
	})

	entry := &entity.Entry{GUID: "g1", URL: "https://example.com", Category: entity.CategoryArticles}

	outcome := p.Process(context.Background(), entry)
	if outcome.Success || !outcome.Permanent {
		t.Fatalf("outcome = %+v, want permanent failure", outcome)
	}
}

func TestCLIProcess_TimeoutIsTransient(t *testing.T) {
	p, _ := newTestCLIProcessor(t, func(ctx context.Context, args []string) (commandOutput, error) {
		return commandOutput{}, context.DeadlineExceeded
	})

	entry := &entity.Entry{GUID: "g1", URL: "https://example.com", Category: entity.CategoryYouTube}

	outcome := p.Process(context.Background(), entry)
	if outcome.Success || outcome.Permanent {
		t.Fatalf("outcome = %+v, want transient failure", outcome)
	}
	if !strings.Contains(outcome.Message, "timed out") {
		t.Errorf("Message = %q", outcome.Message)
	}
}

func TestCLIValidate_ReportsMissingSkills(t *testing.T) {
	p, _ := newTestCLIProcessor(t, nil)

	// Only the article skill is installed
	if err := os.MkdirAll(filepath.Join(p.skillsPath, "article"), 0o755); err != nil {
		t.Fatal(err)
	}

	missing := p.Validate()
	for _, name := range missing {
		if name == "article" {
			t.Errorf("article reported missing: %v", missing)
		}
	}

	var hasYoutube, hasPodcast bool
	for _, name := range missing {
		switch name {
		case "youtube":
			hasYoutube = true
		case "podcast":
			hasPodcast = true
		}
	}
	if !hasYoutube || !hasPodcast {
		t.Errorf("missing = %v, want youtube and podcast reported", missing)
	}
}

func TestEvaluateBatch_QuotesVaultRelativePaths(t *testing.T) {
	var gotArgs []string
	p, vault := newTestCLIProcessor(t, func(ctx context.Context, args []string) (commandOutput, error) {
		gotArgs = args
		return commandOutput{}, nil
	})

	paths := []string{
		filepath.Join(vault, "Clippings", "A.md"),
		filepath.Join(vault, "Clippings", "B C.md"),
	}

	if err := p.EvaluateBatch(context.Background(), paths); err != nil {
		t.Fatalf("EvaluateBatch err=%v", err)
	}

	last := gotArgs[len(gotArgs)-1]
	want := `/evaluate-knowledge "Clippings/A.md" "Clippings/B C.md"`
	if last != want {
		t.Errorf("command = %q, want %q", last, want)
	}
}

func TestEvaluateBatch_EmptyBatchIsNoOp(t *testing.T) {
	called := false
	p, _ := newTestCLIProcessor(t, func(ctx context.Context, args []string) (commandOutput, error) {
		called = true
		return commandOutput{}, nil
	})

	if err := p.EvaluateBatch(context.Background(), nil); err != nil {
		t.Fatalf("EvaluateBatch err=%v", err)
	}
	if called {
		t.Error("claude invoked for empty batch")
	}
}

func TestEvaluateBatch_TimeoutReported(t *testing.T) {
	p, _ := newTestCLIProcessor(t, func(ctx context.Context, args []string) (commandOutput, error) {
		return commandOutput{}, errors.New("signal: killed")
	})
	p.cfg.Processing.EvaluateBatchTimeout = time.Nanosecond

	err := p.EvaluateBatch(context.Background(), []string{"/x/A.md"})
	if err == nil {
		t.Fatal("EvaluateBatch returned nil for timed-out batch")
	}
	if !strings.Contains(err.Error(), "timed out") {
		t.Errorf("err = %v, want timeout message", err)
	}
}
