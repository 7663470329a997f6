// Package mux builds and runs the final ffmpeg invocation that copies
// fragment-assembled audio/video into a single output container (§4.7),
// mirroring the teacher's ffmpeg_args construction and execute() call.
package mux

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/alessio/shellescape"

	"github.com/rivergate-tools/ytlive/internal/session"
)

// Plan describes one mux invocation.
type Plan struct {
	AudioPath     string
	VideoPath     string // empty when AudioOnly
	ThumbnailPath string // empty unless embedding a thumbnail
	OutputPath    string
	AudioOnly     bool
	Metadata      session.MetaInfo // already %()-expanded by the caller
}

// Assembler runs (or, in dry-run mode, writes a shell script for) the
// ffmpeg mux step.
type Assembler struct {
	FFmpegPath string
}

// New locates ffmpeg on PATH, matching the teacher's shutil.which check.
func New() (*Assembler, error) {
	path, err := exec.LookPath("ffmpeg")
	if err != nil {
		return nil, fmt.Errorf("ffmpeg not found; please install ffmpeg: %w", err)
	}
	return &Assembler{FFmpegPath: path}, nil
}

// BuildArgs returns the ffmpeg argv for plan, not including the binary
// name itself.
func BuildArgs(plan Plan) []string {
	args := []string{"-hide_banner", "-loglevel", "fatal", "-stats", "-i", plan.AudioPath}

	hasThumbnail := plan.ThumbnailPath != ""
	if hasThumbnail {
		args = append(args, "-i", plan.ThumbnailPath)
	}

	if !plan.AudioOnly {
		args = append(args, "-i", plan.VideoPath)
		if hasThumbnail {
			args = append(args, "-map", "0", "-map", "1", "-map", "2")
		}
	}

	args = append(args, "-movflags", "faststart", "-c", "copy")
	if hasThumbnail {
		args = append(args, "-disposition:v:0", "attached_pic")
	}

	for _, key := range sortedMetaKeys(plan.Metadata) {
		args = append(args, "-metadata", fmt.Sprintf("%s=%s", strings.ToUpper(key), plan.Metadata[key]))
	}

	args = append(args, plan.OutputPath)
	return args
}

func sortedMetaKeys(m session.MetaInfo) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	for i := 1; i < len(keys); i++ {
		for j := i; j > 0 && keys[j-1] > keys[j]; j-- {
			keys[j-1], keys[j] = keys[j], keys[j-1]
		}
	}
	return keys
}

// Assemble creates plan.OutputPath's parent directory and runs ffmpeg,
// deleting the intermediate audio/video files on success (matching the
// teacher's try_delete calls after a successful mux).
func (a *Assembler) Assemble(ctx context.Context, plan Plan) error {
	if dir := filepath.Dir(plan.OutputPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating output directory: %w", err)
		}
	}

	args := BuildArgs(plan)
	cmd := exec.CommandContext(ctx, a.FFmpegPath, args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ffmpeg exited with error: %w", err)
	}

	os.Remove(plan.AudioPath)
	if !plan.AudioOnly {
		os.Remove(plan.VideoPath)
	}
	return nil
}

// WriteShellScript writes a standalone shell script at scriptPath that
// performs the same mux ffmpeg would, for users who want to run or tweak
// it by hand instead of muxing immediately (the --write-mux-file flag).
// Every argument is escaped with shellescape so paths and metadata values
// containing spaces or shell metacharacters round-trip safely.
func WriteShellScript(scriptPath string, plan Plan) error {
	args := BuildArgs(plan)
	quoted := make([]string, 0, len(args)+1)
	quoted = append(quoted, shellescape.Quote("ffmpeg"))
	for _, a := range args {
		quoted = append(quoted, shellescape.Quote(a))
	}

	script := "#!/bin/sh\n" + strings.Join(quoted, " ") + "\n"
	return os.WriteFile(scriptPath, []byte(script), 0o755)
}
