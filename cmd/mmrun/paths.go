package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/mattn/go-isatty"

	"github.com/samcharles93/mmrun/internal/modelcard"
)

const envModelsDir = "MMRUN_MODELS_DIR"

// stdinIsTTY is a small seam for tests.
var stdinIsTTY = isTTY

func resolveModelsDir(flag string) string {
	dir := strings.TrimSpace(flag)
	if dir == "" {
		dir = strings.TrimSpace(os.Getenv(envModelsDir))
	}
	return dir
}

func resolveCardPath(modelFlag string, modelsPath string, stdin io.Reader, stderr io.Writer) (string, error) {
	modelFlag = strings.TrimSpace(modelFlag)
	if modelFlag != "" {
		return filepath.Clean(modelFlag), nil
	}

	modelsDir := resolveModelsDir(modelsPath)
	if modelsDir == "" {
		return "", fmt.Errorf("--model or --models-path is required unless %s is set", envModelsDir)
	}

	entries, err := modelcard.Discover(modelsDir)
	if err != nil {
		return "", err
	}
	switch len(entries) {
	case 0:
		return "", fmt.Errorf("no model cards found in %s", modelsDir)
	case 1:
		_, _ = fmt.Fprintf(stderr, "mmrun: using model %s\n", entries[0].Name)
		return entries[0].Path, nil
	default:
		if !stdinIsTTY() {
			return "", fmt.Errorf(
				"multiple model cards found in %s but stdin is not interactive; set --model",
				modelsDir,
			)
		}
		return selectCardInteractively(modelsDir, entries, stdin, stderr)
	}
}

func selectCardInteractively(modelsDir string, entries []modelcard.Entry, stdin io.Reader, stderr io.Writer) (string, error) {
	if len(entries) == 0 {
		return "", fmt.Errorf("no models available in %s", modelsDir)
	}

	_, _ = fmt.Fprintf(stderr, "mmrun: select a model from %s\n", modelsDir)
	for i, e := range entries {
		_, _ = fmt.Fprintf(stderr, "%d. %s\n", i+1, e.Name)
	}

	reader := bufio.NewReader(stdin)
	for {
		_, _ = fmt.Fprintf(stderr, "mmrun: enter selection [1-%d]: ", len(entries))
		line, err := reader.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return "", err
		}
		line = strings.TrimSpace(line)
		if line == "" {
			if errors.Is(err, io.EOF) {
				return "", errors.New("no selection provided on stdin; set --model")
			}
			continue
		}

		idx, convErr := strconv.Atoi(line)
		if convErr != nil || idx < 1 || idx > len(entries) {
			_, _ = fmt.Fprintf(stderr, "mmrun: invalid selection %q\n", line)
			if errors.Is(err, io.EOF) {
				return "", errors.New("invalid selection provided on stdin; set --model")
			}
			continue
		}
		return entries[idx-1].Path, nil
	}
}

func isTTY() bool {
	fd := os.Stdin.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
