package persona

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/giovanni-lunetta/giovanni-site/pkg/config"
)

// Load reads the persona documents named in cfg. Summary and profile are required;
// a missing resume is logged and left empty.
func Load(cfg config.PersonaConfig) (*GroundingContext, error) {
	summary, err := ReadDocument(cfg.SummaryPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load summary: %w", err)
	}

	profile, err := ReadDocument(cfg.ProfilePath)
	if err != nil {
		return nil, fmt.Errorf("failed to load profile: %w", err)
	}

	var resume string
	if cfg.ResumePath != "" {
		resume, err = ReadDocument(cfg.ResumePath)
		switch {
		case errors.Is(err, os.ErrNotExist):
			slog.Warn("Resume not found, continuing without resume", "path", cfg.ResumePath)
			resume = ""
		case err != nil:
			return nil, fmt.Errorf("failed to load resume: %w", err)
		}
	}

	slog.Info("Persona loaded",
		"name", cfg.Name,
		"summary_chars", len(summary),
		"profile_chars", len(profile),
		"resume_chars", len(resume),
	)
	return New(cfg.Name, summary, resume, profile), nil
}

// ReadDocument returns the text of a PDF or plain text file.
func ReadDocument(path string) (string, error) {
	if strings.EqualFold(filepath.Ext(path), ".pdf") {
		return readPDF(path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// readPDF concatenates the plain text of every page, skipping pages without text.
func readPDF(path string) (string, error) {
	if _, err := os.Stat(path); err != nil {
		return "", err
	}

	f, r, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("open pdf %s: %w", path, err)
	}
	defer f.Close()

	var sb strings.Builder
	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			slog.Warn("Failed to extract page text", "path", path, "page", i, "error", err)
			continue
		}
		sb.WriteString(text)
	}
	return sb.String(), nil
}
