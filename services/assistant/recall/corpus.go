// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package recall

// =============================================================================
// Corpus Assembly
// =============================================================================
//
// The corpus is rebuilt from the archive on every search — files are the
// single source of truth and there is no index to drift out of sync. The
// candidate file set per query:
//
//	memory/MEMORY.md                            long-term notes
//	memory/<YYYY-MM-DD>.md                      recent global dated files
//	memory/chats/chat-<id>/CONTINUITY.md        chat snapshot (scoped)
//	memory/chats/chat-<id>/<YYYY-MM-DD>.md      recent chat dated files (scoped)
//
// Files are read concurrently; ordering of the final line list is fixed by
// the candidate file order, not read completion order. An unreadable file
// contributes zero lines and never fails the query.

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/AleutianAssist/services/assistant/relevance"
	"github.com/AleutianAI/AleutianAssist/services/assistant/textproc"
)

const (
	longTermFileName   = "MEMORY.md"
	continuityFileName = "CONTINUITY.md"
	chatsDirName       = "chats"
	chatDirPrefix      = "chat-"

	metaSuffixMarker = "| meta="

	// corpusReadConcurrency bounds parallel file reads.
	corpusReadConcurrency = 4
)

// datedFilePattern matches dated archive files and captures the date.
var datedFilePattern = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2})\.md$`)

// buildCorpus assembles the candidate line list for one query.
//
// # Description
//
// Resolves the candidate file set for the chat scope, reads all files
// concurrently, and flattens per-file line lists in candidate-file order so
// the result is deterministic given fixed file contents.
//
// # Inputs
//
//   - chatID: Chat scope. Empty means global-only corpus.
//
// # Outputs
//
//   - []MemoryLine: Parsed, filtered, tokenized lines. Never nil on success;
//     may be empty.
func (e *Engine) buildCorpus(chatID string) []MemoryLine {
	files := e.candidateFiles(chatID)

	perFile := make([][]MemoryLine, len(files))
	g := new(errgroup.Group)
	g.SetLimit(corpusReadConcurrency)
	for i, path := range files {
		i, path := i, path
		g.Go(func() error {
			perFile[i] = e.readFileLines(path)
			return nil
		})
	}
	// Workers never return errors; per-file failures degrade to zero lines.
	_ = g.Wait()

	lines := make([]MemoryLine, 0, 256)
	for _, fl := range perFile {
		lines = append(lines, fl...)
	}
	recallCorpusLines.Observe(float64(len(lines)))
	return lines
}

// candidateFiles resolves the corpus file set in deterministic order:
// long-term file, chat continuity, recent chat dated files, recent global
// dated files. Missing files are kept in the list — readFileLines treats
// them as empty.
func (e *Engine) candidateFiles(chatID string) []string {
	files := []string{filepath.Join(e.root, longTermFileName)}

	if chatID != "" {
		chatDir := filepath.Join(e.root, chatsDirName, chatDirPrefix+chatID)
		files = append(files, filepath.Join(chatDir, continuityFileName))
		files = append(files, e.recentDatedFiles(chatDir, maxChatDatedFiles)...)
	}

	files = append(files, e.recentDatedFiles(e.root, maxGlobalDatedFiles)...)
	return files
}

// recentDatedFiles lists the n most recent YYYY-MM-DD.md files in dir,
// newest first. Date order falls out of lexicographic name order.
func (e *Engine) recentDatedFiles(dir string, n int) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if datedFilePattern.MatchString(entry.Name()) {
			names = append(names, entry.Name())
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(names)))
	if len(names) > n {
		names = names[:n]
	}
	out := make([]string, len(names))
	for i, name := range names {
		out[i] = filepath.Join(dir, name)
	}
	return out
}

// readFileLines reads and parses one archive file.
//
// Read failures contribute zero lines. Empty lines are skipped but still
// advance the 1-based line numbering, so LineNumber always points at the
// actual file line.
func (e *Engine) readFileLines(path string) []MemoryLine {
	raw, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			e.logger.Debug("memory file unreadable, skipping",
				slog.String("path", path),
				slog.String("error", err.Error()),
			)
		}
		return nil
	}

	age := e.fileAgeDays(path)
	relPath := e.relPath(path)

	var lines []MemoryLine
	for i, lineText := range strings.Split(string(raw), "\n") {
		line, ok := e.parseLine(relPath, i+1, lineText, age)
		if !ok {
			continue
		}
		lines = append(lines, line)
	}
	return lines
}

// parseLine converts one file line into a MemoryLine.
//
// # Description
//
// Strips the optional trailing `| meta=<json>` suffix; malformed meta JSON
// drops the metadata but keeps the text. Lines matching any prompt-injection
// pattern are excluded entirely — recalled memory is inert data, never
// instruction, regardless of how well it would score.
//
// # Outputs
//
//   - MemoryLine: The parsed line. Zero value when ok is false.
//   - bool: False for empty or injection-filtered lines.
func (e *Engine) parseLine(relPath string, lineNumber int, text string, ageDays float64) (MemoryLine, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return MemoryLine{}, false
	}

	var meta map[string]any
	if idx := strings.LastIndex(text, metaSuffixMarker); idx >= 0 {
		metaRaw := strings.TrimSpace(text[idx+len(metaSuffixMarker):])
		if err := json.Unmarshal([]byte(metaRaw), &meta); err != nil {
			meta = nil
		}
		text = strings.TrimSpace(text[:idx])
		if text == "" {
			return MemoryLine{}, false
		}
	}

	normalized := textproc.Normalize(text)
	for _, pattern := range e.injectionPatterns {
		if pattern.MatchString(normalized) {
			recallExcludedLinesTotal.Inc()
			return MemoryLine{}, false
		}
	}

	tokens := e.tok.Tokenize(text)
	return MemoryLine{
		Path:       relPath,
		LineNumber: lineNumber,
		Raw:        text,
		Normalized: normalized,
		Metadata:   meta,
		AgeDays:    ageDays,
		Tokens:     tokens,
		TokenSet:   relevance.NewSet(tokens),
		TokenFreq:  relevance.TermFreq(tokens),
	}, true
}

// fileAgeDays derives content age. The filename date is authoritative when
// the file is a dated archive file; anything else falls back to mtime.
func (e *Engine) fileAgeDays(path string) float64 {
	now := e.now()

	if m := datedFilePattern.FindStringSubmatch(filepath.Base(path)); m != nil {
		if date, err := time.Parse("2006-01-02", m[1]); err == nil {
			age := now.Sub(date).Hours() / 24
			if age < 0 {
				age = 0
			}
			return age
		}
	}

	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	age := now.Sub(info.ModTime()).Hours() / 24
	if age < 0 {
		age = 0
	}
	return age
}

// relPath renders a corpus path relative to the memory root with forward
// slashes, stable across platforms for dedup keys and result payloads.
func (e *Engine) relPath(path string) string {
	rel, err := filepath.Rel(e.root, path)
	if err != nil {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(rel)
}
