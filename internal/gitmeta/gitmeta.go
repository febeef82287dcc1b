// Package gitmeta derives per-file history metadata by shelling out to git.
// It is a pluggable source with a narrow contract: GetMetadata returns nil
// whenever git is disabled, missing, slow or the file is untracked — the
// indexer carries on without metadata. Results are cached by
// (path, fileHash, lastCommitSha) and the provider never writes to the
// store.
package gitmeta

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/codeatlas/codeatlas/internal/config"
	"github.com/codeatlas/codeatlas/internal/model"
)

// callTimeout bounds every git subprocess invocation.
const callTimeout = 3 * time.Second

// Provider answers metadata queries for files under one repository root.
type Provider struct {
	root string
	cfg  config.GitConfig

	mu    sync.Mutex
	cache map[string]*model.GitMetadata
}

// New returns a provider rooted at the project directory.
func New(root string, cfg config.GitConfig) *Provider {
	return &Provider{
		root:  root,
		cfg:   cfg,
		cache: make(map[string]*model.GitMetadata),
	}
}

// GetMetadata returns the history record for a file, or nil when
// unavailable. fileHash participates in the cache key so a re-parsed file
// bypasses a stale entry.
func (p *Provider) GetMetadata(ctx context.Context, path, fileHash string) *model.GitMetadata {
	if p == nil || !p.cfg.Enabled {
		return nil
	}
	rel, err := filepath.Rel(p.root, path)
	if err != nil {
		rel = path
	}

	sha, commitAt := p.lastCommit(ctx, rel)
	if sha == "" {
		return nil
	}

	key := path + "\x00" + fileHash + "\x00" + sha
	p.mu.Lock()
	if cached, ok := p.cache[key]; ok {
		p.mu.Unlock()
		return cached
	}
	p.mu.Unlock()

	meta := &model.GitMetadata{LastCommitSHA: sha}
	if commitAt != nil {
		meta.LastCommitAt = commitAt
		meta.FreshnessDays = int(time.Since(*commitAt).Hours() / 24)
	}

	churn := p.churnCount(ctx, rel)
	meta.ChurnCount = churn
	meta.StabilityScore = 1.0 / float64(1+churn)

	authors := p.authors(ctx, rel)
	if len(authors) > 0 {
		total := 0
		type contrib struct {
			name  string
			count int
		}
		contribs := make([]contrib, 0, len(authors))
		for name, count := range authors {
			contribs = append(contribs, contrib{name, count})
			total += count
		}
		sort.Slice(contribs, func(i, j int) bool {
			if contribs[i].count != contribs[j].count {
				return contribs[i].count > contribs[j].count
			}
			return contribs[i].name < contribs[j].name
		})
		top := contribs
		if len(top) > 3 {
			top = top[:3]
		}
		for _, c := range top {
			meta.TopContributors = append(meta.TopContributors, c.name)
		}
		if total > 0 {
			meta.OwnershipConfidence = float64(contribs[0].count) / float64(total)
		}
	}

	p.mu.Lock()
	p.cache[key] = meta
	p.mu.Unlock()
	return meta
}

// run executes one git command with the per-call timeout; empty output on
// any failure.
func (p *Provider) run(ctx context.Context, args ...string) string {
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	bin := p.cfg.GitBinary
	if bin == "" {
		bin = "git"
	}
	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Dir = p.root
	out, err := cmd.Output()
	if err != nil {
		slog.Debug("gitmeta.cmd.err", "args", strings.Join(args, " "), "err", err)
		return ""
	}
	return strings.TrimSpace(string(out))
}

// lastCommit returns the newest commit touching the file.
func (p *Provider) lastCommit(ctx context.Context, rel string) (string, *time.Time) {
	out := p.run(ctx, "log", "-1", "--format=%H|%cI", "--", rel)
	if out == "" {
		return "", nil
	}
	parts := strings.SplitN(out, "|", 2)
	sha := parts[0]
	if len(parts) < 2 {
		return sha, nil
	}
	at, err := time.Parse(time.RFC3339, parts[1])
	if err != nil {
		return sha, nil
	}
	return sha, &at
}

// churnCount counts commits touching the file inside the sample window,
// capped by historyDepth.
func (p *Provider) churnCount(ctx context.Context, rel string) int {
	since := fmt.Sprintf("--since=%d days ago", p.cfg.SampleWindowDays)
	maxCount := fmt.Sprintf("--max-count=%d", p.cfg.HistoryDepth)
	out := p.run(ctx, "rev-list", "--count", maxCount, since, "HEAD", "--", rel)
	if out == "" {
		return 0
	}
	n, err := strconv.Atoi(out)
	if err != nil {
		return 0
	}
	return n
}

// authors aggregates commit authors over the sample window.
func (p *Provider) authors(ctx context.Context, rel string) map[string]int {
	since := fmt.Sprintf("--since=%d days ago", p.cfg.SampleWindowDays)
	maxCount := fmt.Sprintf("--max-count=%d", p.cfg.HistoryDepth)
	out := p.run(ctx, "log", maxCount, since, "--format=%an", "--", rel)
	if out == "" {
		return nil
	}
	counts := make(map[string]int)
	scanner := bufio.NewScanner(strings.NewReader(out))
	for scanner.Scan() {
		name := strings.TrimSpace(scanner.Text())
		if name != "" {
			counts[name]++
		}
	}
	return counts
}
