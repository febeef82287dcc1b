package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/codeatlas/codeatlas/internal/model"
)

// addEdgeScript writes the edge record and both dependency-set memberships
// in one atomic step.
var addEdgeScript = redis.NewScript(`
local prefix = ARGV[1]
local from = ARGV[2]
local to = ARGV[3]
redis.call('HSET', prefix .. 'edge:from:' .. from .. ':to:' .. to, 'type', ARGV[4], 'location', ARGV[5])
redis.call('SADD', prefix .. 'deps:from:' .. from, to)
redis.call('SADD', prefix .. 'deps:to:' .. to, from)
return 1
`)

// AddEdge inserts one dependency edge atomically.
func (s *Store) AddEdge(ctx context.Context, dep *model.Dependency) error {
	loc := ""
	if dep.Location != nil {
		raw, _ := json.Marshal(dep.Location)
		loc = string(raw)
	}
	err := addEdgeScript.Run(ctx, s.rdb, nil, s.nsPrefix(), dep.From, dep.To, string(dep.Type), loc).Err()
	if err != nil {
		return fmt.Errorf("add edge %s -> %s: %w", dep.From, dep.To, err)
	}
	return nil
}

// AddEdges inserts a batch, stopping at the first failure so the caller can
// retry the whole batch.
func (s *Store) AddEdges(ctx context.Context, deps []*model.Dependency) error {
	for _, dep := range deps {
		if err := s.AddEdge(ctx, dep); err != nil {
			return err
		}
	}
	return nil
}

// GetEdge returns the typed edge between two IDs, or nil.
func (s *Store) GetEdge(ctx context.Context, from, to string) (*model.Dependency, error) {
	vals, err := s.rdb.HGetAll(ctx, s.key("edge:from:"+from+":to:"+to)).Result()
	if err != nil {
		return nil, err
	}
	if len(vals) == 0 {
		return nil, nil
	}
	dep := &model.Dependency{From: from, To: to, Type: model.DepType(vals["type"])}
	if raw := vals["location"]; raw != "" {
		loc := &model.Location{}
		if json.Unmarshal([]byte(raw), loc) == nil {
			dep.Location = loc
		}
	}
	return dep, nil
}

// DependenciesOf returns the forward neighbour IDs (deps:from members).
func (s *Store) DependenciesOf(ctx context.Context, id string) ([]string, error) {
	return s.rdb.SMembers(ctx, s.key("deps:from:"+id)).Result()
}

// DependentsOf returns the reverse neighbour IDs (deps:to members).
func (s *Store) DependentsOf(ctx context.Context, id string) ([]string, error) {
	return s.rdb.SMembers(ctx, s.key("deps:to:"+id)).Result()
}

// OutDegree and InDegree are set cardinalities, cheap on the backend.
func (s *Store) OutDegree(ctx context.Context, id string) (int, error) {
	n, err := s.rdb.SCard(ctx, s.key("deps:from:"+id)).Result()
	return int(n), err
}

func (s *Store) InDegree(ctx context.Context, id string) (int, error) {
	n, err := s.rdb.SCard(ctx, s.key("deps:to:"+id)).Result()
	return int(n), err
}

// AllEdges scans every edge record in the active namespace.
func (s *Store) AllEdges(ctx context.Context) ([]*model.Dependency, error) {
	prefix := s.nsPrefix() + "edge:from:"
	var edges []*model.Dependency
	var cursor uint64
	for {
		keys, next, err := s.rdb.Scan(ctx, cursor, prefix+"*", 1024).Result()
		if err != nil {
			return nil, fmt.Errorf("scan edges: %w", err)
		}
		for _, k := range keys {
			rest := k[len(prefix):]
			sep := strings.Index(rest, ":to:")
			if sep < 0 {
				continue
			}
			dep, err := s.GetEdge(ctx, rest[:sep], rest[sep+4:])
			if err != nil || dep == nil {
				continue
			}
			edges = append(edges, dep)
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return edges, nil
}

// CountEdges returns the number of stored edges.
func (s *Store) CountEdges(ctx context.Context) (int, error) {
	prefix := s.nsPrefix() + "edge:from:"
	count := 0
	var cursor uint64
	for {
		keys, next, err := s.rdb.Scan(ctx, cursor, prefix+"*", 1024).Result()
		if err != nil {
			return 0, err
		}
		count += len(keys)
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return count, nil
}

// UnresolvedImports returns import edges whose From is a file path (spec:
// unresolved imports are retained as file -> specifier edges).
func (s *Store) UnresolvedImports(ctx context.Context, path string) ([]*model.Dependency, error) {
	tos, err := s.DependenciesOf(ctx, path)
	if err != nil {
		return nil, err
	}
	var edges []*model.Dependency
	for _, to := range tos {
		dep, err := s.GetEdge(ctx, path, to)
		if err != nil {
			return nil, err
		}
		if dep != nil && dep.Type == model.DepImports {
			edges = append(edges, dep)
		}
	}
	return edges, nil
}
