package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/codeatlas/codeatlas/internal/model"
)

// removeSymbolScript deletes a symbol and every incident edge atomically:
// the record, its index memberships, both dependency sets, the per-edge
// hashes, the reverse memberships on its neighbours, and the rank entry.
var removeSymbolScript = redis.NewScript(`
local prefix = ARGV[1]
local id = ARGV[2]
local sym = prefix .. 'symbol:' .. id

local filepath = redis.call('HGET', sym, 'filepath')
local name = redis.call('HGET', sym, 'name')
local kind = redis.call('HGET', sym, 'kind')
if filepath then redis.call('SREM', prefix .. 'idx:file:' .. filepath, id) end
if name then redis.call('SREM', prefix .. 'idx:name:' .. name, id) end
if kind then redis.call('SREM', prefix .. 'idx:kind:' .. kind, id) end

local outs = redis.call('SMEMBERS', prefix .. 'deps:from:' .. id)
for _, t in ipairs(outs) do
  redis.call('DEL', prefix .. 'edge:from:' .. id .. ':to:' .. t)
  redis.call('SREM', prefix .. 'deps:to:' .. t, id)
end
local ins = redis.call('SMEMBERS', prefix .. 'deps:to:' .. id)
for _, f in ipairs(ins) do
  redis.call('DEL', prefix .. 'edge:from:' .. f .. ':to:' .. id)
  redis.call('SREM', prefix .. 'deps:from:' .. f, id)
end
redis.call('DEL', prefix .. 'deps:from:' .. id, prefix .. 'deps:to:' .. id)
redis.call('ZREM', prefix .. 'pagerank', id)
redis.call('DEL', sym)
return 1
`)

// symbolFields flattens a symbol into hash fields.
func symbolFields(sym *model.Symbol) []any {
	loc, _ := json.Marshal(sym.Location)
	fields := []any{
		"id", sym.ID,
		"name", sym.Name,
		"kind", string(sym.Kind),
		"filepath", sym.FilePath,
		"location", string(loc),
		"exported", boolField(sym.Exported),
		"language", sym.Language,
	}
	if sym.Signature != "" {
		fields = append(fields, "signature", sym.Signature)
	}
	if sym.Docstring != "" {
		fields = append(fields, "docstring", sym.Docstring)
	}
	if sym.Parent != "" {
		fields = append(fields, "parent", sym.Parent)
	}
	if len(sym.Children) > 0 {
		children, _ := json.Marshal(sym.Children)
		fields = append(fields, "children", string(children))
	}
	if sym.Git != nil {
		git, _ := json.Marshal(sym.Git)
		fields = append(fields, "git", string(git))
	}
	if sym.PageRank != 0 {
		fields = append(fields, "pageRank", strconv.FormatFloat(sym.PageRank, 'g', -1, 64))
	}
	return fields
}

func boolField(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

func symbolFromHash(vals map[string]string) *model.Symbol {
	sym := &model.Symbol{
		ID:        vals["id"],
		Name:      vals["name"],
		Kind:      model.Kind(vals["kind"]),
		FilePath:  vals["filepath"],
		Signature: vals["signature"],
		Docstring: vals["docstring"],
		Parent:    vals["parent"],
		Exported:  vals["exported"] == "1",
		Language:  vals["language"],
	}
	_ = json.Unmarshal([]byte(vals["location"]), &sym.Location)
	if raw := vals["children"]; raw != "" {
		_ = json.Unmarshal([]byte(raw), &sym.Children)
	}
	if raw := vals["git"]; raw != "" {
		git := &model.GitMetadata{}
		if json.Unmarshal([]byte(raw), git) == nil {
			sym.Git = git
		}
	}
	if raw := vals["pageRank"]; raw != "" {
		sym.PageRank, _ = strconv.ParseFloat(raw, 64)
	}
	return sym
}

// AddSymbols stores a batch of symbols and their index memberships in one
// transactional pipeline. A failure leaves the caller to retry the batch.
func (s *Store) AddSymbols(ctx context.Context, symbols []*model.Symbol) error {
	if len(symbols) == 0 {
		return nil
	}
	pipe := s.rdb.TxPipeline()
	for _, sym := range symbols {
		pipe.HSet(ctx, s.key("symbol:"+sym.ID), symbolFields(sym)...)
		pipe.SAdd(ctx, s.key("idx:file:"+sym.FilePath), sym.ID)
		pipe.SAdd(ctx, s.key("idx:name:"+sym.Name), sym.ID)
		pipe.SAdd(ctx, s.key("idx:kind:"+string(sym.Kind)), sym.ID)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("add symbols: %w", err)
	}
	return nil
}

// GetSymbol returns nil when the ID is unknown.
func (s *Store) GetSymbol(ctx context.Context, id string) (*model.Symbol, error) {
	vals, err := s.rdb.HGetAll(ctx, s.key("symbol:"+id)).Result()
	if err != nil {
		return nil, err
	}
	if len(vals) == 0 {
		return nil, nil
	}
	return symbolFromHash(vals), nil
}

// getSymbols resolves a batch of IDs, skipping any deleted mid-traversal.
func (s *Store) getSymbols(ctx context.Context, ids []string) ([]*model.Symbol, error) {
	symbols := make([]*model.Symbol, 0, len(ids))
	for _, id := range ids {
		sym, err := s.GetSymbol(ctx, id)
		if err != nil {
			return nil, err
		}
		if sym != nil {
			symbols = append(symbols, sym)
		}
	}
	return symbols, nil
}

// SymbolsByFile returns every symbol declared in the file.
func (s *Store) SymbolsByFile(ctx context.Context, path string) ([]*model.Symbol, error) {
	ids, err := s.rdb.SMembers(ctx, s.key("idx:file:"+path)).Result()
	if err != nil {
		return nil, err
	}
	return s.getSymbols(ctx, ids)
}

// SymbolsByName returns every symbol with the exact name.
func (s *Store) SymbolsByName(ctx context.Context, name string) ([]*model.Symbol, error) {
	ids, err := s.rdb.SMembers(ctx, s.key("idx:name:"+name)).Result()
	if err != nil {
		return nil, err
	}
	return s.getSymbols(ctx, ids)
}

// SymbolsByKind returns every symbol of the kind.
func (s *Store) SymbolsByKind(ctx context.Context, kind model.Kind) ([]*model.Symbol, error) {
	ids, err := s.rdb.SMembers(ctx, s.key("idx:kind:"+string(kind))).Result()
	if err != nil {
		return nil, err
	}
	return s.getSymbols(ctx, ids)
}

// AllSymbolIDs scans every symbol key in the active namespace.
func (s *Store) AllSymbolIDs(ctx context.Context) ([]string, error) {
	prefix := s.nsPrefix() + "symbol:"
	var ids []string
	var cursor uint64
	for {
		keys, next, err := s.rdb.Scan(ctx, cursor, prefix+"*", 1024).Result()
		if err != nil {
			return nil, fmt.Errorf("scan symbols: %w", err)
		}
		for _, k := range keys {
			ids = append(ids, k[len(prefix):])
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return ids, nil
}

// AllSymbols loads every symbol record. Used by graph analytics that need
// whole-store passes (pagerank seeding, similarity, dead code).
func (s *Store) AllSymbols(ctx context.Context) ([]*model.Symbol, error) {
	ids, err := s.AllSymbolIDs(ctx)
	if err != nil {
		return nil, err
	}
	return s.getSymbols(ctx, ids)
}

// RemoveSymbol deletes a symbol and all incident edges atomically.
func (s *Store) RemoveSymbol(ctx context.Context, id string) error {
	if err := removeSymbolScript.Run(ctx, s.rdb, nil, s.nsPrefix(), id).Err(); err != nil {
		return fmt.Errorf("remove symbol %s: %w", id, err)
	}
	return nil
}

// RemoveFileSymbols deletes every symbol of a file plus the file index set.
func (s *Store) RemoveFileSymbols(ctx context.Context, path string) error {
	ids, err := s.rdb.SMembers(ctx, s.key("idx:file:"+path)).Result()
	if err != nil {
		return err
	}
	for _, id := range ids {
		if err := s.RemoveSymbol(ctx, id); err != nil {
			return err
		}
	}
	// The file itself carries import edges (file -> specifier); the removal
	// script is id-agnostic, so running it on the path purges those too.
	if err := s.RemoveSymbol(ctx, path); err != nil {
		return err
	}
	return s.rdb.Del(ctx, s.key("idx:file:"+path)).Err()
}

// CountSymbols returns the number of stored symbols.
func (s *Store) CountSymbols(ctx context.Context) (int, error) {
	ids, err := s.AllSymbolIDs(ctx)
	if err != nil {
		return 0, err
	}
	return len(ids), nil
}
