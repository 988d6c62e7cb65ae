package store

import (
	"encoding/json"
	"strings"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/pkg/errors"

	"github.com/betbot/pairsbot/internal/domain"
	"github.com/betbot/pairsbot/internal/risk"
)

const (
	positionPrefix = "position/"
	haltPrefix     = "halt/"
)

// StateStore 跨重启保存每个配对的持仓与熔断状态（Badger）。
// 只有这两类状态需要持久化；信号窗口重启后重新预热。
type StateStore struct {
	db *badger.DB
}

type OpenOptions struct {
	Path     string
	InMemory bool
	ReadOnly bool
}

func Open(opts OpenOptions) (*StateStore, error) {
	if !opts.InMemory && strings.TrimSpace(opts.Path) == "" {
		return nil, errors.New("store: path is required")
	}
	bopts := badger.DefaultOptions(opts.Path).
		WithLogger(nil).
		WithReadOnly(opts.ReadOnly)
	if opts.InMemory {
		bopts = badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	}
	db, err := badger.Open(bopts)
	if err != nil {
		return nil, errors.Wrap(err, "store: open badger")
	}
	return &StateStore{db: db}, nil
}

func (s *StateStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// SavePosition 保存持仓（空仓也写入，覆盖旧值）
func (s *StateStore) SavePosition(pair string, pos domain.Position) error {
	return s.putJSON(positionPrefix, pair, pos)
}

// LoadPosition 读取持仓；不存在时 found=false
func (s *StateStore) LoadPosition(pair string) (domain.Position, bool, error) {
	pos := domain.FlatPosition()
	found, err := s.getJSON(positionPrefix, pair, &pos)
	return pos, found, err
}

// SaveHalt 保存熔断状态
func (s *StateStore) SaveHalt(pair string, st risk.HaltState) error {
	return s.putJSON(haltPrefix, pair, st)
}

// LoadHalt 读取熔断状态
func (s *StateStore) LoadHalt(pair string) (risk.HaltState, bool, error) {
	var st risk.HaltState
	found, err := s.getJSON(haltPrefix, pair, &st)
	return st, found, err
}

// ClearHalt 清除熔断（pairsbot resume）
func (s *StateStore) ClearHalt(pair string) error {
	if err := s.check(pair); err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(haltPrefix + pair))
	})
}

// Pairs 所有有持久化状态的配对
func (s *StateStore) Pairs() ([]string, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("store: not opened")
	}
	seen := map[string]bool{}
	var out []string
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{PrefetchValues: false})
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			k := string(it.Item().Key())
			var name string
			switch {
			case strings.HasPrefix(k, positionPrefix):
				name = strings.TrimPrefix(k, positionPrefix)
			case strings.HasPrefix(k, haltPrefix):
				name = strings.TrimPrefix(k, haltPrefix)
			default:
				continue
			}
			if !seen[name] {
				seen[name] = true
				out = append(out, name)
			}
		}
		return nil
	})
	return out, err
}

func (s *StateStore) check(pair string) error {
	if s == nil || s.db == nil {
		return errors.New("store: not opened")
	}
	if strings.TrimSpace(pair) == "" {
		return errors.New("store: pair is empty")
	}
	return nil
}

func (s *StateStore) putJSON(prefix, pair string, v any) error {
	if err := s.check(pair); err != nil {
		return err
	}
	key := prefix + pair
	b, err := json.Marshal(v)
	if err != nil {
		return errors.Wrapf(err, "store: marshal %s", key)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), b)
	})
}

func (s *StateStore) getJSON(prefix, pair string, out any) (bool, error) {
	if err := s.check(pair); err != nil {
		return false, err
	}
	key := prefix + pair
	found := false
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return nil
			}
			return err
		}
		found = true
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, out)
		})
	})
	if err != nil {
		return false, errors.Wrapf(err, "store: get %s", key)
	}
	return found, nil
}
