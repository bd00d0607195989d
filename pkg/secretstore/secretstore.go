// Package secretstore 提供落盘加密的凭证存储（Badger 实现）。
//
// 加密由 Badger 自身的 value log 加密提供，本包只做键值封装与
// 密钥解析。API key 等敏感项不出现在配置文件里，由 secret-init
// 命令导入，机器人启动时只读打开。
package secretstore

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/pkg/errors"
)

// EnvPrefix 从 .env 导入的键统一加此前缀
const EnvPrefix = "env/"

// Store 加密键值存储
type Store struct {
	db *badger.DB
}

// Options 打开参数
type Options struct {
	Path     string
	Key      []byte // 32 字节；为空时不加密（仅限本地调试）
	ReadOnly bool
}

// Open 打开存储。加密模式下 Badger 要求启用索引缓存。
func Open(opts Options) (*Store, error) {
	if strings.TrimSpace(opts.Path) == "" {
		return nil, errors.New("secretstore: 缺少路径")
	}
	bopts := badger.DefaultOptions(opts.Path).
		WithLogger(nil).
		WithReadOnly(opts.ReadOnly)
	if len(opts.Key) > 0 {
		bopts = bopts.
			WithEncryptionKey(opts.Key).
			WithIndexCacheSize(64 << 20)
	}
	db, err := badger.Open(bopts)
	if err != nil {
		return nil, errors.Wrap(err, "secretstore: 打开失败")
	}
	return &Store{db: db}, nil
}

// Close 关闭存储
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Get 读取密钥项；不存在时返回 ("", false, nil)。
func (s *Store) Get(key string) (string, bool, error) {
	k := strings.TrimSpace(key)
	if k == "" {
		return "", false, errors.New("secretstore: 键为空")
	}
	var out string
	found := false
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(k))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return nil
			}
			return err
		}
		found = true
		return item.Value(func(val []byte) error {
			out = string(val)
			return nil
		})
	})
	if err != nil {
		return "", false, errors.Wrap(err, "secretstore: 读取失败")
	}
	return out, found, nil
}

// Set 写入密钥项
func (s *Store) Set(key, value string) error {
	k := strings.TrimSpace(key)
	if k == "" {
		return errors.New("secretstore: 键为空")
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(k), []byte(value))
	})
}

// ParseKey 解析 32 字节加密密钥，接受 hex（可带 0x 前缀）或 base64。
// 输入为空时返回 (nil, nil)，表示不加密。
func ParseKey(raw string) ([]byte, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	if b, err := hex.DecodeString(strings.TrimPrefix(raw, "0x")); err == nil {
		if len(b) != 32 {
			return nil, fmt.Errorf("secretstore: 密钥长度应为 32 字节，实际 %d", len(b))
		}
		return b, nil
	}
	if b, err := base64.StdEncoding.DecodeString(raw); err == nil {
		if len(b) != 32 {
			return nil, fmt.Errorf("secretstore: 密钥长度应为 32 字节，实际 %d", len(b))
		}
		return b, nil
	}
	return nil, errors.New("secretstore: 密钥须为 32 字节的 hex 或 base64")
}
