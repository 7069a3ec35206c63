// Package storage はアップロードされたドキュメントの保管レイヤーを提供します。
package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Storage は参照名をキーとするドキュメント保管の抽象です。
// Delete は対象が既に存在しなくても成功します（冪等）。
type Storage interface {
	Save(ctx context.Context, name string, data []byte) error
	Load(ctx context.Context, name string) ([]byte, error)
	Delete(ctx context.Context, name string) error
}

// Local はローカルファイルシステム上の単一ディレクトリに保存します。
type Local struct {
	root string
}

// NewLocal は保存先ディレクトリを作成して Local を返します。
func NewLocal(root string) (*Local, error) {
	if root == "" {
		return nil, fmt.Errorf("storage root is required")
	}
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create storage dir: %w", err)
	}
	return &Local{root: root}, nil
}

// Save はドキュメントを保存します。
func (l *Local) Save(ctx context.Context, name string, data []byte) error {
	if err := validateName(name); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return os.WriteFile(l.Path(name), data, 0o640)
}

// Load はドキュメントを読み込みます。
func (l *Local) Load(ctx context.Context, name string) ([]byte, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return os.ReadFile(l.Path(name))
}

// Delete はドキュメントを削除します。既に存在しない場合はエラーにしません。
func (l *Local) Delete(ctx context.Context, name string) error {
	if err := validateName(name); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.Remove(l.Path(name)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// Path は参照名に対応するファイルパスを返します。
func (l *Local) Path(name string) string {
	return filepath.Join(l.root, name)
}

func validateName(name string) error {
	if name == "" {
		return fmt.Errorf("name is required")
	}
	// 参照名はディレクトリ直下の単一ファイル名のみ許可する
	if strings.ContainsAny(name, `/\`) || name != filepath.Base(name) {
		return fmt.Errorf("invalid document reference: %s", name)
	}
	return nil
}
