package database

import (
	"os"

	"github.com/flashdb/flashkv/kverrors"
)

func osMkdirAll(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return kverrors.NewIOError(err, "failed to create database directory").WithPath(dir)
	}
	return nil
}
