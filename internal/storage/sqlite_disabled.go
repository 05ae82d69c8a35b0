//go:build !sqlite

package storage

import (
	"errors"

	"raidbot/pkg/logx"
)

func openSQLite(Config, logx.Logger) (Journal, error) {
	return nil, errors.New("sqlite journal not built: build with -tags sqlite")
}
