package repositories

import (
	"errors"

	"github.com/Masterminds/squirrel"
)

// SqBuilder targets postgres, SqliteBuilder the embedded store.
var (
	SqBuilder     = squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
	SqliteBuilder = squirrel.StatementBuilder.PlaceholderFormat(squirrel.Question)
)

var ErrBadQuery = errors.New("bad query")
