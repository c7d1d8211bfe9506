package repository

import "errors"

// 見つからない
var ErrNotFound = errors.New("not found")

// 一意制約違反
var ErrConflict = errors.New("conflict")
