package models

import "errors"

var (
	// ErrArticleNotFound 文章不存在
	ErrArticleNotFound = errors.New("article not found")

	// ErrRunNotFound 导入记录不存在
	ErrRunNotFound = errors.New("ingest run not found")

	// ErrArticleExists 文章ID已存在
	ErrArticleExists = errors.New("article already exists")
)
