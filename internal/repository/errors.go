package repository

import (
	"errors"

	"gorm.io/gorm"

	"github.com/d60-Lab/live-commerce/internal/apperr"
)

// translate 把 gorm 错误转换成业务错误分类
func translate(err error, what string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.NotFound("%s not found", what)
	}
	return apperr.TransientIO(err, "%s", what)
}
