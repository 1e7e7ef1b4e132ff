package conversation

import (
	"context"
	"errors"
	"net/http"

	"github.com/BaSui01/roundtable/store"
	"github.com/BaSui01/roundtable/types"
)

// ErrLockLost 表示提交时生成租约已不属于本次回合（被重置、清空或回收）
var ErrLockLost = errors.New("generation lease lost")

// storeError 将存储层错误转换为服务边界上的 types.Error
func storeError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := types.AsError(err); ok {
		return err
	}
	switch {
	case errors.Is(err, ErrLockLost):
		return types.NewError(types.ErrLockLost, "generation lease lost before commit").
			WithCause(err).
			WithHTTPStatus(http.StatusConflict)
	case errors.Is(err, store.ErrNotFound):
		return types.NewNotFoundError("resource not found").WithCause(err)
	case errors.Is(err, store.ErrInvalidInput):
		return types.NewInvalidRequestError(err.Error()).WithCause(err)
	case errors.Is(err, store.ErrConflict):
		return types.NewError(types.ErrStoreConflict, "conversation was modified concurrently").
			WithCause(err).
			WithHTTPStatus(http.StatusConflict).
			WithRetryable(true)
	case errors.Is(err, context.DeadlineExceeded):
		return types.NewStoreUnavailableError(err).WithHTTPStatus(http.StatusGatewayTimeout)
	default:
		return types.NewStoreUnavailableError(err)
	}
}
