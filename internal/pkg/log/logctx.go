// log прокидывает request-scoped *slog.Logger через context.Context.
//
// HTTP-мидлвар кладёт логгер (уже обогащённый request_id) через Into;
// сервисный слой достаёт его через From, ничего не зная о транспорте.
// Если логгера в контексте нет, From отдаёт slog.Default(), поэтому
// вызывать его безопасно из любого места.
package log

import (
	"context"
	"log/slog"
)

// Непубличный тип ключа исключает коллизии с чужими значениями контекста.
type ctxKey struct{}

// Into возвращает контекст с логгером l.
func Into(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// From возвращает логгер из контекста либо slog.Default().
func From(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(ctxKey{}).(*slog.Logger); ok && l != nil {
		return l
	}

	return slog.Default()
}
