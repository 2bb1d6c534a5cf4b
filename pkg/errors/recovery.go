package errors

import (
	"fmt"
	"runtime/debug"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
)

// PanicError は回復したパニックから作られたエラーです。
// ブースターの再帰的な木構築や、並列に学習している価格帯のゴルーチンで
// 起きたパニックを、実行全体を止める通常のエラーとして扱うために使います。
type PanicError struct {
	PanicValue interface{} // panic() に渡された値
	StackTrace string      // パニック発生時のスタック
	Operation  string      // 回復した場所
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic in %s: %v", e.Operation, e.PanicValue)
}

// String はスタックトレースを含む詳細を返します。
func (e *PanicError) String() string {
	return e.Error() + "\nStack trace:\n" + e.StackTrace
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *PanicError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("operation", e.Operation).
		Str("panic_value", fmt.Sprint(e.PanicValue)).
		Str("type", "PanicError")
}

// NewPanicError は現在のスタックを記録したPanicErrorを作成します。
func NewPanicError(operation string, panicValue interface{}) *PanicError {
	return &PanicError{
		PanicValue: panicValue,
		StackTrace: string(debug.Stack()),
		Operation:  operation,
	}
}

// Recover はパニックを *err に変換します。名前付きの戻り値を持つ関数で
// 直接 defer してください:
//
//	func (r *Regressor) Fit(X, y mat.Matrix) (err error) {
//	    defer errors.Recover(&err, "gbm.Regressor.Fit")
//	    ...
//	}
//
// すでにエラーが設定されている場合は、そのエラーにパニックの情報を付け加えます。
func Recover(err *error, operation string) {
	r := recover()
	if r == nil {
		return
	}
	if *err != nil {
		*err = errors.Wrapf(*err, "panic in %s: %v", operation, r)
		return
	}
	*err = NewPanicError(operation, r)
}

// SafeExecute は fn を実行し、パニックをPanicErrorとして返します。
//
//	err := errors.SafeExecute("train tier mid", func() error {
//	    return trainTier(ctx, "mid")
//	})
func SafeExecute(operation string, fn func() error) (err error) {
	defer Recover(&err, operation)
	return fn()
}
