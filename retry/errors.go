package retry

// MultiError 多次重试失败的错误聚合
// 无限重试模式下只保留最后一次错误
type MultiError struct {
	Errors   []error
	Attempts int
}

// Error returns the last error's message.
func (e *MultiError) Error() string {
	if last := e.LastError(); last != nil {
		return last.Error()
	}
	return "retry failed: no errors"
}

// Unwrap returns the last error.
func (e *MultiError) Unwrap() error {
	return e.LastError()
}

// LastError returns the last recorded error.
func (e *MultiError) LastError() error {
	if len(e.Errors) == 0 {
		return nil
	}
	return e.Errors[len(e.Errors)-1]
}
