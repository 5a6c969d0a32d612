// Package request provides decorators that act on each request as a whole.
//
// It includes decorators for:
//   - Request ID generation and propagation
//   - Per-call timeouts
//
// Both wrap a service.Handler and can be stacked with service.Stack:
//
//	h := service.Stack(base,
//		request.WithRequestID(),
//		request.WithTimeout(5*time.Second),
//	)
package request
