// Package logger wraps zap with a process-wide singleton and context
// propagation. Middlewares inject a request-scoped logger into the
// context; lower layers retrieve it with From(ctx) and attach their own
// Layer/Component/Op fields.
package logger
