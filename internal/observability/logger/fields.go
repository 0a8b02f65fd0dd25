package logger

import (
	"time"

	"go.uber.org/zap"
)

// Typed field helpers so call sites stay greppable and key names stay
// consistent across layers.

func RequestID(v string) zap.Field { return zap.String("request_id", v) }

func Method(v string) zap.Field { return zap.String("method", v) }

func Path(v string) zap.Field { return zap.String("path", v) }

func Status(v int) zap.Field { return zap.Int("status", v) }

func Duration(v time.Duration) zap.Field { return zap.Duration("duration", v) }

func ClientIP(v string) zap.Field { return zap.String("client_ip", v) }

func UserID(v string) zap.Field { return zap.String("user_id", v) }

func OrgID(v string) zap.Field { return zap.String("org_id", v) }

func SessionID(v string) zap.Field { return zap.String("session_id", v) }

// Layer identifies the architectural layer (controller, service, store).
func Layer(v string) zap.Field { return zap.String("layer", v) }

// Component identifies the module emitting the entry.
func Component(v string) zap.Field { return zap.String("component", v) }

// Op identifies the operation in progress.
func Op(v string) zap.Field { return zap.String("op", v) }

func Err(err error) zap.Field { return zap.Error(err) }

func Count(v int) zap.Field { return zap.Int("count", v) }

func String(key, v string) zap.Field { return zap.String(key, v) }

func Int(key string, v int) zap.Field { return zap.Int(key, v) }

func Bool(key string, v bool) zap.Field { return zap.Bool(key, v) }
