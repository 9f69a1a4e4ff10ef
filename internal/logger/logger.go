package logger

import (
	"context"
	"io"
	"os"
	"strings"

	"edge-gatekeeper/internal/domain"

	"github.com/sirupsen/logrus"
)

const component = "gatekeeper"

// Options configura o logger. Campos vazios assumem os padrões (info, json, stdout).
type Options struct {
	Level   string
	Format  string
	Output  io.Writer
	Version string
}

// StructuredLogger implementa domain.Logger sobre um *logrus.Entry.
// Cada WithContext devolve uma cópia com os campos da requisição já aplicados.
type StructuredLogger struct {
	entry *logrus.Entry
}

// NewLogger cria o logger da aplicação com saída em stdout
func NewLogger(level, format string) domain.Logger {
	return New(Options{Level: level, Format: format})
}

// New cria o logger a partir de Options
func New(opts Options) *StructuredLogger {
	base := logrus.New()
	base.SetLevel(parseLevel(opts.Level))
	base.SetFormatter(newFormatter(opts.Format))

	if opts.Output != nil {
		base.SetOutput(opts.Output)
	} else {
		base.SetOutput(os.Stdout)
	}

	fields := logrus.Fields{"component": component}
	version := opts.Version
	if version == "" {
		version = os.Getenv("APP_VERSION")
	}
	if version != "" {
		fields["version"] = version
	}

	return &StructuredLogger{entry: base.WithFields(fields)}
}

// Level retorna o nível efetivo
func (l *StructuredLogger) Level() logrus.Level {
	return l.entry.Logger.GetLevel()
}

func (l *StructuredLogger) Debug(msg string, fields map[string]interface{}) {
	l.entry.WithFields(fields).Debug(msg)
}

func (l *StructuredLogger) Info(msg string, fields map[string]interface{}) {
	l.entry.WithFields(fields).Info(msg)
}

func (l *StructuredLogger) Warn(msg string, fields map[string]interface{}) {
	l.entry.WithFields(fields).Warn(msg)
}

// Error anexa err no campo "error" quando presente
func (l *StructuredLogger) Error(msg string, err error, fields map[string]interface{}) {
	entry := l.entry.WithFields(fields)
	if err != nil {
		entry = entry.WithError(err)
	}
	entry.Error(msg)
}

// WithContext copia para o log os dados gravados por ContextWithRequestInfo
func (l *StructuredLogger) WithContext(ctx context.Context) domain.Logger {
	info, ok := RequestInfoFrom(ctx)
	if !ok {
		return l
	}
	return &StructuredLogger{entry: l.entry.WithContext(ctx).WithFields(info.fields())}
}

func parseLevel(level string) logrus.Level {
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		return logrus.InfoLevel
	}
	return parsed
}

func newFormatter(format string) logrus.Formatter {
	if strings.EqualFold(format, "text") {
		return &logrus.TextFormatter{FullTimestamp: true}
	}
	return &logrus.JSONFormatter{
		TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime:  "timestamp",
			logrus.FieldKeyLevel: "level",
			logrus.FieldKeyMsg:   "message",
		},
	}
}

// RequestInfo identifica a requisição em andamento nos logs
type RequestInfo struct {
	RequestID string
	ClientIP  string
	Identity  string
	UserAgent string
}

func (i RequestInfo) fields() logrus.Fields {
	return logrus.Fields{
		"request_id": i.RequestID,
		"ip":         i.ClientIP,
		"identity":   i.Identity,
		"user_agent": i.UserAgent,
	}
}

type requestInfoKey struct{}

// ContextWithRequestInfo grava os dados da requisição no contexto
func ContextWithRequestInfo(ctx context.Context, requestID, ip, identity, userAgent string) context.Context {
	return context.WithValue(ctx, requestInfoKey{}, RequestInfo{
		RequestID: requestID,
		ClientIP:  ip,
		Identity:  identity,
		UserAgent: userAgent,
	})
}

// RequestInfoFrom lê os dados gravados por ContextWithRequestInfo
func RequestInfoFrom(ctx context.Context) (RequestInfo, bool) {
	if ctx == nil {
		return RequestInfo{}, false
	}
	info, ok := ctx.Value(requestInfoKey{}).(RequestInfo)
	return info, ok
}

// MaskToken mantém só o início do token
func MaskToken(token string) string {
	if token == "" {
		return ""
	}
	if len(token) > 8 {
		token = token[:8]
	}
	return token + "***"
}
