package archive

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tokmz/ircium/pkg/tracing"
)

const tracerName = "ircium.archive"

// tracingPlugin 为归档的写入与查询创建 span，不记录 SQL 原文
type tracingPlugin struct{}

func (tracingPlugin) Name() string { return "ircium:tracing" }

func (p tracingPlugin) Initialize(db *gorm.DB) error {
	cb := db.Callback()
	if err := cb.Create().Before("gorm:create").Register("ircium:before_create", p.before("archive.insert")); err != nil {
		return err
	}
	if err := cb.Create().After("gorm:create").Register("ircium:after_create", p.after); err != nil {
		return err
	}
	if err := cb.Query().Before("gorm:query").Register("ircium:before_query", p.before("archive.query")); err != nil {
		return err
	}
	return cb.Query().After("gorm:query").Register("ircium:after_query", p.after)
}

func (tracingPlugin) before(operation string) func(*gorm.DB) {
	return func(db *gorm.DB) {
		ctx := db.Statement.Context
		if ctx == nil {
			ctx = context.Background()
		}
		// 每次回调时获取 tracer，Provider 可能晚于 Open 初始化
		ctx, _ = tracing.Tracer(tracerName).Start(ctx, operation,
			trace.WithSpanKind(trace.SpanKindClient),
			trace.WithAttributes(
				attribute.String("db.system", db.Dialector.Name()),
				attribute.String("db.operation", operation),
			),
		)
		db.Statement.Context = ctx
	}
}

func (tracingPlugin) after(db *gorm.DB) {
	span := trace.SpanFromContext(db.Statement.Context)
	if !span.IsRecording() {
		return
	}
	defer span.End()

	if db.Statement.Table != "" {
		span.SetAttributes(attribute.String("db.table", db.Statement.Table))
	}
	span.SetAttributes(attribute.Int64("db.rows_affected", db.Statement.RowsAffected))

	if db.Error != nil && !errors.Is(db.Error, gorm.ErrRecordNotFound) {
		tracing.RecordError(span, db.Error)
		return
	}
	span.SetStatus(codes.Ok, "")
}
