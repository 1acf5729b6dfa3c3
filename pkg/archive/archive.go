package archive

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/driver/sqlserver"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"
	"gorm.io/plugin/dbresolver"

	"github.com/tokmz/ircium/pkg/errors"
	"github.com/tokmz/ircium/pkg/irc"
	"github.com/tokmz/ircium/pkg/logger"
)

// 错误定义（41xx）
var (
	ErrOpen              = errors.New(4101, "archive: open database failed")
	ErrUnsupportedDriver = errors.New(4102, "archive: unsupported driver")
	ErrClosed            = errors.New(4103, "archive: closed")
	ErrQuery             = errors.New(4104, "archive: query failed")
)

// item 写入队列元素，flush 不为空时表示刷新请求
type item struct {
	rec   *Record
	flush chan struct{}
}

// Archive 实现 irc.Dispatcher，将入站消息异步批量写入数据库
type Archive struct {
	db  *gorm.DB
	cfg *Config
	log logger.Logger

	queue     chan item
	wg        sync.WaitGroup
	mu        sync.RWMutex
	closed    bool
	closeOnce sync.Once
	dropped   atomic.Int64
	written   atomic.Int64
}

// Open 打开数据库、自动迁移并启动写入协程
func Open(cfg *Config, log logger.Logger) (*Archive, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	cfg.setDefaults()
	if log == nil {
		log = logger.Nop()
	}
	log = log.Named("archive")

	if cfg.DSN == "" {
		return nil, ErrOpen.WithMessage("archive: dsn is required")
	}
	dialector, err := getDialector(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 newLogger(cfg, log),
		NamingStrategy:         schema.NamingStrategy{TablePrefix: cfg.TablePrefix},
	})
	if err != nil {
		return nil, ErrOpen.WithError(err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, ErrOpen.WithError(err)
	}
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if len(cfg.Replicas) > 0 {
		if err := setupReplicas(db, cfg); err != nil {
			_ = sqlDB.Close()
			return nil, ErrOpen.WithError(err)
		}
	}
	if cfg.Trace {
		if err := db.Use(tracingPlugin{}); err != nil {
			_ = sqlDB.Close()
			return nil, ErrOpen.WithError(err)
		}
	}
	if err := db.AutoMigrate(&Record{}); err != nil {
		_ = sqlDB.Close()
		return nil, ErrOpen.WithError(err)
	}

	a := &Archive{
		db:    db,
		cfg:   cfg,
		log:   log,
		queue: make(chan item, cfg.QueueSize),
	}
	a.wg.Add(1)
	go a.writer()

	log.Info("消息归档已启用", zap.String("driver", string(cfg.Driver)))
	return a, nil
}

// getDialector 根据驱动返回对应的 Dialector
func getDialector(driver Driver, dsn string) (gorm.Dialector, error) {
	switch driver {
	case MySQL:
		return mysql.Open(dsn), nil
	case Postgres:
		return postgres.Open(dsn), nil
	case SQLite:
		return sqlite.Open(dsn), nil
	case SQLServer:
		return sqlserver.Open(dsn), nil
	default:
		return nil, ErrUnsupportedDriver.WithMessage("archive: unsupported driver " + string(driver))
	}
}

// setupReplicas 注册只读从库，写入仍走主库
func setupReplicas(db *gorm.DB, cfg *Config) error {
	replicas := make([]gorm.Dialector, 0, len(cfg.Replicas))
	for _, dsn := range cfg.Replicas {
		dialector, err := getDialector(cfg.Driver, dsn)
		if err != nil {
			return err
		}
		replicas = append(replicas, dialector)
	}

	resolver := dbresolver.Register(dbresolver.Config{
		Replicas: replicas,
		Policy:   loadBalancePolicy(cfg.ReplicaPolicy),
	}).
		SetMaxIdleConns(cfg.MaxIdleConns).
		SetMaxOpenConns(cfg.MaxOpenConns).
		SetConnMaxLifetime(cfg.ConnMaxLifetime)
	return db.Use(resolver)
}

// loadBalancePolicy 获取负载均衡策略，默认随机
func loadBalancePolicy(policy string) dbresolver.Policy {
	if policy == "round_robin" {
		return dbresolver.RoundRobinPolicy()
	}
	return dbresolver.RandomPolicy{}
}

// DB 底层 gorm 实例
func (a *Archive) DB() *gorm.DB { return a.db }

// Dispatch 实现 irc.Dispatcher，只在 Wildcard 分发时记录
func (a *Archive) Dispatch(server *irc.Server, command string, msg *irc.Message) {
	if command != irc.Wildcard {
		return
	}
	a.push(item{rec: NewRecord(server, msg, time.Now())})
}

func (a *Archive) push(it item) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return false
	}
	if it.flush != nil {
		a.queue <- it
		return true
	}
	select {
	case a.queue <- it:
		return true
	default:
		a.dropped.Add(1)
		return false
	}
}

// writer 按批写入，队列暂时为空或攒满 BatchSize 时落库
func (a *Archive) writer() {
	defer a.wg.Done()

	batch := make([]*Record, 0, a.cfg.BatchSize)
	var waiters []chan struct{}

	flush := func() {
		if len(batch) > 0 {
			if err := a.db.CreateInBatches(batch, a.cfg.BatchSize).Error; err != nil {
				a.log.Error("归档写入失败", zap.Int("count", len(batch)), zap.Error(err))
			} else {
				a.written.Add(int64(len(batch)))
			}
			batch = batch[:0]
		}
		for _, w := range waiters {
			close(w)
		}
		waiters = waiters[:0]
	}

	for it := range a.queue {
		a.collect(it, &batch, &waiters)
	drain:
		for len(batch) < a.cfg.BatchSize {
			select {
			case next, ok := <-a.queue:
				if !ok {
					break drain
				}
				a.collect(next, &batch, &waiters)
			default:
				break drain
			}
		}
		flush()
	}
	flush()
}

func (a *Archive) collect(it item, batch *[]*Record, waiters *[]chan struct{}) {
	if it.rec != nil {
		*batch = append(*batch, it.rec)
	}
	if it.flush != nil {
		*waiters = append(*waiters, it.flush)
	}
}

// Flush 等待此前入队的消息全部落库
func (a *Archive) Flush(ctx context.Context) error {
	done := make(chan struct{})
	if !a.push(item{flush: done}) {
		return ErrClosed
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Recent 查询某服务器最近的 limit 条消息，按接收时间倒序
func (a *Archive) Recent(ctx context.Context, server string, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 50
	}
	var records []Record
	err := a.db.WithContext(ctx).
		Where("server = ?", server).
		Order("received_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&records).Error
	if err != nil {
		return nil, ErrQuery.WithError(err)
	}
	return records, nil
}

// Count 某服务器已归档的消息数，server 为空时统计全部
func (a *Archive) Count(ctx context.Context, server string) (int64, error) {
	var n int64
	q := a.db.WithContext(ctx).Model(&Record{})
	if server != "" {
		q = q.Where("server = ?", server)
	}
	if err := q.Count(&n).Error; err != nil {
		return 0, ErrQuery.WithError(err)
	}
	return n, nil
}

// Dropped 因队列满被丢弃的消息数
func (a *Archive) Dropped() int64 { return a.dropped.Load() }

// Written 已写入的消息数
func (a *Archive) Written() int64 { return a.written.Load() }

// Close 写完队列中的消息后关闭数据库
func (a *Archive) Close() error {
	var err error
	a.closeOnce.Do(func() {
		a.mu.Lock()
		a.closed = true
		close(a.queue)
		a.mu.Unlock()
		a.wg.Wait()

		sqlDB, dbErr := a.db.DB()
		if dbErr != nil {
			err = dbErr
			return
		}
		err = sqlDB.Close()
	})
	return err
}
